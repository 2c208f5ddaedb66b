package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRaiseInvariant(t *testing.T) {
	invariantsMetric.Reset()
	RaiseInvariant("metrics", "test", "This is a test invariant violation")
	assert.Equal(t, 1, InvariantCount("metrics" /*module*/, "test" /*invariantType*/))
}

func TestRaiseInvariantPanicsInTestMode(t *testing.T) {
	PanicOnInvariant = true
	t.Cleanup(func() { PanicOnInvariant = false })
	assert.PanicsWithValue(t, "invariant violated: boom", func() {
		RaiseInvariant("metrics", "boom", "panics")
	})
}

func TestObserveFetch(t *testing.T) {
	fetchesMetric.Reset()
	ObserveFetch("api", "stale")
	ObserveFetch("api", "stale")
	ObserveFetch("static", "cache")
	assert.Equal(t, 2, FetchCount("api", "stale"))
	assert.Equal(t, 1, FetchCount("static", "cache"))
	assert.Equal(t, 0, FetchCount("static", "network"))
}
