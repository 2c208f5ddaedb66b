package tools

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/pse-offline/internal/cache"
	"github.com/leonardcser/pse-offline/internal/host"
	"github.com/leonardcser/pse-offline/internal/worker"
)

var stored = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type fakeProxy struct {
	state    host.StateReport
	caches   []host.PartitionReport
	entries  map[string]*cache.Entry
	messages []worker.Message
	pushes   [][]byte
	err      error
}

func (f *fakeProxy) State(context.Context) (*host.StateReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := f.state
	return &s, nil
}

func (f *fakeProxy) Caches(context.Context) ([]host.PartitionReport, error) {
	return f.caches, f.err
}

func (f *fakeProxy) Entry(_ context.Context, partition, _ string, rawURL string) (*cache.Entry, error) {
	if e, ok := f.entries[partition+" "+rawURL]; ok {
		return e, nil
	}
	return nil, errors.New("control: not found")
}

func (f *fakeProxy) PostMessage(_ context.Context, msg worker.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	if msg.Type == worker.MessageSkipWaiting {
		f.state.State = "activated"
	}
	return nil
}

func (f *fakeProxy) Push(_ context.Context, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.pushes = append(f.pushes, payload)
	return nil
}

func call(t *testing.T, h handlerFunc, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func TestStateHandler(t *testing.T) {
	p := &fakeProxy{state: host.StateReport{
		State: "activated", Controlling: true, StaticCache: "pse-dashboard-v1", APICache: "pse-api-v1",
		Clients:      []host.ClientInfo{{ID: "page-1", Controlled: true, ConnectedAt: stored}},
		PendingSyncs: []string{"sync-stock-data"},
	}}
	out := text(t, call(t, StateHandler(p), nil))
	assert.Contains(t, out, "Worker: activated (controlling: true)")
	assert.Contains(t, out, "Pending syncs: sync-stock-data")
	assert.Contains(t, out, "- page-1 controlled=true since 2026-03-02T09:30:00Z")

	p.err = errors.New("connection refused")
	assert.True(t, call(t, StateHandler(p), nil).IsError)
}

func TestCachesHandler(t *testing.T) {
	assert.Equal(t, "No caches.", formatCaches(nil))

	p := &fakeProxy{caches: []host.PartitionReport{
		{Name: "pse-api-v1", Entries: []cache.EntryInfo{{Method: "GET", URL: "https://phisix-api3.appspot.com/stocks.json", Status: 200, ContentType: "application/json", Size: 12, StoredAt: stored}}},
		{Name: "pse-dashboard-v1"},
	}}
	out := text(t, call(t, CachesHandler(p), nil))
	assert.Equal(t, strings.Join([]string{
		"## pse-api-v1 (1 entries)",
		"- GET https://phisix-api3.appspot.com/stocks.json -> 200 application/json, 12 bytes, stored 2026-03-02T09:30:00Z",
		"",
		"## pse-dashboard-v1 (0 entries)",
	}, "\n"), out)
}

func TestMessageHandlers(t *testing.T) {
	p := &fakeProxy{state: host.StateReport{State: "installed"}}

	res := call(t, RefreshHandler(p), nil)
	assert.False(t, res.IsError)
	res = call(t, SkipWaitingHandler(p), nil)
	assert.Equal(t, "Worker is activated.", text(t, res))

	require.Len(t, p.messages, 2)
	assert.Equal(t, worker.MessageRequestSync, p.messages[0].Type)
	assert.Equal(t, worker.MessageSkipWaiting, p.messages[1].Type)
}

func TestPushHandler(t *testing.T) {
	p := &fakeProxy{}
	call(t, PushHandler(p), map[string]any{"body": "JFC up 5%", "url": "/stocks/JFC"})
	call(t, PushHandler(p), nil)
	require.Len(t, p.pushes, 2)
	assert.JSONEq(t, `{"body":"JFC up 5%","url":"/stocks/JFC"}`, string(p.pushes[0]))
	assert.Empty(t, p.pushes[1], "no fields sends an empty payload")

	p.err = errors.New("503 no connected clients")
	assert.True(t, call(t, PushHandler(p), nil).IsError)
}

func TestPeekHandler(t *testing.T) {
	p := &fakeProxy{entries: map[string]*cache.Entry{
		"pse-dashboard-v1 http://dash.local/": {
			Method: "GET", URL: "http://dash.local/", Status: 200, StoredAt: stored,
			Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
			Body:   []byte(`<html><head><title>PSE Dashboard</title><script>track()</script></head><body><h1>Market</h1><p>PSEi up</p></body></html>`),
		},
		"pse-api-v1 https://phisix-api3.appspot.com/stocks.json": {
			Method: "GET", URL: "https://phisix-api3.appspot.com/stocks.json", Status: 200, StoredAt: stored,
			Header: http.Header{"Content-Type": {"application/json"}},
			Body:   []byte(`{"stock":[{"symbol":"JFC"}]}`),
		},
		"pse-dashboard-v1 http://dash.local/icon-192.png": {
			Method: "GET", URL: "http://dash.local/icon-192.png", Status: 200, StoredAt: stored,
			Header: http.Header{"Content-Type": {"image/png"}},
			Body:   []byte{0x89, 'P', 'N', 'G'},
		},
	}}

	t.Run("html_as_markdown", func(t *testing.T) {
		out := text(t, call(t, PeekHandler(p), map[string]any{"cache": "pse-dashboard-v1", "url": "http://dash.local/"}))
		assert.Contains(t, out, "GET http://dash.local/ -> 200")
		assert.Contains(t, out, "# PSE Dashboard")
		assert.Contains(t, out, "# Market")
		assert.Contains(t, out, "PSEi up")
		assert.NotContains(t, out, "track()")
	})
	t.Run("json_indented", func(t *testing.T) {
		out := text(t, call(t, PeekHandler(p), map[string]any{"cache": "pse-api-v1", "url": "https://phisix-api3.appspot.com/stocks.json"}))
		assert.Contains(t, out, "\"symbol\": \"JFC\"")
	})
	t.Run("binary_hidden", func(t *testing.T) {
		out := text(t, call(t, PeekHandler(p), map[string]any{"cache": "pse-dashboard-v1", "url": "http://dash.local/icon-192.png"}))
		assert.Contains(t, out, "[4 bytes of image/png not shown]")
	})
	t.Run("missing_args", func(t *testing.T) {
		assert.True(t, call(t, PeekHandler(p), map[string]any{"url": "http://dash.local/"}).IsError)
	})
	t.Run("not_found", func(t *testing.T) {
		assert.True(t, call(t, PeekHandler(p), map[string]any{"cache": "pse-api-v1", "url": "http://dash.local/nope"}).IsError)
	})
}

func TestTrim(t *testing.T) {
	long := strings.Repeat("x", MaxPeekSize+10)
	assert.True(t, strings.HasSuffix(trim(long), "... [trimmed]"))
	assert.Equal(t, "short", trim("short"))

	// A two byte rune straddles the cut.
	split := strings.Repeat("x", MaxPeekSize-1) + "ñ" + "tail"
	out := trim(split)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("x", MaxPeekSize-1)+"... [trimmed]", out)
}
