// Package metrics holds the prometheus counters of the offline proxy.
//
// Invariants are conditions that must hold unless there is a bug in our own code, e.g. an
// event kind the dispatcher does not know. A violation is logged, counted and, in test
// mode, turned into a panic. Do not raise invariants for external failures such as an
// unreachable upstream.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"

	"github.com/leonardcser/pse-offline/internal/logger"
)

// PanicOnInvariant turns invariant violations into panics. Tests set it.
var PanicOnInvariant bool

var (
	fetchesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pse_offline_fetch_total",
		Help: "Intercepted requests by caching policy and response source.",
	}, []string{
		"policy", // api, static or passthrough.
		"source", // network, cache, stale, offline_page or unavailable.
	})
	syncsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pse_offline_sync_total",
		Help: "Background sync runs by result.",
	}, []string{"result"})
	pushesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pse_offline_push_total",
		Help: "Push notifications relayed by result.",
	}, []string{"result"})
	invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pse_offline_invariants_total",
		Help: "The total number of invariant violations.",
	}, []string{
		"module", // The module in which this invariant occurred.
		"type",   // The type of the invariant that occurred.
	})
)

// ObserveFetch counts one handled request.
func ObserveFetch(policy, source string) { fetchesMetric.WithLabelValues(policy, source).Inc() }

// ObserveSync counts one background sync run.
func ObserveSync(result string) { syncsMetric.WithLabelValues(result).Inc() }

// ObservePush counts one push delivery.
func ObservePush(result string) { pushesMetric.WithLabelValues(result).Inc() }

// RaiseInvariant records a violated invariant. The caller still has to handle the bad case.
func RaiseInvariant(module, invariantType, msg string, args ...any) {
	invariantsMetric.WithLabelValues(module, invariantType).Inc()
	logger.Errorf("invariant %s/%s: %s %v", module, invariantType, msg, args)
	if PanicOnInvariant {
		panic("invariant violated: " + invariantType)
	}
}

// FetchCount returns the current value of the fetch counter for the given labels.
func FetchCount(policy, source string) int {
	return counterValue(fetchesMetric.WithLabelValues(policy, source))
}

// SyncCount returns the current value of the sync counter for result.
func SyncCount(result string) int { return counterValue(syncsMetric.WithLabelValues(result)) }

// InvariantCount returns the current value of the invariant counter for the given labels.
func InvariantCount(module, invariantType string) int {
	return counterValue(invariantsMetric.WithLabelValues(module, invariantType))
}

func counterValue(c prometheus.Counter) int {
	var metric = &promclient.Metric{}
	if err := c.Write(metric); err != nil {
		logger.Errorf("read metric: %v", err)
		return 0
	}
	return int(metric.Counter.GetValue())
}
