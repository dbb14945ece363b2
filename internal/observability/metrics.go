// Package observability defines the service's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fieldsat"

// Cache lookup results.
const (
	CacheFresh = "fresh"
	CacheStale = "stale"
	CacheMiss  = "miss"
)

// Adapter attempt outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Metrics holds the Prometheus counters and histograms for field analysis.
type Metrics struct {
	CacheLookups       *prometheus.CounterVec   // labels: result={fresh,stale,miss}
	AdapterAttempts    *prometheus.CounterVec   // labels: source, outcome={success,unavailable,error}
	AdapterDuration    *prometheus.HistogramVec // labels: source
	Analyses           *prometheus.CounterVec   // labels: status
	CacheWriteFailures prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CacheLookups,
		m.AdapterAttempts,
		m.AdapterDuration,
		m.Analyses,
		m.CacheWriteFailures,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Observation cache lookups by result.",
		}, []string{"result"}),
		AdapterAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_attempts_total",
			Help:      "Data source adapter attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		AdapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_duration_seconds",
			Help:      "Duration of a single data source adapter attempt.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"source"}),
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Field analyses by outcome status.",
		}, []string{"status"}),
		CacheWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_failures_total",
			Help:      "Observations that could not be written to the cache.",
		}),
	}
}
