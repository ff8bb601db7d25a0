package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ContextCacheMetrics holds the Prometheus collectors for the context cache.
// A nil *ContextCacheMetrics is valid and records nothing.
type ContextCacheMetrics struct {
	Entries            prometheus.Gauge
	Operations         *prometheus.CounterVec
	Lookups            *prometheus.CounterVec
	Evictions          prometheus.Counter
	Expirations        prometheus.Counter
	ValidationFailures prometheus.Counter
	ReanalysisDuration prometheus.Histogram
	ReanalysisFailures prometheus.Counter
}

// NewContextCacheMetrics creates the cache collectors and registers them with reg.
// A nil reg creates unregistered collectors (useful in tests).
func NewContextCacheMetrics(reg prometheus.Registerer) *ContextCacheMetrics {
	factory := promauto.With(reg)

	return &ContextCacheMetrics{
		// Current entry count (gauge - can go up and down)
		Entries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "phicontext_cache_entries",
			Help: "Number of entries currently held in the context cache",
		}),

		// Mutations by operation (counter - only goes up)
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phicontext_cache_operations_total",
			Help: "Total number of context cache mutations by operation",
		}, []string{"operation"}), // store, update, delete, clear

		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phicontext_cache_lookups_total",
			Help: "Total number of keyed lookups by result",
		}, []string{"result"}), // hit, miss

		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "phicontext_cache_evictions_total",
			Help: "Total number of entries evicted for capacity",
		}),

		Expirations: factory.NewCounter(prometheus.CounterOpts{
			Name: "phicontext_cache_expirations_total",
			Help: "Total number of expired entries lazily deleted",
		}),

		ValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "phicontext_cache_validation_failures_total",
			Help: "Total number of entries rejected by sanitization validation",
		}),

		ReanalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "phicontext_reanalysis_duration_seconds",
			Help:    "Duration of full importance reanalysis sweeps",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),

		ReanalysisFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "phicontext_reanalysis_entry_failures_total",
			Help: "Total number of entries that failed to rescore during reanalysis",
		}),
	}
}

// RecordOperation records a cache mutation
func (m *ContextCacheMetrics) RecordOperation(operation string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation).Inc()
}

// RecordLookup records a keyed lookup as hit or miss
func (m *ContextCacheMetrics) RecordLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.Lookups.WithLabelValues("hit").Inc()
	} else {
		m.Lookups.WithLabelValues("miss").Inc()
	}
}

// RecordEvictions records entries evicted for capacity
func (m *ContextCacheMetrics) RecordEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Evictions.Add(float64(n))
}

// RecordExpirations records expired entries removed on observation
func (m *ContextCacheMetrics) RecordExpirations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Expirations.Add(float64(n))
}

// RecordValidationFailure records a rejected entry
func (m *ContextCacheMetrics) RecordValidationFailure() {
	if m == nil {
		return
	}
	m.ValidationFailures.Inc()
}

// RecordReanalysis records a completed sweep
func (m *ContextCacheMetrics) RecordReanalysis(seconds float64, failed int) {
	if m == nil {
		return
	}
	m.ReanalysisDuration.Observe(seconds)
	if failed > 0 {
		m.ReanalysisFailures.Add(float64(failed))
	}
}

// SetEntries records the current entry count
func (m *ContextCacheMetrics) SetEntries(n int) {
	if m == nil {
		return
	}
	m.Entries.Set(float64(n))
}
