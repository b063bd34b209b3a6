package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the document cache.
type Metrics struct {
	HitsTotal      prometheus.Counter
	MissesTotal    prometheus.Counter
	EvictionsTotal prometheus.Counter
	Entries        prometheus.Gauge
	Bytes          prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the cache.
//
// Uses sync.Once so metrics are only registered once globally, preventing
// "duplicate metrics collector registration" panics. All metrics are
// prefixed with "stated_cache_".
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "stated_cache_hits_total",
					Help: "Total number of cache hits",
				},
			),
			MissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "stated_cache_misses_total",
					Help: "Total number of cache misses (absent or stale)",
				},
			),
			EvictionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "stated_cache_evictions_total",
					Help: "Total number of entries evicted under pressure",
				},
			),
			Entries: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "stated_cache_entries",
					Help: "Current number of cached documents",
				},
			),
			Bytes: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "stated_cache_bytes",
					Help: "Approximate memory held by cached documents",
				},
			),
		}
	})
	return globalMetrics
}

// RecordHit records a cache hit.
func (m *Metrics) RecordHit() {
	m.HitsTotal.Inc()
}

// RecordMiss records a cache miss.
func (m *Metrics) RecordMiss() {
	m.MissesTotal.Inc()
}

// RecordEviction records a pressure eviction.
func (m *Metrics) RecordEviction() {
	m.EvictionsTotal.Inc()
}

// SetSize updates the occupancy gauges.
func (m *Metrics) SetSize(entries int, bytes int64) {
	m.Entries.Set(float64(entries))
	m.Bytes.Set(float64(bytes))
}
