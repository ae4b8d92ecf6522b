package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SearchMetrics tracks search traffic and cache effectiveness.
type SearchMetrics struct {
	queries   *prometheus.CounterVec
	cache     *prometheus.CounterVec
	fallbacks prometheus.Counter
	latency   prometheus.Observer
}

var (
	searchMetricsOnce sync.Once
	searchMetrics     *SearchMetrics
)

// SearchWithConfig returns the singleton search metrics registry.
func SearchWithConfig(cfg Config) *SearchMetrics {
	searchMetricsOnce.Do(func() {
		searchMetrics = newSearchMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return searchMetrics
}

// ResetSearchMetricsForTest resets the search metrics singleton for tests.
func ResetSearchMetricsForTest() {
	searchMetricsOnce = sync.Once{}
	searchMetrics = nil
}

func newSearchMetrics(registerer prometheus.Registerer, cfg Config) *SearchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "catalogsync_search_queries_total",
		Help:        "Search queries by effective match mode.",
		ConstLabels: labels,
	}, []string{"mode"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "catalogsync_search_cache_total",
		Help:        "Search cache lookups by result.",
		ConstLabels: labels,
	}, []string{"result"})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "catalogsync_search_fallback_total",
		Help:        "Strict searches that returned nothing and were retried in fuzzy mode.",
		ConstLabels: labels,
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "catalogsync_search_duration_seconds",
		Help:        "Search latency including cache lookups.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: labels,
	})

	registerer.MustRegister(queries, cache, fallbacks, latency)

	return &SearchMetrics{
		queries:   queries,
		cache:     cache,
		fallbacks: fallbacks,
		latency:   latency,
	}
}

// IncQuery counts an executed search by mode.
func (m *SearchMetrics) IncQuery(mode string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(mode).Inc()
}

// IncCache counts a cache lookup as hit or miss.
func (m *SearchMetrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

// IncFallback counts a strict to fuzzy fallback.
func (m *SearchMetrics) IncFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// ObserveLatency records end-to-end search latency.
func (m *SearchMetrics) ObserveLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}
