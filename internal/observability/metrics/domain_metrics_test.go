package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIngestMetricsObserveRun(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newIngestMetrics(registry, Config{ServiceName: "catalogsync", Environment: "test"})

	finished := time.Unix(1700000000, 0)
	m.ObserveRun(1, "succeeded", 2*time.Second, finished)
	m.ObserveRun(1, "failed", time.Second, finished.Add(time.Hour))
	m.AddRecords(1, "skipped", 4)
	m.IncFetchAttempt(1, "retry")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("1", "succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("1", "failed")))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(m.lastSuccess.WithLabelValues("1")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.records.WithLabelValues("1", "skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.fetchAttempts.WithLabelValues("1", "retry")))
}

func TestSearchMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSearchMetrics(registry, Config{})

	m.IncQuery("strict")
	m.IncCache(true)
	m.IncCache(false)
	m.IncCache(false)
	m.IncFallback()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.queries.WithLabelValues("strict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cache.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.cache.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.fallbacks))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{})

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("/health", "GET", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("unknown", "GET", "404")))
}
