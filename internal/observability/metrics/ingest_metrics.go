package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics tracks supplier ingestion runs.
type IngestMetrics struct {
	runs          *prometheus.CounterVec
	records       *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	fetchAttempts *prometheus.CounterVec
	lastSuccess   *prometheus.GaugeVec
}

var (
	ingestMetricsOnce sync.Once
	ingestMetrics     *IngestMetrics
)

// IngestWithConfig returns the singleton ingest metrics registry.
func IngestWithConfig(cfg Config) *IngestMetrics {
	ingestMetricsOnce.Do(func() {
		ingestMetrics = newIngestMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ingestMetrics
}

// ResetIngestMetricsForTest resets the ingest metrics singleton for tests.
func ResetIngestMetricsForTest() {
	ingestMetricsOnce = sync.Once{}
	ingestMetrics = nil
}

func newIngestMetrics(registerer prometheus.Registerer, cfg Config) *IngestMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "catalogsync_ingest_runs_total",
		Help:        "Ingestion runs by supplier and terminal status.",
		ConstLabels: labels,
	}, []string{"supplier_id", "status"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "catalogsync_ingest_records_total",
		Help:        "Supplier records by normalization or write outcome.",
		ConstLabels: labels,
	}, []string{"supplier_id", "outcome"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "catalogsync_ingest_run_duration_seconds",
		Help:        "Wall time of a single ingestion run.",
		Buckets:     []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		ConstLabels: labels,
	}, []string{"supplier_id"})
	fetchAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "catalogsync_ingest_fetch_attempts_total",
		Help:        "Supplier feed fetch attempts by result.",
		ConstLabels: labels,
	}, []string{"supplier_id", "result"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "catalogsync_ingest_last_success_timestamp_seconds",
		Help:        "Unix time of the last successful run per supplier.",
		ConstLabels: labels,
	}, []string{"supplier_id"})

	registerer.MustRegister(runs, records, runDuration, fetchAttempts, lastSuccess)

	return &IngestMetrics{
		runs:          runs,
		records:       records,
		runDuration:   runDuration,
		fetchAttempts: fetchAttempts,
		lastSuccess:   lastSuccess,
	}
}

// ObserveRun records the terminal status and duration of a run.
func (m *IngestMetrics) ObserveRun(supplierID int64, status string, duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	id := strconv.FormatInt(supplierID, 10)
	m.runs.WithLabelValues(id, status).Inc()
	m.runDuration.WithLabelValues(id).Observe(duration.Seconds())
	if status == "succeeded" {
		m.lastSuccess.WithLabelValues(id).Set(float64(finishedAt.Unix()))
	}
}

// AddRecords counts records by outcome (ok, skipped, failed, written).
func (m *IngestMetrics) AddRecords(supplierID int64, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.records.WithLabelValues(strconv.FormatInt(supplierID, 10), outcome).Add(float64(count))
}

// IncFetchAttempt counts one fetch attempt with result ok, retry or failed.
func (m *IngestMetrics) IncFetchAttempt(supplierID int64, result string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(strconv.FormatInt(supplierID, 10), result).Inc()
}
