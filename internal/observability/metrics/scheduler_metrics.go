package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"github.com/smallbiznis/catalogsync/pkg/db"
)

// Error types go to logs; job reasons go to the errors counter. Both stay
// low-cardinality.
const (
	SchedulerErrorTypeTimeout = "timeout"
	SchedulerErrorTypeFetch   = "fetch"
	SchedulerErrorTypeStore   = "store"
	SchedulerErrorTypeConfig  = "config"
	SchedulerErrorTypeIngest  = "ingest"

	SchedulerJobReasonDeadlineExceeded = "deadline_exceeded"
	SchedulerJobReasonFetchExhausted   = "fetch_exhausted"
	SchedulerJobReasonStoreUnavailable = "store_unavailable"
	SchedulerJobReasonSupplierNotFound = "supplier_not_found"
	SchedulerJobReasonUnknown          = "unknown"

	SchedulerDeferredReasonLockHeld = "lock_held"
	SchedulerDeferredReasonDisabled = "disabled"
)

type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	batchDeferred  *prometheus.CounterVec
	cronEntries    prometheus.Gauge
	runLoopLag     prometheus.Observer
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler collectors.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func constLabels(cfg Config) prometheus.Labels {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "catalogsync"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": service, "env": env}
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "catalogsync_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: labels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "catalogsync_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency. Full supplier refreshes can take tens of minutes.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
			ConstLabels: labels,
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "catalogsync_scheduler_job_timeouts_total",
			Help:        "Scheduler jobs that hit their deadline.",
			ConstLabels: labels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "catalogsync_scheduler_job_errors_total",
			Help:        "Scheduler job errors by reason.",
			ConstLabels: labels,
		}, []string{"job", "reason"}),
		batchProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "catalogsync_scheduler_batch_processed_total",
			Help:        "Records written by scheduler jobs.",
			ConstLabels: labels,
		}, []string{"job", "resource"}),
		batchDeferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "catalogsync_scheduler_batch_deferred_total",
			Help:        "Supplier runs the scheduler skipped, by reason.",
			ConstLabels: labels,
		}, []string{"job", "reason"}),
		cronEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "catalogsync_scheduler_cron_entries",
			Help:        "Supplier schedules currently registered with cron.",
			ConstLabels: labels,
		}),
	}
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "catalogsync_scheduler_runloop_lag_seconds",
		Help:        "Interval loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300},
		ConstLabels: labels,
	})
	m.runLoopLag = lag

	registerer.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobTimeouts,
		m.jobErrors,
		m.batchProcessed,
		m.batchDeferred,
		m.cronEntries,
		lag,
	)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

// AddBatchProcessed increments the processed counter for a resource by count.
func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 || m.batchProcessed == nil {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

func (m *SchedulerMetrics) IncBatchDeferred(job, reason string) {
	if m == nil || m.batchDeferred == nil {
		return
	}
	m.batchDeferred.WithLabelValues(job, reason).Inc()
}

func (m *SchedulerMetrics) SetCronEntries(count int) {
	if m == nil || m.cronEntries == nil {
		return
	}
	m.cronEntries.Set(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifySchedulerErrorType names the stage an error came from, for logs.
func ClassifySchedulerErrorType(err error) string {
	switch {
	case err == nil:
		return SchedulerErrorTypeIngest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SchedulerErrorTypeTimeout
	case errors.Is(err, ingestdomain.ErrFetchExhausted):
		return SchedulerErrorTypeFetch
	case errors.Is(err, ingestdomain.ErrStoreUnavailable), db.IsSystemicError(err):
		return SchedulerErrorTypeStore
	case errors.Is(err, ingestdomain.ErrSupplierNotFound):
		return SchedulerErrorTypeConfig
	default:
		return SchedulerErrorTypeIngest
	}
}

// ClassifySchedulerJobReason maps a job error to its counter label.
func ClassifySchedulerJobReason(err error) string {
	switch {
	case err == nil:
		return SchedulerJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SchedulerJobReasonDeadlineExceeded
	case errors.Is(err, ingestdomain.ErrFetchExhausted):
		return SchedulerJobReasonFetchExhausted
	case errors.Is(err, ingestdomain.ErrStoreUnavailable), db.IsSystemicError(err):
		return SchedulerJobReasonStoreUnavailable
	case errors.Is(err, ingestdomain.ErrSupplierNotFound):
		return SchedulerJobReasonSupplierNotFound
	default:
		return SchedulerJobReasonUnknown
	}
}
