package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/catalogsync/internal/clock"
	"github.com/smallbiznis/catalogsync/internal/config"
	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	obsmetrics "github.com/smallbiznis/catalogsync/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ingestMock struct {
	mock.Mock
}

func (m *ingestMock) Run(ctx context.Context, supplierID int64) (*ingestdomain.Summary, error) {
	args := m.Called(ctx, supplierID)
	summary, _ := args.Get(0).(*ingestdomain.Summary)
	return summary, args.Error(1)
}

func (m *ingestMock) RunAll(ctx context.Context) ([]ingestdomain.Summary, error) {
	args := m.Called(ctx)
	summaries, _ := args.Get(0).([]ingestdomain.Summary)
	return summaries, args.Error(1)
}

func (m *ingestMock) Replay(ctx context.Context, supplierID int64, artifactPath string) (*ingestdomain.Summary, error) {
	args := m.Called(ctx, supplierID, artifactPath)
	summary, _ := args.Get(0).(*ingestdomain.Summary)
	return summary, args.Error(1)
}

func (m *ingestMock) ListRuns(ctx context.Context, req ingestdomain.ListRunsRequest) ([]ingestdomain.Run, error) {
	args := m.Called(ctx, req)
	runs, _ := args.Get(0).([]ingestdomain.Run)
	return runs, args.Error(1)
}

var testLabels = map[string]string{"service": "catalogsync", "env": "test"}

func newTestScheduler(t *testing.T, cfg Config, suppliers []config.SupplierConfig) (*Scheduler, *ingestMock, *clock.FakeClock, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "catalogsync",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	holder, err := config.NewStaticSuppliers(suppliers)
	require.NoError(t, err)

	svc := &ingestMock{}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC))
	s, err := New(Params{
		Log:       zap.NewNop(),
		IngestSvc: svc,
		Suppliers: holder,
		GenID:     node,
		Clock:     fake,
		Config:    cfg,
	})
	require.NoError(t, err)
	return s, svc, fake, registry
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	s, _, _, registry := newTestScheduler(t, Config{}, config.DefaultSuppliers())

	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, getCounterValue(t, registry, "catalogsync_scheduler_job_timeouts_total", withLabels("job", "timeout_job")))

	errorLabels := withLabels("job", "timeout_job")
	errorLabels["reason"] = obsmetrics.SchedulerJobReasonDeadlineExceeded
	assert.Equal(t, 1.0, getCounterValue(t, registry, "catalogsync_scheduler_job_errors_total", errorLabels))
}

func TestRunJobMeasuresDurationWithClock(t *testing.T) {
	s, _, fake, registry := newTestScheduler(t, Config{}, config.DefaultSuppliers())

	err := s.runJob(context.Background(), "slow_job", time.Minute, func(ctx context.Context) error {
		fake.Advance(90 * time.Second)
		return nil
	})
	require.NoError(t, err)

	hist := getHistogram(t, registry, "catalogsync_scheduler_job_duration_seconds", withLabels("job", "slow_job"))
	assert.Equal(t, uint64(1), hist.GetSampleCount())
	assert.InDelta(t, 90.0, hist.GetSampleSum(), 0.001)
}

func TestRunJobDurationWithSteppingClock(t *testing.T) {
	s, _, fake, registry := newTestScheduler(t, Config{}, config.DefaultSuppliers())
	fake.SetStep(5 * time.Second)

	// Now is read at job start, when the run is opened, and at job end.
	require.NoError(t, s.runJob(context.Background(), "stepped_job", time.Minute, func(context.Context) error {
		return nil
	}))

	hist := getHistogram(t, registry, "catalogsync_scheduler_job_duration_seconds", withLabels("job", "stepped_job"))
	assert.InDelta(t, 10.0, hist.GetSampleSum(), 0.001)
}

func TestRunJobWrapsErrors(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{}, config.DefaultSuppliers())
	boom := errors.New("boom")

	err := s.runJob(context.Background(), "failing_job", time.Minute, func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
}

func TestIngestAllJobWithoutCronRunsAll(t *testing.T) {
	s, svc, _, registry := newTestScheduler(t, Config{CronEnabled: false}, config.DefaultSuppliers())
	svc.On("RunAll", mock.Anything).Return([]ingestdomain.Summary{
		{SupplierID: 1, Inserted: 120},
		{SupplierID: 2, Inserted: 30},
	}, nil).Once()

	require.NoError(t, s.RunOnce(context.Background()))

	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	labels := withLabels("job", JobIngestAll)
	labels["resource"] = "products"
	assert.Equal(t, 150.0, getCounterValue(t, registry, "catalogsync_scheduler_batch_processed_total", labels))
}

func TestIngestAllJobWithCronSkipsScheduledSuppliers(t *testing.T) {
	suppliers := config.DefaultSuppliers()
	suppliers[1].Schedule = ""
	s, svc, _, _ := newTestScheduler(t, Config{CronEnabled: true}, suppliers)

	svc.On("Run", mock.Anything, suppliers[1].ID).Return(&ingestdomain.Summary{SupplierID: suppliers[1].ID, Inserted: 3}, nil).Once()

	require.NoError(t, s.IngestAllJob(context.Background()))
	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "Run", mock.Anything, suppliers[0].ID)
	svc.AssertNotCalled(t, "RunAll", mock.Anything)
}

func TestIngestSupplierJobDefersWhenRunInProgress(t *testing.T) {
	s, svc, _, registry := newTestScheduler(t, Config{CronEnabled: true}, config.DefaultSuppliers())
	svc.On("Run", mock.Anything, int64(1)).Return(nil, ingestdomain.ErrRunInProgress).Once()

	require.NoError(t, s.IngestSupplierJob(context.Background(), 1))

	labels := withLabels("job", JobIngestSupplier)
	labels["reason"] = obsmetrics.SchedulerDeferredReasonLockHeld
	assert.Equal(t, 1.0, getCounterValue(t, registry, "catalogsync_scheduler_batch_deferred_total", labels))
}

func TestIngestSupplierJobReturnsRunFailure(t *testing.T) {
	s, svc, _, _ := newTestScheduler(t, Config{CronEnabled: true}, config.DefaultSuppliers())
	failed := &ingestdomain.Summary{SupplierID: 2, Status: ingestdomain.StatusFailed}
	svc.On("Run", mock.Anything, int64(2)).Return(failed, ingestdomain.ErrFetchExhausted).Once()

	err := s.IngestSupplierJob(context.Background(), 2)
	require.ErrorIs(t, err, ingestdomain.ErrFetchExhausted)
	assert.Contains(t, err.Error(), "supplier 2")
}

func TestRegisterSchedules(t *testing.T) {
	suppliers := config.DefaultSuppliers()
	s, _, _, _ := newTestScheduler(t, Config{CronEnabled: true}, suppliers)
	assert.Equal(t, 2, s.RegisterSchedules(context.Background()))
	assert.Len(t, s.cron.Entries(), 2)

	suppliers[0].Schedule = "not a schedule"
	suppliers[1].Enabled = false
	s, _, _, _ = newTestScheduler(t, Config{CronEnabled: true}, suppliers)
	assert.Equal(t, 0, s.RegisterSchedules(context.Background()))
	assert.Empty(t, s.cron.Entries())
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func withLabels(key, value string) map[string]string {
	labels := map[string]string{key: value}
	for k, v := range testLabels {
		labels[k] = v
	}
	return labels
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func findMetric(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				return metric
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return nil
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metric := findMetric(t, registry, name, labels)
	require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
	return metric.GetCounter().GetValue()
}

func getHistogram(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) *dto.Histogram {
	t.Helper()
	metric := findMetric(t, registry, name, labels)
	require.NotNil(t, metric.Histogram, "metric %s is not a histogram", name)
	return metric.GetHistogram()
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
