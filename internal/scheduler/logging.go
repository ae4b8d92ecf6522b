package scheduler

import (
	"context"
	"strconv"
	"time"

	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	obscontext "github.com/smallbiznis/catalogsync/internal/observability/context"
	obslogger "github.com/smallbiznis/catalogsync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/catalogsync/internal/observability/metrics"
	"go.uber.org/zap"
)

type supplierOutcome string

const (
	outcomeSucceeded supplierOutcome = "succeeded"
	outcomeDeferred  supplierOutcome = "deferred"
	outcomeFailed    supplierOutcome = "failed"
)

// jobRun tallies one scheduler job across the suppliers it touched.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time

	succeeded int
	deferred  int
	failed    int
	inserted  int
	skipped   int
}

type jobRunKey struct{}

func (r *jobRun) record(outcome supplierOutcome, summary *ingestdomain.Summary) {
	if r == nil {
		return
	}
	switch outcome {
	case outcomeSucceeded:
		r.succeeded++
	case outcomeDeferred:
		r.deferred++
	case outcomeFailed:
		r.failed++
	}
	if summary != nil {
		r.inserted += summary.Inserted
		r.skipped += summary.Skipped
	}
}

// ensureJobRun attaches a run to ctx unless an outer job already owns one.
// A cron entry wraps IngestSupplierJob in runJob, so both share a run id.
func (s *Scheduler) ensureJobRun(ctx context.Context, job string) (context.Context, *jobRun, bool) {
	if existing, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	return ctx, run, true
}

func withSupplier(ctx context.Context, supplierID int64) context.Context {
	return obscontext.WithSupplierID(ctx, strconv.FormatInt(supplierID, 10))
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("job_run_id", run.runID),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun, err error) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("job_run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("suppliers_succeeded", run.succeeded),
		zap.Int("suppliers_deferred", run.deferred),
		zap.Int("suppliers_failed", run.failed),
		zap.Int("records_inserted", run.inserted),
		zap.Int("records_skipped", run.skipped),
	}
	if err != nil {
		fields = append(fields,
			zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
			zap.Error(err),
		)
	}
	if run.failed > 0 || err != nil {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}
