package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	obsmetrics "github.com/smallbiznis/catalogsync/internal/observability/metrics"
	"github.com/smallbiznis/catalogsync/internal/scheduler/guard"
	"go.uber.org/zap"
)

// cronLogger routes robfig/cron output through zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

func newCron(log *zap.Logger) *cron.Cron {
	logger := cronLogger{log: log.Named("cron")}
	return cron.New(
		cron.WithParser(guard.Parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
}

// RegisterSchedules adds one cron entry per enabled supplier with a valid
// schedule and returns the number registered.
func (s *Scheduler) RegisterSchedules(ctx context.Context) int {
	registered := 0
	for _, supplier := range s.suppliers.Enabled() {
		schedule, err := guard.EnsureSupplierSchedulable(supplier)
		if err != nil {
			if !errors.Is(err, guard.ErrMissingSchedule) {
				s.log.Warn("supplier schedule rejected",
					zap.Int64("supplier_id", supplier.ID),
					zap.String("schedule", supplier.Schedule),
					zap.Error(err),
				)
			}
			continue
		}

		supplierID := supplier.ID
		s.cron.Schedule(schedule, cron.FuncJob(func() {
			if err := s.runJob(ctx, JobIngestSupplier, s.cfg.JobTimeout, func(jobCtx context.Context) error {
				return s.IngestSupplierJob(jobCtx, supplierID)
			}); err != nil {
				s.log.Warn("scheduled ingest failed", zap.Int64("supplier_id", supplierID), zap.Error(err))
			}
		}))
		registered++
	}
	return registered
}

// StartCron registers supplier schedules and starts the cron runner.
func (s *Scheduler) StartCron(ctx context.Context) {
	if !s.cfg.CronEnabled {
		return
	}
	count := s.RegisterSchedules(ctx)
	obsmetrics.Scheduler().SetCronEntries(count)
	s.log.Info("cron schedules registered", zap.Int("count", count))
	s.cron.Start()
}

// StopCron waits for running entries to finish or ctx to end.
func (s *Scheduler) StopCron(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
