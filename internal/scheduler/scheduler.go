package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/catalogsync/internal/clock"
	"github.com/smallbiznis/catalogsync/internal/config"
	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	obsmetrics "github.com/smallbiznis/catalogsync/internal/observability/metrics"
	"github.com/smallbiznis/catalogsync/internal/scheduler/guard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobIngestAll      = "ingest_all"
	JobIngestSupplier = "ingest_supplier"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log       *zap.Logger
	IngestSvc ingestdomain.Service
	Suppliers *config.SuppliersHolder
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    Config `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	ingestSvc ingestdomain.Service
	suppliers *config.SuppliersHolder
	cron      *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.IngestSvc == nil || p.Suppliers == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))
	return &Scheduler{
		log:       log,
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		ingestSvc: p.IngestSvc,
		suppliers: p.Suppliers,
		cron:      newCron(log),
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) (err error) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
		defer func() { s.logJobFinish(ctx, run, err) }()
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err = fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name, err)
	// Deadlines are soft: the next tick or cron fire picks the supplier up again.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce ingests every enabled supplier that has no cron entry of its own.
// With cron disabled that is every enabled supplier.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, JobIngestAll, s.cfg.JobTimeout, s.IngestAllJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

// IngestAllJob runs the interval-driven suppliers. Failures are isolated per
// supplier and joined.
func (s *Scheduler) IngestAllJob(ctx context.Context) (err error) {
	ctx, run, owner := s.ensureJobRun(ctx, JobIngestAll)
	if owner {
		s.logJobStart(ctx, run)
		defer func() { s.logJobFinish(ctx, run, err) }()
	}

	if !s.cfg.CronEnabled {
		summaries, runErr := s.ingestSvc.RunAll(ctx)
		for i := range summaries {
			summary := &summaries[i]
			outcome := outcomeSucceeded
			if summary.Status == ingestdomain.StatusFailed {
				outcome = outcomeFailed
			}
			run.record(outcome, summary)
			obsmetrics.Scheduler().AddBatchProcessed(JobIngestAll, "products", summary.Inserted)
		}
		return runErr
	}

	for _, supplier := range s.suppliers.Enabled() {
		if _, schedErr := guard.EnsureSupplierSchedulable(supplier); schedErr == nil {
			continue
		}
		err = errors.Join(err, s.ingestSupplier(ctx, run, JobIngestAll, supplier.ID))
	}
	return err
}

// IngestSupplierJob runs one supplier. It is the body of every cron entry.
func (s *Scheduler) IngestSupplierJob(ctx context.Context, supplierID int64) (err error) {
	ctx, run, owner := s.ensureJobRun(ctx, JobIngestSupplier)
	if owner {
		s.logJobStart(ctx, run)
		defer func() { s.logJobFinish(ctx, run, err) }()
	}
	return s.ingestSupplier(ctx, run, JobIngestSupplier, supplierID)
}

func (s *Scheduler) ingestSupplier(ctx context.Context, run *jobRun, job string, supplierID int64) error {
	schedMetrics := obsmetrics.Scheduler()
	ctx = withSupplier(ctx, supplierID)

	summary, err := s.ingestSvc.Run(ctx, supplierID)
	switch {
	case errors.Is(err, ingestdomain.ErrRunInProgress):
		run.record(outcomeDeferred, nil)
		schedMetrics.IncBatchDeferred(job, obsmetrics.SchedulerDeferredReasonLockHeld)
		s.logger(ctx).Info("scheduler.supplier.deferred", zap.String("job", job), zap.String("reason", "run_in_progress"))
		return nil
	case errors.Is(err, ingestdomain.ErrSupplierDisabled):
		run.record(outcomeDeferred, nil)
		schedMetrics.IncBatchDeferred(job, obsmetrics.SchedulerDeferredReasonDisabled)
		return nil
	}

	if summary != nil {
		schedMetrics.AddBatchProcessed(job, "products", summary.Inserted)
	}
	if err != nil {
		run.record(outcomeFailed, summary)
		s.logger(ctx).Error("scheduler.supplier.failed",
			zap.String("job", job),
			zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
			zap.Error(err),
		)
		return fmt.Errorf("supplier %d: %w", supplierID, err)
	}
	run.record(outcomeSucceeded, summary)
	return nil
}
