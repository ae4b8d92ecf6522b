package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/catalogsync/internal/catalog/domain"
	"github.com/smallbiznis/catalogsync/internal/clock"
	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"github.com/smallbiznis/catalogsync/internal/ingest/enrich"
	"github.com/smallbiznis/catalogsync/internal/ingest/fetch"
	"github.com/smallbiznis/catalogsync/internal/ingest/normalize"
	"github.com/smallbiznis/catalogsync/internal/ingest/source"
	"github.com/smallbiznis/catalogsync/internal/ingest/writer"
	obscontext "github.com/smallbiznis/catalogsync/internal/observability/context"
	"github.com/smallbiznis/catalogsync/internal/observability/logger"
	"github.com/smallbiznis/catalogsync/internal/observability/metrics"
	"github.com/smallbiznis/catalogsync/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const tracerName = "catalogsync/ingest"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Suppliers  *config.SuppliersHolder
	Repo       domain.Repository
	Fetcher    fetch.Fetcher
	Artifacts  *fetch.ArtifactStore
	Normalizer *normalize.Normalizer
	Writer     *writer.Writer
	Lock       domain.RunLock         `optional:"true"`
	Metrics    *metrics.IngestMetrics `optional:"true"`
	Meter      *metrics.Metrics       `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	suppliers   *config.SuppliersHolder
	repo        domain.Repository
	fetcher     fetch.Fetcher
	artifacts   *fetch.ArtifactStore
	normalizer  *normalize.Normalizer
	writer      *writer.Writer
	lock        domain.RunLock
	metrics     *metrics.IngestMetrics
	meter       *metrics.Metrics
	concurrency int

	running sync.Map // supplier id -> struct{}
}

func New(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	concurrency := p.Config.Ingest.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ingest.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		suppliers:   p.Suppliers,
		repo:        p.Repo,
		fetcher:     p.Fetcher,
		artifacts:   p.Artifacts,
		normalizer:  p.Normalizer,
		writer:      p.Writer,
		lock:        p.Lock,
		metrics:     p.Metrics,
		meter:       p.Meter,
		concurrency: concurrency,
	}
}

func (s *Service) Run(ctx context.Context, supplierID int64) (*domain.Summary, error) {
	supplier, ok := s.suppliers.Get(supplierID)
	if !ok {
		return nil, domain.ErrSupplierNotFound
	}
	if !supplier.Enabled {
		return nil, domain.ErrSupplierDisabled
	}
	return s.execute(ctx, supplier, "")
}

// RunAll runs every enabled supplier with bounded parallelism. A failing
// supplier never stops the others; their errors are joined.
func (s *Service) RunAll(ctx context.Context) ([]domain.Summary, error) {
	suppliers := s.suppliers.Enabled()
	summaries := make([]domain.Summary, len(suppliers))
	errs := make([]error, len(suppliers))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, supplier := range suppliers {
		g.Go(func() error {
			summary, err := s.execute(ctx, supplier, "")
			if summary == nil {
				summary = &domain.Summary{
					SupplierID:   supplier.ID,
					SupplierName: supplier.Name,
					Status:       domain.StatusFailed,
					Mode:         supplier.Mode,
					Error:        errorText(err),
				}
			}
			summaries[i] = *summary
			if err != nil {
				errs[i] = fmt.Errorf("supplier %d: %w", supplier.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return summaries, errors.Join(errs...)
}

func (s *Service) Replay(ctx context.Context, supplierID int64, artifactPath string) (*domain.Summary, error) {
	supplier, ok := s.suppliers.Get(supplierID)
	if !ok {
		return nil, domain.ErrSupplierNotFound
	}
	if strings.TrimSpace(artifactPath) == "" {
		return nil, domain.ErrInvalidArtifact
	}
	return s.execute(ctx, supplier, artifactPath)
}

func (s *Service) ListRuns(ctx context.Context, req domain.ListRunsRequest) ([]domain.Run, error) {
	limit := req.Limit
	switch {
	case limit == 0:
		limit = domain.DefaultListLimit
	case limit < 0 || limit > domain.MaxListLimit:
		return nil, domain.ErrInvalidLimit
	}
	return s.repo.List(ctx, s.db, domain.ListFilter{SupplierID: req.SupplierID, Limit: limit})
}

// execute drives one run through the pipeline. An empty artifactPath fetches
// a fresh payload.
func (s *Service) execute(ctx context.Context, supplier config.SupplierConfig, artifactPath string) (*domain.Summary, error) {
	release, err := s.acquire(ctx, supplier.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	start := s.clock.Now()
	run := &domain.Run{
		ID:           s.genID.Generate().Int64(),
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		Status:       domain.StatusFetching,
		Mode:         supplier.Mode,
		StartedAt:    start,
	}
	runID := strconv.FormatInt(run.ID, 10)

	ctx = obscontext.WithRunID(ctx, runID)
	ctx = obscontext.WithSupplierID(ctx, strconv.FormatInt(supplier.ID, 10))
	ctx, span := tracing.StartSpan(ctx, tracerName, "ingest.run",
		attribute.Int64("supplier_id", supplier.ID),
		attribute.String("mode", supplier.Mode),
		attribute.Bool("replay", artifactPath != ""),
	)
	defer span.End()

	log := logger.WithSupplier(logger.WithContext(ctx, s.log), supplier.ID, supplier.Name)
	if err := s.repo.Create(ctx, s.db, run); err != nil {
		span.SetStatus(codes.Error, "create run")
		return nil, fmt.Errorf("%w: create run: %w", domain.ErrStoreUnavailable, err)
	}
	log.Info("ingest.run.start", zap.String("mode", supplier.Mode), zap.String("artifact", artifactPath))

	p := &pipeline{Service: s, supplier: supplier, run: run, log: log}
	runErr := p.execute(ctx, artifactPath)

	finished := s.clock.Now()
	duration := finished.Sub(start)
	run.FinishedAt = &finished
	run.DurationMS = duration.Milliseconds()
	run.Inserted = p.result.Inserted
	run.Skipped = p.skipped
	if runErr != nil {
		run.Status = domain.StatusFailed
	}
	if msg := p.errorMessage(runErr); msg != "" {
		run.Error = &msg
	}
	if p.artifact != "" {
		run.ArtifactPath = &p.artifact
	}

	if err := s.repo.Finish(context.WithoutCancel(ctx), s.db, run); err != nil {
		log.Warn("ingest run not recorded", zap.Error(err))
	}

	s.metrics.ObserveRun(supplier.ID, string(run.Status), duration, finished)
	s.metrics.AddRecords(supplier.ID, "written", run.Inserted)
	s.meter.RecordIngestRun(ctx, supplier.ID, string(run.Status))
	if runErr != nil {
		span.RecordError(tracing.SafeError(runErr))
		span.SetStatus(codes.Error, string(run.Status))
	}
	span.SetAttributes(
		attribute.Int("inserted", run.Inserted),
		attribute.Int("skipped", run.Skipped),
	)

	summary := &domain.Summary{
		RunID:        runID,
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		Status:       run.Status,
		Mode:         supplier.Mode,
		Inserted:     run.Inserted,
		Skipped:      run.Skipped,
		Enriched:     p.enriched,
		Duration:     duration,
		DurationMS:   run.DurationMS,
		Artifact:     p.artifact,
	}
	if run.Error != nil {
		summary.Error = *run.Error
	}

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("inserted", run.Inserted),
		zap.Int("skipped", run.Skipped),
		zap.Int("enriched", p.enriched),
		zap.Int64("duration_ms", run.DurationMS),
	}
	if runErr != nil {
		log.Error("ingest.run.finish", append(fields, zap.Error(tracing.SafeError(runErr)))...)
		return summary, runErr
	}
	log.Info("ingest.run.finish", fields...)
	return summary, nil
}

// acquire takes the in-process guard first, then the shared lock when one
// is configured. A lock backend error is logged and the run proceeds.
func (s *Service) acquire(ctx context.Context, supplierID int64) (func(), error) {
	if _, busy := s.running.LoadOrStore(supplierID, struct{}{}); busy {
		return nil, domain.ErrRunInProgress
	}
	releaseLocal := func() { s.running.Delete(supplierID) }

	if s.lock == nil {
		return releaseLocal, nil
	}
	releaseShared, acquired, err := s.lock.Acquire(ctx, supplierID)
	if err != nil {
		s.log.Warn("supplier lock unavailable, continuing with local guard",
			zap.Int64("supplier_id", supplierID), zap.Error(err))
		return releaseLocal, nil
	}
	if !acquired {
		releaseLocal()
		return nil, domain.ErrRunInProgress
	}
	return func() {
		releaseShared()
		releaseLocal()
	}, nil
}

type pipeline struct {
	*Service

	supplier config.SupplierConfig
	run      *domain.Run
	log      *zap.Logger

	artifact   string
	payloadErr error
	skipped    int
	enriched   int
	result     writer.Result
}

func (p *pipeline) execute(ctx context.Context, artifactPath string) error {
	payload, err := p.load(ctx, artifactPath)
	if err != nil {
		return p.fail(ctx, err)
	}

	if err := p.advance(ctx, domain.StatusParsing); err != nil {
		return err
	}
	records := p.parse(payload)

	if err := p.advance(ctx, domain.StatusNormalizing); err != nil {
		return err
	}
	products := p.normalize(ctx, records)

	if p.supplier.StockFeed != nil && len(payload.Stock) > 0 {
		if err := p.advance(ctx, domain.StatusEnriching); err != nil {
			return err
		}
		p.enrich(payload, products)
	}

	if err := p.advance(ctx, domain.StatusWriting); err != nil {
		return err
	}
	if p.payloadErr != nil {
		// An unreadable payload must not wipe the supplier's partition.
		p.log.Warn("payload unreadable, write skipped", zap.Error(p.payloadErr))
	} else {
		result, err := p.writer.Write(ctx, p.supplier.ID, products, p.supplier.Mode)
		p.result = result
		p.skipped += result.Skipped
		if err != nil {
			return p.fail(ctx, err)
		}
	}

	return p.advance(ctx, domain.StatusSucceeded)
}

func (p *pipeline) load(ctx context.Context, artifactPath string) (*fetch.Payload, error) {
	if artifactPath != "" {
		payload, err := p.artifacts.Load(p.supplier.ID, artifactPath)
		if err != nil {
			return nil, err
		}
		p.artifact = artifactPath
		return payload, nil
	}

	payload, err := p.fetcher.Fetch(ctx, p.supplier)
	if err != nil {
		return nil, err
	}
	name, err := p.artifacts.Save(p.supplier.ID, payload)
	if err != nil {
		p.log.Warn("artifact not saved, replay unavailable for this run", zap.Error(err))
	} else {
		p.artifact = name
	}
	return payload, nil
}

func (p *pipeline) parse(payload *fetch.Payload) []source.RawRecord {
	adapter, err := source.New(p.supplier)
	if err != nil {
		p.payloadErr = err
		return nil
	}
	result, err := adapter.Parse(payload.Data)
	if err != nil {
		p.payloadErr = fmt.Errorf("parse payload: %w", err)
		return nil
	}
	p.skipped += result.Skipped
	p.metrics.AddRecords(p.supplier.ID, "parse_skipped", result.Skipped)
	return result.Records
}

func (p *pipeline) normalize(ctx context.Context, records []source.RawRecord) []*catalogdomain.Product {
	sc := normalize.ContextFor(p.supplier)
	products := make([]*catalogdomain.Product, 0, len(records))
	reasons := map[string]int{}
	for _, raw := range records {
		outcome := p.normalizer.Normalize(raw, sc)
		if !outcome.IsOk() {
			reasons[outcome.SkipReason]++
			continue
		}
		products = append(products, outcome.Product)
	}

	skipped := len(records) - len(products)
	p.skipped += skipped
	p.metrics.AddRecords(p.supplier.ID, "ok", len(products))
	p.metrics.AddRecords(p.supplier.ID, "skipped", skipped)
	p.meter.RecordIngestRecords(ctx, p.supplier.ID, "ok", len(products))
	p.meter.RecordIngestRecords(ctx, p.supplier.ID, "skipped", skipped)
	if skipped > 0 {
		p.log.Info("records skipped during normalization", zap.Any("reasons", reasons))
	}
	return products
}

func (p *pipeline) enrich(payload *fetch.Payload, products []*catalogdomain.Product) {
	table, err := source.ParseStockTable(payload.Stock, *p.supplier.StockFeed, p.supplier.Delimited.Encoding)
	if err != nil {
		p.log.Warn("stock feed ignored", zap.Error(err))
		return
	}
	p.enriched = enrich.Stock(products, table)
	p.metrics.AddRecords(p.supplier.ID, "enriched", p.enriched)
}

func (p *pipeline) advance(ctx context.Context, next domain.RunStatus) error {
	if !p.run.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, p.run.Status, next)
	}
	p.run.Status = next
	if next.Terminal() {
		return nil
	}
	if err := p.repo.UpdateStatus(ctx, p.db, p.run.ID, next); err != nil {
		p.log.Warn("run status not recorded", zap.String("status", string(next)), zap.Error(err))
	}
	return nil
}

func (p *pipeline) fail(ctx context.Context, err error) error {
	if advErr := p.advance(ctx, domain.StatusFailed); advErr != nil {
		return errors.Join(err, advErr)
	}
	return err
}

func (p *pipeline) errorMessage(runErr error) string {
	switch {
	case runErr != nil:
		return errorText(runErr)
	case p.payloadErr != nil:
		return errorText(p.payloadErr)
	}
	return ""
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return tracing.SafeError(err).Error()
}
