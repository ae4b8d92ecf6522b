package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	catalogdomain "github.com/smallbiznis/catalogsync/internal/catalog/domain"
	"github.com/smallbiznis/catalogsync/internal/cache"
	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/smallbiznis/catalogsync/internal/observability/metrics"
	"github.com/smallbiznis/catalogsync/internal/observability/tracing"
	"github.com/smallbiznis/catalogsync/internal/pricing"
	"github.com/smallbiznis/catalogsync/internal/search/domain"
	"github.com/smallbiznis/catalogsync/internal/search/query"
	"github.com/smallbiznis/catalogsync/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Repo    catalogdomain.Repository
	Pricing *pricing.Calculator
	Cache   cache.Cache[domain.Response] `optional:"true"`
	Metrics *metrics.SearchMetrics       `optional:"true"`
	Meter   *metrics.Metrics             `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	repo         catalogdomain.Repository
	pricing      *pricing.Calculator
	cache        cache.Cache[domain.Response]
	metrics      *metrics.SearchMetrics
	meter        *metrics.Metrics
	defaultLimit int
	maxLimit     int
}

func New(p Params) domain.Service {
	limit := p.Config.Search.DefaultLimit
	if limit <= 0 {
		limit = defaultLimit
	}
	upper := p.Config.Search.MaxLimit
	if upper <= 0 {
		upper = maxLimit
	}
	if limit > upper {
		limit = upper
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("search.service"),
		repo:         p.Repo,
		pricing:      p.Pricing,
		cache:        p.Cache,
		metrics:      p.Metrics,
		meter:        p.Meter,
		defaultLimit: limit,
		maxLimit:     upper,
	}
}

func (s *Service) Search(ctx context.Context, req domain.Request) (*domain.Response, error) {
	start := time.Now()

	tokens := query.Tokenize(req.Query)
	if len(tokens) == 0 {
		return nil, domain.ErrInvalidQuery
	}
	page := pagination.Pagination{Limit: req.Limit, Offset: req.Offset}
	switch {
	case page.Limit == 0:
		page.Limit = s.defaultLimit
	case page.Limit < 1 || page.Limit > s.maxLimit:
		return nil, domain.ErrInvalidLimit
	}
	if page.Offset < 0 {
		return nil, domain.ErrInvalidOffset
	}
	pricingMode := strings.ToLower(strings.TrimSpace(req.Pricing))
	switch pricingMode {
	case "":
		pricingMode = domain.PricingStandard
	case domain.PricingStandard, domain.PricingMargin:
	default:
		return nil, domain.ErrInvalidPricing
	}

	key := query.CacheKey(tokens, map[string]string{
		"in_stock": strconv.FormatBool(req.InStock),
		"strict":   strconv.FormatBool(req.StrictMode),
		"fallback": strconv.FormatBool(req.Fallback),
		"pricing":  pricingMode,
	}, page.Limit, page.Offset)

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.metrics.IncCache(true)
			s.metrics.IncQuery(cached.Mode)
			s.meter.RecordSearch(ctx, cached.Mode, true)
			s.metrics.ObserveLatency(time.Since(start))
			out := detach(cached)
			out.Query = req.Query
			return &out, nil
		}
		s.metrics.IncCache(false)
	}

	ctx, span := tracing.StartSpan(ctx, "catalogsync/search", "search.query",
		attribute.Int("tokens", len(tokens)),
		attribute.Bool("strict", req.StrictMode),
	)
	defer span.End()

	mode := catalogdomain.MatchFuzzy
	if req.StrictMode {
		mode = catalogdomain.MatchStrict
	}
	items, err := s.query(ctx, tokens, mode, req.InStock, page)
	if err != nil {
		return nil, err
	}
	if mode == catalogdomain.MatchStrict && len(items) == 0 && req.Fallback {
		fallback, err := s.strictIsEmpty(ctx, tokens, req.InStock, page)
		if err != nil {
			return nil, err
		}
		if fallback {
			mode = catalogdomain.MatchFuzzy
		}
	}
	if mode == catalogdomain.MatchFuzzy && req.StrictMode {
		s.metrics.IncFallback()
		items, err = s.query(ctx, tokens, mode, req.InStock, page)
		if err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("mode", string(mode)))

	items, info := pagination.Trim(items, page)
	resp := domain.Response{
		Query:    req.Query,
		Tokens:   tokens,
		Mode:     string(mode),
		Products: make([]domain.Product, 0, len(items)),
		HasMore:  info.HasMore,
		Limit:    info.Limit,
		Offset:   info.Offset,
	}
	for _, item := range items {
		resp.Products = append(resp.Products, s.toProduct(item, pricingMode))
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, detach(resp))
	}
	s.metrics.IncQuery(resp.Mode)
	s.meter.RecordSearch(ctx, resp.Mode, false)
	s.metrics.ObserveLatency(time.Since(start))
	s.log.Debug("search served",
		zap.Strings("tokens", tokens),
		zap.String("mode", resp.Mode),
		zap.Int("results", len(resp.Products)),
		zap.Bool("has_more", resp.HasMore),
	)
	return &resp, nil
}

// strictIsEmpty reports whether strict matching has no rows at all, so that
// every page of a result set falls back the same way page one did.
func (s *Service) strictIsEmpty(ctx context.Context, tokens []string, inStock bool, page pagination.Pagination) (bool, error) {
	if page.Offset == 0 {
		return true, nil
	}
	first, err := s.query(ctx, tokens, catalogdomain.MatchStrict, inStock, pagination.Pagination{Limit: 1})
	if err != nil {
		return false, err
	}
	return len(first) == 0, nil
}

func (s *Service) query(ctx context.Context, tokens []string, mode catalogdomain.MatchMode, inStock bool, page pagination.Pagination) ([]catalogdomain.Product, error) {
	items, err := s.repo.Query(ctx, s.db, catalogdomain.QuerySpec{
		Tokens:  tokens,
		Mode:    mode,
		InStock: inStock,
		Limit:   page.FetchLimit(),
		Offset:  page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return items, nil
}

// detach copies the slices of resp so a cached entry never aliases a
// response handed to a caller.
func detach(resp domain.Response) domain.Response {
	resp.Tokens = append([]string(nil), resp.Tokens...)
	resp.Products = append([]domain.Product(nil), resp.Products...)
	return resp
}

func (s *Service) toProduct(p catalogdomain.Product, pricingMode string) domain.Product {
	gross := p.PriceGross
	if pricingMode == domain.PricingMargin {
		gross = s.pricing.MarginPrice(p.PriceNet, p.Category)
	}
	return domain.Product{
		Supplier:    p.SupplierName,
		Name:        p.Name,
		Brand:       p.Brand,
		Category:    p.Category,
		Price:       p.PriceNet.InexactFloat64(),
		PriceIncVAT: gross.InexactFloat64(),
		Stock:       p.Stock,
		Link:        p.Link,
		Image:       p.Image,
		EAN:         p.EAN,
	}
}
