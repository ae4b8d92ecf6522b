package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	counterIngestRecords    = "catalogsync_ingest_records_total"
	counterIngestRuns       = "catalogsync_ingest_runs_total"
	counterSearchQueries    = "catalogsync_search_queries_total"
	counterRateLimitAllowed = "catalogsync_rate_limit_allowed_total"
	counterRateLimitDenied  = "catalogsync_rate_limit_denied_total"
)

var counterDescriptions = map[string]string{
	counterIngestRecords:    "Normalized catalog records by supplier and outcome.",
	counterIngestRuns:       "Finished ingestion runs by supplier and terminal status.",
	counterSearchQueries:    "Search requests by effective mode and cache hit.",
	counterRateLimitAllowed: "Requests admitted by the search rate limiter.",
	counterRateLimitDenied:  "Requests rejected by the search rate limiter.",
}

// Metrics holds the OTLP counters used by the ingest and search services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	counters map[string]metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	scope := strings.TrimSpace(cfg.ServiceName)
	if scope == "" {
		scope = "catalogsync"
	}
	meter := provider.Meter(scope)

	m := &Metrics{counters: make(map[string]metric.Int64Counter, len(counterDescriptions))}
	for name, desc := range counterDescriptions {
		counter, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			return nil, err
		}
		m.counters[name] = counter
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, name string, n int64, attrs ...attribute.KeyValue) {
	if m == nil || n <= 0 {
		return
	}
	counter, ok := m.counters[name]
	if !ok {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

// RecordIngestRecords counts records by outcome ("ok" or "skipped").
func (m *Metrics) RecordIngestRecords(ctx context.Context, supplierID int64, outcome string, count int) {
	m.add(ctx, counterIngestRecords, int64(count),
		attribute.Int64("supplier_id", supplierID),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
}

func (m *Metrics) RecordIngestRun(ctx context.Context, supplierID int64, status string) {
	m.add(ctx, counterIngestRuns, 1,
		attribute.Int64("supplier_id", supplierID),
		attribute.String("status", strings.TrimSpace(status)),
	)
}

func (m *Metrics) RecordSearch(ctx context.Context, mode string, cached bool) {
	m.add(ctx, counterSearchQueries, 1,
		attribute.String("mode", strings.TrimSpace(mode)),
		attribute.Bool("cached", cached),
	)
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	m.add(ctx, counterRateLimitAllowed, 1, attribute.String("endpoint", strings.TrimSpace(endpoint)))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	m.add(ctx, counterRateLimitDenied, 1,
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
}

// Labels outside this set (product keys, query text) would explode series
// cardinality and are dropped.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"supplier_id": {},
	"outcome":     {},
	"status":      {},
	"mode":        {},
	"cached":      {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			kept = append(kept, attr)
		}
	}
	return kept
}
