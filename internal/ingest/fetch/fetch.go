// Package fetch downloads supplier payloads with bounded retries and keeps a
// durable copy of every payload for replay.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/catalogsync/internal/config"
	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"github.com/smallbiznis/catalogsync/internal/observability/metrics"
	"github.com/smallbiznis/catalogsync/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidDescriptor = errors.New("invalid_fetch_descriptor")
	ErrUnexpectedStatus  = errors.New("unexpected_status")
)

const (
	attemptOK      = "ok"
	attemptRetry   = "retry"
	attemptFailed  = "failed"
	defaultTimeout = 300 * time.Second
)

// Payload is the raw content fetched for one supplier.
type Payload struct {
	Data  []byte
	Ext   string
	Stock []byte
}

// Transport performs a single download attempt.
type Transport interface {
	Fetch(ctx context.Context, cfg config.FetchConfig) (*Payload, error)
}

// Fetcher returns the payload of a supplier or ErrFetchExhausted.
type Fetcher interface {
	Fetch(ctx context.Context, supplier config.SupplierConfig) (*Payload, error)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *metrics.IngestMetrics `optional:"true"`
}

type Client struct {
	transports map[string]Transport
	metrics    *metrics.IngestMetrics
	log        *zap.Logger
}

func New(p Params) *Client {
	return NewClient(map[string]Transport{
		config.TransportHTTP: NewHTTPTransport(),
		config.TransportSFTP: NewSFTPTransport(p.Log),
	}, p.Metrics, p.Log)
}

func NewClient(transports map[string]Transport, m *metrics.IngestMetrics, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		transports: transports,
		metrics:    m,
		log:        log.Named("ingest.fetch"),
	}
}

// Fetch retries transport failures with a constant delay. Invalid descriptors
// fail on the first attempt.
func (c *Client) Fetch(ctx context.Context, supplier config.SupplierConfig) (*Payload, error) {
	transport, ok := c.transports[supplier.Fetch.Transport]
	if !ok {
		return nil, fmt.Errorf("%w: transport %q", ErrInvalidDescriptor, supplier.Fetch.Transport)
	}

	timeout := supplier.Fetch.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tries := supplier.Fetch.Retries
	if tries <= 0 {
		tries = 1
	}

	attempt := 0
	operation := func() (*Payload, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		payload, err := transport.Fetch(attemptCtx, supplier.Fetch)
		if err != nil {
			if errors.Is(err, ErrInvalidDescriptor) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return payload, nil
	}

	payload, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(supplier.Fetch.Delay)),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.metrics.IncFetchAttempt(supplier.ID, attemptRetry)
			c.log.Warn("ingest.fetch.retry",
				zap.Int64("supplier_id", supplier.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", tries),
				zap.Duration("next", next),
				zap.Error(tracing.SafeError(err)),
			)
		}),
	)
	if err != nil {
		c.metrics.IncFetchAttempt(supplier.ID, attemptFailed)
		if errors.Is(err, ErrInvalidDescriptor) {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", ingestdomain.ErrFetchExhausted, attempt, err)
	}

	c.metrics.IncFetchAttempt(supplier.ID, attemptOK)
	return payload, nil
}
