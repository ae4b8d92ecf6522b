package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/catalogsync/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	keySearchClient  = "catalogsync:search:client:%s"
	localClientLimit = 10000
	localClientTTL   = 10 * time.Minute
)

// SearchLimiter throttles search per client key. It uses the shared redis
// bucket when available and an in-process limiter otherwise, including when
// redis errors.
type SearchLimiter struct {
	enabled bool
	rate    float64
	burst   int

	bucket *TokenBucket
	log    *zap.Logger

	mu    sync.Mutex
	local *expirable.LRU[string, *rate.Limiter]
}

func NewSearchLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *SearchLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	limitCfg := cfg.RateLimit
	l := &SearchLimiter{
		enabled: limitCfg.Enabled && limitCfg.SearchRate > 0 && limitCfg.SearchBurst > 0,
		rate:    limitCfg.SearchRate,
		burst:   limitCfg.SearchBurst,
		bucket:  NewTokenBucket(client),
		log:     log.Named("ratelimit.search"),
		local:   expirable.NewLRU[string, *rate.Limiter](localClientLimit, nil, localClientTTL),
	}
	return l
}

func (l *SearchLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *SearchLimiter) Allow(ctx context.Context, clientKey string) *RateLimitResult {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}
	}
	if l.bucket != nil {
		res, err := l.bucket.Allow(ctx, sprintfKey(keySearchClient, clientKey), l.rate, l.burst)
		if err == nil {
			return res
		}
		l.log.Warn("redis bucket unavailable, using local limiter", zap.Error(err))
	}
	return l.allowLocal(clientKey)
}

func (l *SearchLimiter) allowLocal(clientKey string) *RateLimitResult {
	l.mu.Lock()
	limiter, ok := l.local.Get(clientKey)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.rate), l.burst)
		l.local.Add(clientKey, limiter)
	}
	l.mu.Unlock()

	reservation := limiter.Reserve()
	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		return &RateLimitResult{Allowed: false, Limit: l.burst, RetryAfter: delay}
	}
	return &RateLimitResult{Allowed: true, Limit: l.burst, Remaining: int(limiter.Tokens())}
}
