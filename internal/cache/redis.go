package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis stores JSON-encoded values under prefix+key with a fixed TTL.
type Redis[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedis[V any](client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *Redis[V] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis[V]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log.Named("cache.redis"),
	}
}

func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("cache get failed", zap.Error(err))
		}
		return zero, false
	}

	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		r.log.Warn("cache entry undecodable", zap.Error(err))
		return zero, false
	}
	return value, true
}

func (r *Redis[V]) Set(ctx context.Context, key string, value V) {
	raw, err := json.Marshal(value)
	if err != nil {
		r.log.Warn("cache entry unencodable", zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		r.log.Warn("cache set failed", zap.Error(err))
	}
}
