// Package cache holds the read-through caches used by search.
package cache

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/catalogsync/internal/config"
	"go.uber.org/zap"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	defaultSize = 1000
	defaultTTL  = 60 * time.Second
)

// Cache stores values by string key. A miss and a backend failure look the
// same to callers.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V)
}

// New picks the backend from configuration. Redis is used only when it is
// selected and a client is available.
func New[V any](cfg config.SearchConfig, client *redis.Client, prefix string, log *zap.Logger) Cache[V] {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if strings.EqualFold(cfg.CacheBackend, BackendRedis) && client != nil {
		return NewRedis[V](client, prefix, ttl, log)
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultSize
	}
	return NewMemory[V](size, ttl)
}

// Key joins non-empty parts into a lower-case key.
func Key(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
