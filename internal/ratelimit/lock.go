package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/catalogsync/internal/config"
	"go.uber.org/zap"
)

var ErrLockNotConfigured = errors.New("supplier_lock_not_configured")

const (
	supplierLockPrefix = "catalogsync:ingest:lock:"
	defaultLockTTL     = 2 * time.Hour
)

// Deletes KEYS[1] only while it still holds the caller's token, so a lock
// that expired and was taken by another replica is left alone.
var releaseOwned = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// SupplierLock keeps two replicas from ingesting the same supplier at once.
// A nil SupplierLock grants every request, which is the single-process setup.
type SupplierLock struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewSupplierLock(client *redis.Client, cfg config.Config, log *zap.Logger) *SupplierLock {
	if client == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.Ingest.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &SupplierLock{client: client, ttl: ttl, log: log.Named("ratelimit.supplier_lock")}
}

func supplierLockKey(supplierID int64) string {
	return supplierLockPrefix + strconv.FormatInt(supplierID, 10)
}

// Acquire returns a release func when the lock was taken. A held lock yields
// acquired=false with a nil error.
func (s *SupplierLock) Acquire(ctx context.Context, supplierID int64) (func(), bool, error) {
	if s == nil {
		return func() {}, true, nil
	}
	if s.client == nil {
		return nil, false, ErrLockNotConfigured
	}

	key := supplierLockKey(supplierID)
	token := uuid.NewString()
	taken, err := s.client.SetNX(ctx, key, token, s.ttl).Result()
	if err != nil || !taken {
		return nil, false, err
	}

	release := func() {
		err := releaseOwned.Run(context.WithoutCancel(ctx), s.client, []string{key}, token).Err()
		if err != nil {
			s.log.Warn("supplier lock release failed", zap.Int64("supplier_id", supplierID), zap.Error(err))
		}
	}
	return release, true, nil
}
