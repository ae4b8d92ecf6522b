package search

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/catalogsync/internal/cache"
	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/smallbiznis/catalogsync/internal/search/domain"
	"github.com/smallbiznis/catalogsync/internal/search/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const cachePrefix = "catalogsync:search:"

var Module = fx.Module("search",
	fx.Provide(provideCache),
	fx.Provide(service.New),
)

func provideCache(cfg config.Config, client *redis.Client, log *zap.Logger) cache.Cache[domain.Response] {
	return cache.New[domain.Response](cfg.Search, client, cachePrefix, log)
}
