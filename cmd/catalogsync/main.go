package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/catalogsync/internal/cache"
	"github.com/smallbiznis/catalogsync/internal/catalog"
	"github.com/smallbiznis/catalogsync/internal/clock"
	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/smallbiznis/catalogsync/internal/ingest"
	"github.com/smallbiznis/catalogsync/internal/migration"
	"github.com/smallbiznis/catalogsync/internal/observability"
	"github.com/smallbiznis/catalogsync/internal/pricing"
	"github.com/smallbiznis/catalogsync/internal/ratelimit"
	"github.com/smallbiznis/catalogsync/internal/scheduler"
	"github.com/smallbiznis/catalogsync/internal/search"
	"github.com/smallbiznis/catalogsync/internal/server"
	"github.com/smallbiznis/catalogsync/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,

		// Functional Domains
		pricing.Module,
		catalog.Module,
		ingest.Module,
		search.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
