package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/catalogsync/internal/cache"
	"github.com/smallbiznis/catalogsync/internal/catalog"
	"github.com/smallbiznis/catalogsync/internal/clock"
	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/smallbiznis/catalogsync/internal/ingest"
	"github.com/smallbiznis/catalogsync/internal/migration"
	"github.com/smallbiznis/catalogsync/internal/observability"
	"github.com/smallbiznis/catalogsync/internal/observability/metricspush"
	"github.com/smallbiznis/catalogsync/internal/pricing"
	"github.com/smallbiznis/catalogsync/internal/ratelimit"
	"github.com/smallbiznis/catalogsync/internal/scheduler"
	"github.com/smallbiznis/catalogsync/pkg/db"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// pipeline is everything the scheduler needs to drive ingestion, without
// the HTTP surface.
var pipeline = fx.Options(
	config.Module,
	observability.Module,
	fx.Provide(newSnowflakeNode),
	db.Module,
	migration.Module,
	clock.Module,
	cache.Module,
	ratelimit.Module,
	pricing.Module,
	catalog.Module,
	ingest.Module,
)

func main() {
	app := &cli.App{
		Name:  "catalogsync-scheduler",
		Usage: "drive supplier ingestion on cron schedules and the run interval",
		Action: func(*cli.Context) error {
			fx.New(pipeline, scheduler.Module).Run()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "once",
				Usage:  "run the interval job a single time and exit",
				Action: onceAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// onceAction suits an external cron: no cron entries are registered, the
// interval job runs once, and metrics are pushed before exit.
func onceAction(c *cli.Context) error {
	var (
		sched  *scheduler.Scheduler
		pusher metricspush.Pusher
		log    *zap.Logger
	)
	app := fx.New(
		fx.NopLogger,
		pipeline,
		fx.Provide(scheduler.ProvideConfig, scheduler.New),
		metricspush.Module,
		fx.Populate(&sched, &pusher, &log),
	)

	startCtx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	runErr := sched.RunOnce(c.Context)
	if pusher != nil {
		pushCtx, pushCancel := context.WithTimeout(context.WithoutCancel(c.Context), 10*time.Second)
		if err := pusher.Push(pushCtx, prometheus.DefaultGatherer); err != nil {
			log.Warn("metrics push failed", zap.Error(err))
		}
		pushCancel()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return errors.Join(runErr, app.Stop(stopCtx))
}

// Node 2 keeps scheduler-issued run ids distinct from the server's.
func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}
