package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/catalogsync/internal/cache"
	"github.com/smallbiznis/catalogsync/internal/catalog"
	"github.com/smallbiznis/catalogsync/internal/clock"
	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/smallbiznis/catalogsync/internal/ingest"
	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"github.com/smallbiznis/catalogsync/internal/migration"
	"github.com/smallbiznis/catalogsync/internal/observability"
	"github.com/smallbiznis/catalogsync/internal/observability/metricspush"
	"github.com/smallbiznis/catalogsync/internal/pricing"
	"github.com/smallbiznis/catalogsync/internal/ratelimit"
	"github.com/smallbiznis/catalogsync/pkg/db"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "catalogsync-ingest",
		Usage: "run supplier ingestion outside the server",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "fetch and load one supplier, or all enabled suppliers",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "supplier", Aliases: []string{"s"}, Usage: "supplier id"},
					&cli.BoolFlag{Name: "all", Usage: "run every enabled supplier"},
				},
				Action: runAction,
			},
			{
				Name:  "replay",
				Usage: "reload a supplier from a saved artifact without fetching",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "supplier", Aliases: []string{"s"}, Required: true},
					&cli.StringFlag{Name: "artifact", Aliases: []string{"a"}, Required: true},
				},
				Action: replayAction,
			},
			{
				Name:  "runs",
				Usage: "list recent ingestion runs",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "supplier", Aliases: []string{"s"}},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: ingestdomain.DefaultListLimit},
				},
				Action: runsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAction(c *cli.Context) error {
	supplierID := c.Int64("supplier")
	all := c.Bool("all")
	if all == (supplierID != 0) {
		return cli.Exit("exactly one of --supplier or --all is required", 2)
	}

	return withIngest(c.Context, func(ctx context.Context, svc ingestdomain.Service) error {
		if all {
			summaries, err := svc.RunAll(ctx)
			if printErr := printJSON(c.App.Writer, summaries); printErr != nil {
				return printErr
			}
			return err
		}
		summary, err := svc.Run(ctx, supplierID)
		if summary != nil {
			if printErr := printJSON(c.App.Writer, summary); printErr != nil {
				return printErr
			}
		}
		return err
	})
}

func replayAction(c *cli.Context) error {
	return withIngest(c.Context, func(ctx context.Context, svc ingestdomain.Service) error {
		summary, err := svc.Replay(ctx, c.Int64("supplier"), c.String("artifact"))
		if summary != nil {
			if printErr := printJSON(c.App.Writer, summary); printErr != nil {
				return printErr
			}
		}
		return err
	})
}

func runsAction(c *cli.Context) error {
	return withIngest(c.Context, func(ctx context.Context, svc ingestdomain.Service) error {
		runs, err := svc.ListRuns(ctx, ingestdomain.ListRunsRequest{
			SupplierID: c.Int64("supplier"),
			Limit:      c.Int("limit"),
		})
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, runs)
	})
}

// withIngest boots the ingest dependency graph, runs fn, pushes metrics when
// configured and shuts it down.
func withIngest(ctx context.Context, fn func(context.Context, ingestdomain.Service) error) error {
	var (
		svc    ingestdomain.Service
		pusher metricspush.Pusher
		log    *zap.Logger
	)
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,
		pricing.Module,
		catalog.Module,
		ingest.Module,
		metricspush.Module,
		fx.Populate(&svc, &pusher, &log),
	)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	runErr := fn(ctx, svc)
	if pusher != nil {
		pushCtx, pushCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := pusher.Push(pushCtx, prometheus.DefaultGatherer); err != nil {
			log.Warn("metrics push failed", zap.Error(err))
		}
		pushCancel()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return errors.Join(runErr, app.Stop(stopCtx))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Node 3 keeps CLI-issued run ids distinct from the long-running processes.
func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
