package ingest

import (
	"github.com/smallbiznis/catalogsync/internal/ingest/fetch"
	"github.com/smallbiznis/catalogsync/internal/ingest/normalize"
	"github.com/smallbiznis/catalogsync/internal/ingest/repository"
	"github.com/smallbiznis/catalogsync/internal/ingest/service"
	"github.com/smallbiznis/catalogsync/internal/ingest/writer"
	"go.uber.org/fx"
)

var Module = fx.Module("ingest",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(fetch.New, fx.As(new(fetch.Fetcher))),
		fetch.NewArtifactStore,
	),
	fx.Provide(normalize.New),
	fx.Provide(writer.New),
	fx.Provide(service.New),
)
