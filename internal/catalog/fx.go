package catalog

import (
	"github.com/smallbiznis/catalogsync/internal/catalog/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog",
	fx.Provide(repository.Provide),
)
