package ratelimit

import (
	"fmt"
	"strings"

	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(
		NewSearchLimiter,
		fx.Annotate(NewSupplierLock, fx.As(new(ingestdomain.RunLock))),
	),
)

func sprintfKey(format, value string) string {
	return fmt.Sprintf(format, strings.TrimSpace(value))
}
