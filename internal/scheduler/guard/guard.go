package guard

import (
	"errors"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/catalogsync/internal/config"
)

var (
	ErrSupplierNotEnabled = errors.New("supplier_not_enabled")
	ErrMissingSchedule    = errors.New("supplier_missing_schedule")
	ErrInvalidSchedule    = errors.New("supplier_invalid_schedule")
)

// Parser accepts six-field specs with a leading seconds field, plus descriptors
// such as @daily.
var Parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// EnsureSupplierSchedulable reports whether the supplier gets its own cron entry.
func EnsureSupplierSchedulable(supplier config.SupplierConfig) (cron.Schedule, error) {
	if !supplier.Enabled {
		return nil, ErrSupplierNotEnabled
	}
	spec := strings.TrimSpace(supplier.Schedule)
	if spec == "" {
		return nil, ErrMissingSchedule
	}
	schedule, err := Parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchedule, err)
	}
	return schedule, nil
}
