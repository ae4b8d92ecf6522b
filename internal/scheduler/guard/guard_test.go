package guard

import (
	"testing"
	"time"

	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSupplierSchedulable(t *testing.T) {
	schedule, err := EnsureSupplierSchedulable(config.SupplierConfig{ID: 1, Enabled: true, Schedule: "0 0 3 * * *"})
	require.NoError(t, err)
	from := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC), schedule.Next(from))

	_, err = EnsureSupplierSchedulable(config.SupplierConfig{ID: 1, Enabled: true, Schedule: "@daily"})
	assert.NoError(t, err)

	_, err = EnsureSupplierSchedulable(config.SupplierConfig{ID: 1, Enabled: false, Schedule: "0 0 3 * * *"})
	assert.ErrorIs(t, err, ErrSupplierNotEnabled)

	_, err = EnsureSupplierSchedulable(config.SupplierConfig{ID: 1, Enabled: true, Schedule: "  "})
	assert.ErrorIs(t, err, ErrMissingSchedule)

	_, err = EnsureSupplierSchedulable(config.SupplierConfig{ID: 1, Enabled: true, Schedule: "every night"})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}
