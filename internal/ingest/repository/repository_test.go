package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"github.com/smallbiznis/catalogsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLifecycle(t *testing.T) {
	conn := testutil.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)

	run := &domain.Run{
		ID:           10,
		SupplierID:   1,
		SupplierName: "GlobalWholesale",
		Status:       domain.StatusFetching,
		Mode:         config.ModeIncremental,
		StartedAt:    started,
	}
	require.NoError(t, r.Create(ctx, conn, run))
	require.NoError(t, r.UpdateStatus(ctx, conn, run.ID, domain.StatusParsing))

	got, err := r.FindByID(ctx, conn, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusParsing, got.Status)
	assert.Nil(t, got.FinishedAt)

	finished := started.Add(90 * time.Second)
	artifact := "data/1/01HX.xml"
	run.Status = domain.StatusSucceeded
	run.Inserted = 40
	run.Skipped = 2
	run.ArtifactPath = &artifact
	run.FinishedAt = &finished
	run.DurationMS = 90000
	require.NoError(t, r.Finish(ctx, conn, run))

	got, err = r.FindByID(ctx, conn, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, got.Status)
	assert.Equal(t, 40, got.Inserted)
	assert.Equal(t, 2, got.Skipped)
	require.NotNil(t, got.ArtifactPath)
	assert.Equal(t, artifact, *got.ArtifactPath)
	assert.Equal(t, int64(90000), got.DurationMS)
	assert.Nil(t, got.Error)

	missing, err := r.FindByID(ctx, conn, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListNewestFirst(t *testing.T) {
	conn := testutil.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, supplier := range []int64{1, 2, 1} {
		require.NoError(t, r.Create(ctx, conn, &domain.Run{
			ID:         int64(i + 1),
			SupplierID: supplier,
			Status:     domain.StatusSucceeded,
			Mode:       config.ModeIncremental,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := r.List(ctx, conn, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{all[0].ID, all[1].ID, all[2].ID})

	limited, err := r.List(ctx, conn, domain.ListFilter{SupplierID: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(3), limited[0].ID)
}
