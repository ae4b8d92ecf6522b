package repository

import (
	"context"

	"github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ingestion_runs (id, supplier_id, supplier_name, status, mode, inserted, skipped, error, artifact_path, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.SupplierID,
		run.SupplierName,
		run.Status,
		run.Mode,
		run.Inserted,
		run.Skipped,
		run.Error,
		run.ArtifactPath,
		run.StartedAt,
		run.FinishedAt,
		run.DurationMS,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id int64, status domain.RunStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE ingestion_runs SET status = ? WHERE id = ?`,
		status,
		id,
	).Error
}

func (r *repo) Finish(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	return db.WithContext(ctx).Exec(
		`UPDATE ingestion_runs
		 SET status = ?, inserted = ?, skipped = ?, error = ?, artifact_path = ?, finished_at = ?, duration_ms = ?
		 WHERE id = ?`,
		run.Status,
		run.Inserted,
		run.Skipped,
		run.Error,
		run.ArtifactPath,
		run.FinishedAt,
		run.DurationMS,
		run.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Run, error) {
	var run domain.Run
	err := db.WithContext(ctx).Model(&domain.Run{}).Where("id = ?", id).Limit(1).Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Run, error) {
	var items []domain.Run
	stmt := db.WithContext(ctx).Model(&domain.Run{})
	if filter.SupplierID > 0 {
		stmt = stmt.Where("supplier_id = ?", filter.SupplierID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("started_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
