package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, run *Run) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id int64, status RunStatus) error
	Finish(ctx context.Context, db *gorm.DB, run *Run) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Run, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Run, error)
}

type ListFilter struct {
	SupplierID int64
	Limit      int
}
