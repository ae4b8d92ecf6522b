package domain

import (
	"context"

	"gorm.io/gorm"
)

type MatchMode string

const (
	MatchStrict MatchMode = "strict"
	MatchFuzzy  MatchMode = "fuzzy"
)

// QuerySpec is a normalized search request ready for the store.
type QuerySpec struct {
	Tokens  []string
	Mode    MatchMode
	InStock bool
	Limit   int
	Offset  int
}

type Repository interface {
	DeleteBySupplier(ctx context.Context, db *gorm.DB, supplierID int64) (int64, error)
	Upsert(ctx context.Context, db *gorm.DB, product *Product) error
	UpsertBatch(ctx context.Context, db *gorm.DB, products []*Product) error
	Query(ctx context.Context, db *gorm.DB, spec QuerySpec) ([]Product, error)
	CountBySupplier(ctx context.Context, db *gorm.DB, supplierID int64) (int64, error)
}
