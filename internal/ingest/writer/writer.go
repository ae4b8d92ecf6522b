// Package writer persists normalized products in batched transactions.
package writer

import (
	"context"
	"fmt"

	catalogdomain "github.com/smallbiznis/catalogsync/internal/catalog/domain"
	"github.com/smallbiznis/catalogsync/internal/config"
	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"github.com/smallbiznis/catalogsync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultBatchSize = 5000
	savepointName    = "catalog_record"
)

type Result struct {
	Inserted int   `json:"inserted"`
	Skipped  int   `json:"skipped"`
	Deleted  int64 `json:"deleted"`
}

type Params struct {
	fx.In

	DB   *gorm.DB
	Repo catalogdomain.Repository
	Cfg  config.Config
	Log  *zap.Logger
}

type Writer struct {
	db        *gorm.DB
	repo      catalogdomain.Repository
	batchSize int
	log       *zap.Logger
}

func New(p Params) *Writer {
	return NewWriter(p.DB, p.Repo, p.Cfg.Ingest.BatchSize, p.Log)
}

func NewWriter(conn *gorm.DB, repo catalogdomain.Repository, batchSize int, log *zap.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:        conn,
		repo:      repo,
		batchSize: batchSize,
		log:       log.Named("ingest.writer"),
	}
}

// Write stores products for one supplier. Each batch commits on its own, so an
// aborted run leaves whole batches behind. A full refresh deletes the
// supplier's rows inside the first batch.
func (w *Writer) Write(ctx context.Context, supplierID int64, products []*catalogdomain.Product, mode string) (Result, error) {
	var result Result

	if len(products) == 0 {
		if mode == config.ModeFullRefresh {
			w.log.Warn("full refresh without products, keeping existing rows", zap.Int64("supplier_id", supplierID))
		}
		return result, nil
	}

	for start := 0; start < len(products); start += w.batchSize {
		end := start + w.batchSize
		if end > len(products) {
			end = len(products)
		}
		first := start == 0

		var batch Result
		err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			batch = Result{}
			if first && mode == config.ModeFullRefresh {
				deleted, err := w.repo.DeleteBySupplier(ctx, tx, supplierID)
				if err != nil {
					return err
				}
				batch.Deleted = deleted
			}
			return w.writeBatch(ctx, tx, products[start:end], &batch)
		})
		if err != nil {
			return result, fmt.Errorf("write batch %d-%d: %w: %w", start, end, ingestdomain.ErrStoreUnavailable, err)
		}

		result.Inserted += batch.Inserted
		result.Skipped += batch.Skipped
		result.Deleted += batch.Deleted
		w.log.Debug("batch committed",
			zap.Int64("supplier_id", supplierID),
			zap.Int("offset", start),
			zap.Int("inserted", batch.Inserted),
			zap.Int("skipped", batch.Skipped),
		)
	}
	return result, nil
}

func (w *Writer) writeBatch(ctx context.Context, tx *gorm.DB, products []*catalogdomain.Product, batch *Result) error {
	for _, product := range products {
		if err := ctx.Err(); err != nil {
			return err
		}
		if product == nil {
			batch.Skipped++
			continue
		}

		if err := tx.SavePoint(savepointName).Error; err != nil {
			return err
		}
		err := w.repo.Upsert(ctx, tx, product)
		if err == nil {
			if err := release(tx); err != nil {
				return err
			}
			batch.Inserted++
			continue
		}
		if db.IsSystemicError(err) {
			return err
		}

		if rbErr := tx.RollbackTo(savepointName).Error; rbErr != nil {
			return rbErr
		}
		if relErr := release(tx); relErr != nil {
			return relErr
		}
		batch.Skipped++
		w.log.Debug("record skipped",
			zap.Int64("supplier_id", product.SupplierID),
			zap.String("product_key", product.ProductKey),
			zap.Bool("record_error", db.IsRecordError(err)),
			zap.Error(err),
		)
	}
	return nil
}

func release(tx *gorm.DB) error {
	return tx.Exec("RELEASE SAVEPOINT " + savepointName).Error
}
