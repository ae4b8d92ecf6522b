package writer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/catalogsync/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/catalogsync/internal/catalog/repository"
	"github.com/smallbiznis/catalogsync/internal/config"
	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"github.com/smallbiznis/catalogsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newProduct(id int64, key string, price string, stock int64) *catalogdomain.Product {
	net := decimal.RequireFromString(price)
	return &catalogdomain.Product{
		ID:           id,
		SupplierID:   2,
		SupplierName: "Supplier B (Nordic)",
		ProductKey:   key,
		Name:         "Product " + key,
		Brand:        "Acme",
		Category:     catalogdomain.DefaultCategory,
		PriceNet:     net,
		PriceGross:   net.Mul(decimal.RequireFromString("1.255")).Round(2),
		Stock:        stock,
		CreatedAt:    fixedNow,
		UpdatedAt:    fixedNow,
	}
}

type row struct {
	ProductKey string
	PriceNet   string
	Stock      int64
}

func snapshot(t *testing.T, conn *gorm.DB, supplierID int64) []row {
	t.Helper()
	var products []catalogdomain.Product
	require.NoError(t, conn.Where("supplier_id = ?", supplierID).Order("product_key ASC").Find(&products).Error)
	out := make([]row, 0, len(products))
	for _, p := range products {
		out = append(out, row{ProductKey: p.ProductKey, PriceNet: p.PriceNet.StringFixed(2), Stock: p.Stock})
	}
	return out
}

func TestWriteFullRefreshIsIdempotent(t *testing.T) {
	conn := testutil.OpenDB(t)
	w := NewWriter(conn, catalogrepo.Provide(), 2, nil)
	ctx := context.Background()

	// stale row that the refresh must remove
	require.NoError(t, catalogrepo.Provide().Upsert(ctx, conn, newProduct(99, "OLD", "1.00", 1)))

	feed := func() []*catalogdomain.Product {
		return []*catalogdomain.Product{
			newProduct(1, "A1", "10.00", 3),
			newProduct(2, "B2", "4.50", 0),
			newProduct(3, "C3", "7.25", 12),
		}
	}

	first, err := w.Write(ctx, 2, feed(), config.ModeFullRefresh)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)
	assert.Equal(t, 0, first.Skipped)
	assert.Equal(t, int64(1), first.Deleted)
	afterFirst := snapshot(t, conn, 2)

	second, err := w.Write(ctx, 2, feed(), config.ModeFullRefresh)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Inserted)
	assert.Equal(t, int64(3), second.Deleted)

	assert.Equal(t, afterFirst, snapshot(t, conn, 2))
	assert.Equal(t, []row{
		{ProductKey: "A1", PriceNet: "10.00", Stock: 3},
		{ProductKey: "B2", PriceNet: "4.50", Stock: 0},
		{ProductKey: "C3", PriceNet: "7.25", Stock: 12},
	}, afterFirst)
}

func TestWriteIncrementalUpdatesMutableColumns(t *testing.T) {
	conn := testutil.OpenDB(t)
	w := NewWriter(conn, catalogrepo.Provide(), 0, nil)
	ctx := context.Background()

	_, err := w.Write(ctx, 2, []*catalogdomain.Product{newProduct(1, "A1", "10.00", 3)}, config.ModeIncremental)
	require.NoError(t, err)

	update := newProduct(50, "A1", "12.00", 8)
	update.Name = "Renamed"
	res, err := w.Write(ctx, 2, []*catalogdomain.Product{update, newProduct(51, "B2", "2.00", 1)}, config.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, int64(0), res.Deleted)

	var stored catalogdomain.Product
	require.NoError(t, conn.Where("supplier_id = ? AND product_key = ?", 2, "A1").First(&stored).Error)
	assert.Equal(t, int64(1), stored.ID)
	assert.Equal(t, "Product A1", stored.Name)
	assert.Equal(t, "12.00", stored.PriceNet.StringFixed(2))
	assert.Equal(t, int64(8), stored.Stock)

	count, err := catalogrepo.Provide().CountBySupplier(ctx, conn, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestWriteSkipsFailingRecord(t *testing.T) {
	conn := testutil.OpenDB(t)
	w := NewWriter(conn, catalogrepo.Provide(), 10, nil)

	products := []*catalogdomain.Product{
		newProduct(1, "A1", "10.00", 3),
		newProduct(2, "BAD", "4.00", -5),
		nil,
		newProduct(3, "C3", "7.00", 1),
	}
	res, err := w.Write(context.Background(), 2, products, config.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, res.Skipped)

	keys := []string{}
	for _, r := range snapshot(t, conn, 2) {
		keys = append(keys, r.ProductKey)
	}
	assert.Equal(t, []string{"A1", "C3"}, keys)
}

func TestWriteFullRefreshWithoutProductsKeepsRows(t *testing.T) {
	conn := testutil.OpenDB(t)
	w := NewWriter(conn, catalogrepo.Provide(), 10, nil)
	ctx := context.Background()

	_, err := w.Write(ctx, 2, []*catalogdomain.Product{newProduct(1, "A1", "1.00", 1)}, config.ModeIncremental)
	require.NoError(t, err)

	res, err := w.Write(ctx, 2, nil, config.ModeFullRefresh)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Len(t, snapshot(t, conn, 2), 1)
}

func TestWriteCanceledContextIsSystemic(t *testing.T) {
	conn := testutil.OpenDB(t)
	w := NewWriter(conn, catalogrepo.Provide(), 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Write(ctx, 2, []*catalogdomain.Product{newProduct(1, "A1", "1.00", 1)}, config.ModeIncremental)
	require.Error(t, err)
	assert.ErrorIs(t, err, ingestdomain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}
