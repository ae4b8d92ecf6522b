package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/catalogsync/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/catalogsync/internal/catalog/repository"
	"github.com/smallbiznis/catalogsync/internal/cache"
	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/smallbiznis/catalogsync/internal/pricing"
	"github.com/smallbiznis/catalogsync/internal/search/domain"
	"github.com/smallbiznis/catalogsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var seededAt = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, conn *gorm.DB, items ...catalogdomain.Product) {
	t.Helper()
	ptrs := make([]*catalogdomain.Product, 0, len(items))
	for i := range items {
		items[i].SupplierID = 1
		items[i].SupplierName = "GlobalWholesale"
		if items[i].Category == "" {
			items[i].Category = catalogdomain.DefaultCategory
		}
		items[i].PriceGross = items[i].PriceNet.Mul(decimal.RequireFromString("1.255")).Round(2)
		items[i].CreatedAt = seededAt
		items[i].UpdatedAt = seededAt
		ptrs = append(ptrs, &items[i])
	}
	require.NoError(t, catalogrepo.Provide().UpsertBatch(context.Background(), conn, ptrs))
}

func item(id int64, name, brand, price string, stock int64) catalogdomain.Product {
	return catalogdomain.Product{
		ID:         id,
		ProductKey: fmt.Sprintf("K-%d", id),
		Name:       name,
		Brand:      brand,
		PriceNet:   decimal.RequireFromString(price),
		Stock:      stock,
	}
}

func newService(t *testing.T, c cache.Cache[domain.Response]) (*Service, *gorm.DB) {
	t.Helper()
	conn := testutil.OpenDB(t)
	svc := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Config:  config.Config{Search: config.SearchConfig{DefaultLimit: 50, MaxLimit: 200}},
		Repo:    catalogrepo.Provide(),
		Pricing: pricing.New(config.PricingConfig{VATRate: 0.255, DefaultMargin: 1.25, CategoryMargin: map[string]float64{"cable": 1.40}}),
		Cache:   c,
	})
	return svc.(*Service), conn
}

func request(q string, limit int) domain.Request {
	req := domain.NewRequest(q)
	req.Limit = limit
	return req
}

func TestSearchPaginationHasMore(t *testing.T) {
	svc, conn := newService(t, nil)
	items := make([]catalogdomain.Product, 0, 25)
	for i := 1; i <= 25; i++ {
		items = append(items, item(int64(i), fmt.Sprintf("USB cable %d", i), "Acme", fmt.Sprintf("%d.00", i), 1))
	}
	seed(t, conn, items...)

	resp, err := svc.Search(context.Background(), request("usb", 20))
	require.NoError(t, err)
	assert.Len(t, resp.Products, 20)
	assert.True(t, resp.HasMore)
	assert.Equal(t, 1.0, resp.Products[0].Price)
	assert.Equal(t, 20.0, resp.Products[19].Price)

	next := request("usb", 20)
	next.Offset = 20
	resp, err = svc.Search(context.Background(), next)
	require.NoError(t, err)
	assert.Len(t, resp.Products, 5)
	assert.False(t, resp.HasMore)
}

func TestSearchExactPageHasNoMore(t *testing.T) {
	svc, conn := newService(t, nil)
	items := make([]catalogdomain.Product, 0, 20)
	for i := 1; i <= 20; i++ {
		items = append(items, item(int64(i), fmt.Sprintf("USB cable %d", i), "Acme", "2.00", 3))
	}
	seed(t, conn, items...)

	resp, err := svc.Search(context.Background(), request("usb", 20))
	require.NoError(t, err)
	assert.Len(t, resp.Products, 20)
	assert.False(t, resp.HasMore)
}

func TestSearchStrictVersusFuzzy(t *testing.T) {
	svc, conn := newService(t, nil)
	seed(t, conn,
		item(1, "USB charger 20W", "Acme", "9.90", 4),
		item(2, "USB cable 1m", "Acme", "3.20", 2),
		item(3, "Wall charger", "Volt", "12.00", 1),
		item(4, "HDMI adapter", "Volt", "5.00", 8),
	)

	strict, err := svc.Search(context.Background(), request("usb charger", 0))
	require.NoError(t, err)
	assert.Equal(t, domain.ModeStrict, strict.Mode)
	assert.Equal(t, []string{"USB charger 20W"}, names(strict))
	assert.Equal(t, 50, strict.Limit)

	// Every token is required in fuzzy mode too, as a word prefix.
	req := request("usb charg", 0)
	req.StrictMode = false
	fuzzy, err := svc.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeFuzzy, fuzzy.Mode)
	assert.Equal(t, []string{"USB charger 20W"}, names(fuzzy))

	// "arger" is a substring of both chargers but starts no word.
	strict, err = svc.Search(context.Background(), request("arger", 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"USB charger 20W", "Wall charger"}, names(strict))

	req = request("arger", 0)
	req.StrictMode = false
	fuzzy, err = svc.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, fuzzy.Products)
}

// scriptedRepo answers Query from a fixed row set per match mode.
type scriptedRepo struct {
	catalogdomain.Repository
	rows  map[catalogdomain.MatchMode][]catalogdomain.Product
	calls []catalogdomain.QuerySpec
}

func (r *scriptedRepo) Query(_ context.Context, _ *gorm.DB, spec catalogdomain.QuerySpec) ([]catalogdomain.Product, error) {
	r.calls = append(r.calls, spec)
	rows := r.rows[spec.Mode]
	if spec.Offset >= len(rows) {
		return nil, nil
	}
	rows = rows[spec.Offset:]
	if len(rows) > spec.Limit {
		rows = rows[:spec.Limit]
	}
	return rows, nil
}

func newScriptedService(repo *scriptedRepo) *Service {
	return New(Params{
		Log:     zap.NewNop(),
		Config:  config.Config{Search: config.SearchConfig{DefaultLimit: 50, MaxLimit: 200}},
		Repo:    repo,
		Pricing: pricing.New(config.PricingConfig{VATRate: 0.255, DefaultMargin: 1.25}),
	}).(*Service)
}

func TestSearchFallsBackToFuzzy(t *testing.T) {
	repo := &scriptedRepo{rows: map[catalogdomain.MatchMode][]catalogdomain.Product{
		catalogdomain.MatchFuzzy: {item(1, "USB charger 20W", "Acme", "9.90", 4)},
	}}
	svc := newScriptedService(repo)

	resp, err := svc.Search(context.Background(), request("usb wireless", 0))
	require.NoError(t, err)
	assert.Equal(t, domain.ModeFuzzy, resp.Mode)
	assert.Equal(t, []string{"USB charger 20W"}, names(resp))

	noFallback := request("usb wireless", 0)
	noFallback.Fallback = false
	resp, err = svc.Search(context.Background(), noFallback)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeStrict, resp.Mode)
	assert.Empty(t, resp.Products)
}

func TestSearchFallbackHoldsAcrossPages(t *testing.T) {
	repo := &scriptedRepo{rows: map[catalogdomain.MatchMode][]catalogdomain.Product{
		catalogdomain.MatchFuzzy: {
			item(1, "USB charger 5W", "Acme", "4.00", 1),
			item(2, "USB charger 10W", "Acme", "6.00", 1),
			item(3, "USB charger 20W", "Acme", "9.90", 1),
		},
	}}
	svc := newScriptedService(repo)

	first, err := svc.Search(context.Background(), request("usb wireless", 2))
	require.NoError(t, err)
	assert.Equal(t, domain.ModeFuzzy, first.Mode)
	assert.Len(t, first.Products, 2)
	assert.True(t, first.HasMore)

	next := request("usb wireless", 2)
	next.Offset = 2
	second, err := svc.Search(context.Background(), next)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeFuzzy, second.Mode)
	assert.Equal(t, []string{"USB charger 20W"}, names(second))
	assert.False(t, second.HasMore)

	// Page two checks strict from the start before falling back.
	last := repo.calls[len(repo.calls)-2]
	assert.Equal(t, catalogdomain.MatchStrict, last.Mode)
	assert.Equal(t, 0, last.Offset)
}

func TestSearchStrictPageBeyondEndDoesNotFallBack(t *testing.T) {
	repo := &scriptedRepo{rows: map[catalogdomain.MatchMode][]catalogdomain.Product{
		catalogdomain.MatchStrict: {item(1, "USB charger", "Acme", "4.00", 1)},
		catalogdomain.MatchFuzzy:  {item(2, "USB hub", "Acme", "6.00", 1), item(3, "USB lamp", "Acme", "7.00", 1)},
	}}
	svc := newScriptedService(repo)

	req := request("usb", 1)
	req.Offset = 1
	resp, err := svc.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeStrict, resp.Mode)
	assert.Empty(t, resp.Products)
}

func names(resp *domain.Response) []string {
	out := make([]string, 0, len(resp.Products))
	for _, p := range resp.Products {
		out = append(out, p.Name)
	}
	return out
}

func TestSearchInStockWithLimitOne(t *testing.T) {
	svc, conn := newService(t, nil)
	seed(t, conn,
		item(1, "USB charger", "Acme", "9.90", 4),
		item(2, "USB cable", "Acme", "3.20", 0),
		item(3, "USB hub", "Volt", "19.00", 6),
	)

	resp, err := svc.Search(context.Background(), request("usb", 1))
	require.NoError(t, err)
	require.Len(t, resp.Products, 1)
	assert.True(t, resp.HasMore)
	assert.Equal(t, "USB charger", resp.Products[0].Name)

	all := request("usb", 0)
	all.InStock = false
	resp, err = svc.Search(context.Background(), all)
	require.NoError(t, err)
	assert.Len(t, resp.Products, 3)
}

func TestSearchMarginPricing(t *testing.T) {
	svc, conn := newService(t, nil)
	cable := item(1, "USB cable", "Acme", "10.00", 4)
	cable.Category = "Cables"
	seed(t, conn, cable)

	req := request("usb", 0)
	req.Pricing = domain.PricingMargin
	resp, err := svc.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, 17.57, resp.Products[0].PriceIncVAT)

	standard, err := svc.Search(context.Background(), request("usb", 0))
	require.NoError(t, err)
	assert.Equal(t, 12.55, standard.Products[0].PriceIncVAT)
}

func TestSearchValidation(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Search(ctx, request("a ?", 0))
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	_, err = svc.Search(ctx, request("usb", 201))
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)
	_, err = svc.Search(ctx, request("usb", -1))
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)

	req := request("usb", 0)
	req.Offset = -5
	_, err = svc.Search(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidOffset)

	req = request("usb", 0)
	req.Pricing = "wholesale"
	_, err = svc.Search(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidPricing)
}

func TestSearchServesFromCache(t *testing.T) {
	mem := cache.NewMemory[domain.Response](10, time.Minute)
	svc, conn := newService(t, mem)
	seed(t, conn, item(1, "USB charger", "Acme", "9.90", 4))

	first, err := svc.Search(context.Background(), request("USB  charger", 0))
	require.NoError(t, err)
	require.Len(t, first.Products, 1)
	assert.Equal(t, 1, mem.Len())

	require.NoError(t, conn.Exec("DELETE FROM products").Error)

	second, err := svc.Search(context.Background(), request("charger usb", 0))
	require.NoError(t, err)
	assert.Len(t, second.Products, 1)
	assert.Equal(t, "charger usb", second.Query)

	second.Products[0].Name = "changed"
	third, err := svc.Search(context.Background(), request("usb charger", 0))
	require.NoError(t, err)
	assert.Equal(t, "USB charger", third.Products[0].Name)
	assert.Equal(t, "usb charger", third.Query)

	_, err = svc.Search(context.Background(), request("?", 0))
	require.Error(t, err)
	assert.Equal(t, 1, mem.Len())
}
