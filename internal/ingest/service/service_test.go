package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/catalogsync/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/catalogsync/internal/catalog/repository"
	"github.com/smallbiznis/catalogsync/internal/clock"
	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"github.com/smallbiznis/catalogsync/internal/ingest/fetch"
	"github.com/smallbiznis/catalogsync/internal/ingest/normalize"
	"github.com/smallbiznis/catalogsync/internal/ingest/repository"
	"github.com/smallbiznis/catalogsync/internal/ingest/writer"
	"github.com/smallbiznis/catalogsync/internal/pricing"
	"github.com/smallbiznis/catalogsync/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const treePayload = `<?xml version="1.0" encoding="UTF-8"?>
<PriceList>
  <Products>
    <Product>
      <Brand>Acme</Brand>
      <Identifiers><Barcode>6410000000001</Barcode><ItemNumber>A-1</ItemNumber></Identifiers>
      <Descriptions><ProductName>USB charger 20W</ProductName></Descriptions>
      <Prices><NetPrice>10.00</NetPrice></Prices>
      <Inventory><OnHand>5</OnHand></Inventory>
    </Product>
    <Product>
      <Brand>Volt</Brand>
      <Identifiers><ItemNumber>V-2</ItemNumber></Identifiers>
      <Descriptions><ProductName>USB cable 1m</ProductName></Descriptions>
      <Prices><NetPrice>3,50</NetPrice></Prices>
      <Inventory><OnHand>0</OnHand></Inventory>
    </Product>
    <Product>
      <Brand>Ghost</Brand>
      <Descriptions><ProductName>Nameless</ProductName></Descriptions>
    </Product>
  </Products>
</PriceList>`

type fetcherMock struct {
	mock.Mock
}

func (m *fetcherMock) Fetch(ctx context.Context, supplier config.SupplierConfig) (*fetch.Payload, error) {
	args := m.Called(ctx, supplier.ID)
	payload, _ := args.Get(0).(*fetch.Payload)
	return payload, args.Error(1)
}

type lockStub struct {
	acquired bool
	err      error
	released int
}

func (l *lockStub) Acquire(context.Context, int64) (func(), bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func() { l.released++ }, true, nil
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	fetcher *fetcherMock
}

func newFixture(t *testing.T, lock domain.RunLock) *fixture {
	t.Helper()

	conn := testutil.OpenDB(t)
	holder, err := config.NewStaticSuppliers(config.DefaultSuppliers())
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC))
	calc := pricing.New(config.PricingConfig{VATRate: 0.255, DefaultMargin: 1.25})
	f := &fetcherMock{}

	svc := newService(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Config:     config.Config{Ingest: config.IngestConfig{MaxConcurrency: 2, BatchSize: 100}},
		Suppliers:  holder,
		Repo:       repository.Provide(),
		Fetcher:    f,
		Artifacts:  fetch.NewArtifactStoreWithFs(afero.NewMemMapFs(), "data"),
		Normalizer: normalize.New(calc, node, clk, nil),
		Writer:     writer.NewWriter(conn, catalogrepo.Provide(), 100, nil),
		Lock:       lock,
	})
	return &fixture{svc: svc, db: conn, fetcher: f}
}

func delimitedPayload(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("pricelist-11.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const delimitedBody = "brand;product_id;category;name;stock;price;ean\n" +
	"Acme;P-1;Cables;USB cable 1m;5;3.20;6410000000001\n" +
	"Volt;P-2;Chargers;USB charger 20W;2;9,90;\n" +
	"Broken;P-3;Chargers\n"

func products(t *testing.T, conn *gorm.DB, supplierID int64) map[string]catalogdomain.Product {
	t.Helper()
	var items []catalogdomain.Product
	require.NoError(t, conn.Where("supplier_id = ?", supplierID).Find(&items).Error)
	out := make(map[string]catalogdomain.Product, len(items))
	for _, item := range items {
		out[item.ProductKey] = item
	}
	return out
}

func TestRunTreeSupplier(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.On("Fetch", mock.Anything, int64(1)).
		Return(&fetch.Payload{Data: []byte(treePayload), Ext: "xml"}, nil).Once()

	summary, err := f.svc.Run(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, domain.StatusSucceeded, summary.Status)
	assert.Equal(t, config.ModeIncremental, summary.Mode)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, summary.Error)
	assert.NotEmpty(t, summary.Artifact)

	stored := products(t, f.db, 1)
	require.Len(t, stored, 2)
	assert.Equal(t, "USB charger 20W", stored["6410000000001"].Name)
	assert.Equal(t, "3.50", stored["V-2"].PriceNet.StringFixed(2))

	runs, err := f.svc.ListRuns(context.Background(), domain.ListRunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.StatusSucceeded, runs[0].Status)
	assert.Equal(t, 2, runs[0].Inserted)
	require.NotNil(t, runs[0].ArtifactPath)
	assert.Equal(t, summary.Artifact, *runs[0].ArtifactPath)
	f.fetcher.AssertExpectations(t)
}

func TestRunDelimitedSupplierEnrichesStock(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.On("Fetch", mock.Anything, int64(2)).Return(&fetch.Payload{
		Data:  delimitedPayload(t, delimitedBody),
		Ext:   "zip",
		Stock: []byte("ProductID\tAvailableQuantity\nP-1\t42\nP-9\t1\n"),
	}, nil).Once()

	summary, err := f.svc.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, config.ModeFullRefresh, summary.Mode)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Enriched)

	stored := products(t, f.db, 2)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(42), stored["P-1"].Stock)
	assert.Equal(t, int64(2), stored["P-2"].Stock)
	require.NotNil(t, stored["P-1"].Link)
	assert.Equal(t, "https://shop.supplier-b.com/detail?id=P-1", *stored["P-1"].Link)
}

func TestRunUnreadablePayloadKeepsPartition(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.On("Fetch", mock.Anything, int64(2)).
		Return(&fetch.Payload{Data: delimitedPayload(t, delimitedBody), Ext: "zip"}, nil).Once()
	f.fetcher.On("Fetch", mock.Anything, int64(2)).
		Return(&fetch.Payload{Data: []byte("truncated download"), Ext: "zip"}, nil).Once()

	_, err := f.svc.Run(context.Background(), 2)
	require.NoError(t, err)

	summary, err := f.svc.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, summary.Status)
	assert.Equal(t, 0, summary.Inserted)
	assert.NotEmpty(t, summary.Error)
	assert.Len(t, products(t, f.db, 2), 2)
}

func TestRunFetchFailureFailsRun(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.On("Fetch", mock.Anything, int64(1)).
		Return(nil, fmt.Errorf("%w after 3 attempts: connection refused", domain.ErrFetchExhausted)).Once()

	summary, err := f.svc.Run(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetchExhausted)
	require.NotNil(t, summary)
	assert.Equal(t, domain.StatusFailed, summary.Status)
	assert.Contains(t, summary.Error, "connection refused")
	assert.Empty(t, products(t, f.db, 1))

	runs, err := f.svc.ListRuns(context.Background(), domain.ListRunsRequest{SupplierID: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.StatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Error)
}

func TestReplayUsesStoredArtifact(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.On("Fetch", mock.Anything, int64(1)).
		Return(&fetch.Payload{Data: []byte(treePayload), Ext: "xml"}, nil).Once()

	first, err := f.svc.Run(context.Background(), 1)
	require.NoError(t, err)

	replayed, err := f.svc.Replay(context.Background(), 1, first.Artifact)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, replayed.Status)
	assert.Equal(t, 2, replayed.Inserted)
	assert.Equal(t, first.Artifact, replayed.Artifact)
	assert.Len(t, products(t, f.db, 1), 2)
	f.fetcher.AssertNumberOfCalls(t, "Fetch", 1)

	_, err = f.svc.Replay(context.Background(), 1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArtifact)

	summary, err := f.svc.Replay(context.Background(), 1, "missing.xml")
	assert.ErrorIs(t, err, domain.ErrInvalidArtifact)
	require.NotNil(t, summary)
	assert.Equal(t, domain.StatusFailed, summary.Status)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.On("Fetch", mock.Anything, int64(1)).
		Return(&fetch.Payload{Data: []byte(treePayload), Ext: "xml"}, nil).Once()
	f.fetcher.On("Fetch", mock.Anything, int64(2)).
		Return(nil, fmt.Errorf("%w: timeout", domain.ErrFetchExhausted)).Once()

	summaries, err := f.svc.RunAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetchExhausted)
	require.Len(t, summaries, 2)

	byID := map[int64]domain.Summary{}
	for _, s := range summaries {
		byID[s.SupplierID] = s
	}
	assert.Equal(t, domain.StatusSucceeded, byID[1].Status)
	assert.Equal(t, 2, byID[1].Inserted)
	assert.Equal(t, domain.StatusFailed, byID[2].Status)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.running.Store(int64(1), struct{}{})

	_, err := f.svc.Run(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrRunInProgress)
	f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestRunHonorsSharedLock(t *testing.T) {
	held := &lockStub{acquired: false}
	f := newFixture(t, held)
	_, err := f.svc.Run(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	free := &lockStub{acquired: true}
	f = newFixture(t, free)
	f.fetcher.On("Fetch", mock.Anything, int64(1)).
		Return(&fetch.Payload{Data: []byte(treePayload), Ext: "xml"}, nil).Once()
	_, err = f.svc.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, free.released)

	broken := &lockStub{err: errors.New("redis down")}
	f = newFixture(t, broken)
	f.fetcher.On("Fetch", mock.Anything, int64(1)).
		Return(&fetch.Payload{Data: []byte(treePayload), Ext: "xml"}, nil).Once()
	_, err = f.svc.Run(context.Background(), 1)
	require.NoError(t, err)
}

func TestRunUnknownSupplier(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Run(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrSupplierNotFound)
	_, err = f.svc.Replay(context.Background(), 42, "x.xml")
	assert.ErrorIs(t, err, domain.ErrSupplierNotFound)
}

func TestListRunsValidatesLimit(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.ListRuns(context.Background(), domain.ListRunsRequest{Limit: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)
	_, err = f.svc.ListRuns(context.Background(), domain.ListRunsRequest{Limit: domain.MaxListLimit + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)
	runs, err := f.svc.ListRuns(context.Background(), domain.ListRunsRequest{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
