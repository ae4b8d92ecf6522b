package enrich

import (
	"testing"

	catalogdomain "github.com/smallbiznis/catalogsync/internal/catalog/domain"
	"github.com/smallbiznis/catalogsync/internal/ingest/source"
	"github.com/stretchr/testify/assert"
)

func product(key string, stock int64) *catalogdomain.Product {
	return &catalogdomain.Product{ProductKey: key, Stock: stock}
}

func TestStockOverridesMatchingProducts(t *testing.T) {
	products := []*catalogdomain.Product{
		product("A1", 0),
		product("B2", 7),
		product("C3", 4),
		product("D4", 9),
	}
	table := source.StockTable{
		"A1": "12",
		"B2": "n/a",
		"D4": "  ",
		"Z9": "100",
	}

	enriched := Stock(products, table)

	assert.Equal(t, 2, enriched)
	assert.Equal(t, int64(12), products[0].Stock)
	assert.Equal(t, int64(0), products[1].Stock)
	assert.Equal(t, int64(4), products[2].Stock)
	assert.Equal(t, int64(9), products[3].Stock)
}

func TestStockEmptyInputs(t *testing.T) {
	assert.Equal(t, 0, Stock(nil, source.StockTable{"A": "1"}))
	p := product("A", 3)
	assert.Equal(t, 0, Stock([]*catalogdomain.Product{p}, nil))
	assert.Equal(t, int64(3), p.Stock)
}
