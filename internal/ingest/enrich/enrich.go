// Package enrich overlays secondary feed values onto normalized products.
package enrich

import (
	"strings"

	catalogdomain "github.com/smallbiznis/catalogsync/internal/catalog/domain"
	"github.com/smallbiznis/catalogsync/internal/ingest/normalize"
	"github.com/smallbiznis/catalogsync/internal/ingest/source"
)

// Stock overwrites the stock of every product whose key appears in the table
// and returns how many products were touched. A blank value counts as absent,
// an unparsable one sets stock to zero.
func Stock(products []*catalogdomain.Product, table source.StockTable) int {
	if len(products) == 0 || len(table) == 0 {
		return 0
	}

	index := make(map[string][]*catalogdomain.Product, len(products))
	for _, p := range products {
		if p == nil {
			continue
		}
		index[p.ProductKey] = append(index[p.ProductKey], p)
	}

	enriched := 0
	for key, value := range table {
		matches, ok := index[strings.TrimSpace(key)]
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		stock := normalize.ParseStock(value)
		for _, p := range matches {
			p.Stock = stock
			enriched++
		}
	}
	return enriched
}
