package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/catalogsync/internal/config"
)

var ErrStockColumns = errors.New("stock_columns_missing")

// StockTable maps a product key to its raw secondary stock value.
type StockTable map[string]string

// ParseStockTable reads a tab or semicolon separated table with a header row.
// Key and value columns are picked by the first matching alias.
func ParseStockTable(payload []byte, cfg config.StockFeedConfig, encodingLabel string) (StockTable, error) {
	reader, err := decodeReader(encodingLabel, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffSeparator(data)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return StockTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stock header: %w", err)
	}

	keyIdx := columnIndex(header, cfg.Key)
	valueIdx := columnIndex(header, cfg.Value)
	if keyIdx < 0 || valueIdx < 0 {
		return nil, fmt.Errorf("%w: have %v", ErrStockColumns, header)
	}

	table := StockTable{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, fmt.Errorf("read stock row: %w", err)
		}
		if keyIdx >= len(row) || valueIdx >= len(row) {
			continue
		}
		key := strings.TrimSpace(row[keyIdx])
		if key == "" {
			continue
		}
		table[key] = strings.TrimSpace(row[valueIdx])
	}
	return table, nil
}

func columnIndex(header []string, aliases []string) int {
	for _, alias := range aliases {
		for i, col := range header {
			col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
			if strings.EqualFold(col, alias) {
				return i
			}
		}
	}
	return -1
}

func sniffSeparator(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}
	if bytes.IndexByte(line, '\t') >= 0 {
		return '\t'
	}
	return ';'
}
