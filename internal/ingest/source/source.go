package source

import (
	"fmt"

	"github.com/smallbiznis/catalogsync/internal/config"
)

// RawRecord is one supplier record as decoded from the feed.
type RawRecord map[string]any

// ParseResult carries the decoded records and the rows dropped while decoding.
type ParseResult struct {
	Records []RawRecord
	Skipped int
}

// Adapter decodes a supplier payload into raw records. An error means the
// payload as a whole was unreadable.
type Adapter interface {
	Parse(payload []byte) (ParseResult, error)
}

// New picks the adapter for the supplier's format.
func New(cfg config.SupplierConfig) (Adapter, error) {
	switch cfg.Format {
	case config.FormatTree:
		return NewTreeAdapter(cfg.Tree), nil
	case config.FormatDelimited:
		return NewDelimitedAdapter(cfg.Delimited), nil
	default:
		return nil, fmt.Errorf("unknown format %q", cfg.Format)
	}
}
