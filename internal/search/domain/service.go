package domain

import (
	"context"
	"errors"
)

const (
	PricingStandard = "standard"
	PricingMargin   = "margin"

	ModeStrict = "strict"
	ModeFuzzy  = "fuzzy"
)

type Service interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

// Request is a catalog search. Use NewRequest for the documented defaults.
type Request struct {
	Query      string
	InStock    bool
	StrictMode bool
	Fallback   bool
	Limit      int
	Offset     int
	Pricing    string
}

func NewRequest(query string) Request {
	return Request{
		Query:      query,
		InStock:    true,
		StrictMode: true,
		Fallback:   true,
		Pricing:    PricingStandard,
	}
}

type Response struct {
	Query    string    `json:"query"`
	Tokens   []string  `json:"tokens"`
	Mode     string    `json:"mode"`
	Products []Product `json:"products"`
	HasMore  bool      `json:"has_more"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

type Product struct {
	Supplier    string  `json:"supplier"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	PriceIncVAT float64 `json:"price_inc_vat"`
	Stock       int64   `json:"stock"`
	Link        *string `json:"link,omitempty"`
	Image       *string `json:"image,omitempty"`
	EAN         *string `json:"ean,omitempty"`
}

var (
	ErrInvalidQuery   = errors.New("invalid_query")
	ErrInvalidLimit   = errors.New("invalid_limit")
	ErrInvalidOffset  = errors.New("invalid_offset")
	ErrInvalidPricing = errors.New("invalid_pricing")
)
