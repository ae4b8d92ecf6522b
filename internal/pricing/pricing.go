package pricing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/catalogsync/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing",
	fx.Provide(func(cfg config.Config) *Calculator { return New(cfg.Pricing) }),
)

var one = decimal.NewFromInt(1)

type categoryMargin struct {
	keyword    string
	multiplier decimal.Decimal
}

// Calculator derives consumer prices from supplier net prices. One instance is
// shared by every supplier so VAT is configured in exactly one place.
type Calculator struct {
	vat           decimal.Decimal
	defaultMargin decimal.Decimal
	margins       []categoryMargin
}

func New(cfg config.PricingConfig) *Calculator {
	c := &Calculator{
		vat:           decimal.NewFromFloat(cfg.VATRate),
		defaultMargin: decimal.NewFromFloat(cfg.DefaultMargin),
	}
	if cfg.DefaultMargin <= 0 {
		c.defaultMargin = one
	}
	for keyword, multiplier := range cfg.CategoryMargin {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" || multiplier <= 0 {
			continue
		}
		c.margins = append(c.margins, categoryMargin{keyword: keyword, multiplier: decimal.NewFromFloat(multiplier)})
	}
	// Longest keyword first so "usb cable" beats "cable".
	sort.Slice(c.margins, func(i, j int) bool {
		if len(c.margins[i].keyword) != len(c.margins[j].keyword) {
			return len(c.margins[i].keyword) > len(c.margins[j].keyword)
		}
		return c.margins[i].keyword < c.margins[j].keyword
	})
	return c
}

func (c *Calculator) VATRate() decimal.Decimal {
	return c.vat
}

// Gross returns net * (1 + VAT) rounded half away from zero to cents. A nil
// net price yields zero.
func (c *Calculator) Gross(net *decimal.Decimal) decimal.Decimal {
	if net == nil {
		return decimal.Zero
	}
	return net.Mul(one.Add(c.vat)).Round(2)
}

// TargetMargin returns the markup multiplier for a category.
func (c *Calculator) TargetMargin(category string) decimal.Decimal {
	category = strings.ToLower(category)
	for _, m := range c.margins {
		if strings.Contains(category, m.keyword) {
			return m.multiplier
		}
	}
	return c.defaultMargin
}

// MarginPrice is the VAT-inclusive retail price after the category markup.
func (c *Calculator) MarginPrice(net decimal.Decimal, category string) decimal.Decimal {
	return net.Mul(c.TargetMargin(category)).Mul(one.Add(c.vat)).Round(2)
}
