package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/catalogsync/internal/catalog/domain"
	"github.com/smallbiznis/catalogsync/internal/clock"
	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/smallbiznis/catalogsync/internal/ingest/source"
	"github.com/smallbiznis/catalogsync/internal/pricing"
	"go.uber.org/zap"
)

const (
	ReasonMissingIdentity = "missing_identity"
	ReasonPanic           = "normalize_panic"
	ReasonPayload         = "invalid_payload"
)

// Outcome is the per-record result: a product or the reason it was dropped.
type Outcome struct {
	Product    *catalogdomain.Product
	SkipReason string
}

func Ok(p *catalogdomain.Product) Outcome { return Outcome{Product: p} }

func Skip(reason string) Outcome { return Outcome{SkipReason: reason} }

func (o Outcome) IsOk() bool { return o.Product != nil }

// Context identifies the supplier a record belongs to and how its fields map.
type Context struct {
	SupplierID   int64
	SupplierName string
	Format       string
	Mapping      config.MappingConfig
	LinkTemplate string
}

func ContextFor(cfg config.SupplierConfig) Context {
	return Context{
		SupplierID:   cfg.ID,
		SupplierName: cfg.Name,
		Format:       cfg.Format,
		Mapping:      cfg.Mapping,
		LinkTemplate: cfg.LinkTemplate,
	}
}

type Normalizer struct {
	pricing *pricing.Calculator
	genID   *snowflake.Node
	clock   clock.Clock
	log     *zap.Logger
}

func New(calc *pricing.Calculator, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{
		pricing: calc,
		genID:   genID,
		clock:   clk,
		log:     log.Named("ingest.normalize"),
	}
}

// Normalize maps one raw record onto the canonical product. It never panics.
func (n *Normalizer) Normalize(raw source.RawRecord, sc Context) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			if n.log != nil {
				n.log.Debug("normalize panic recovered", zap.Int64("supplier_id", sc.SupplierID), zap.Any("panic", r))
			}
			out = Skip(ReasonPanic)
		}
	}()

	m := sc.Mapping
	brand, _ := source.FirstText(raw, m.Brand)
	name, _ := source.FirstText(raw, m.Name)
	if name == "" {
		name = strings.TrimSpace(brand + " Product")
	}

	barcode, _ := source.FirstText(raw, m.Barcode)
	itemNumber, _ := source.FirstText(raw, m.ItemNumber)
	// Tree feeds are keyed by barcode; delimited feeds by their product id column.
	key := barcode
	if key == "" || (sc.Format == config.FormatDelimited && itemNumber != "") {
		key = itemNumber
	}
	if key == "" {
		return Skip(ReasonMissingIdentity)
	}

	priceText, _ := source.FirstText(raw, m.Price)
	net := ParsePrice(priceText)
	stockText, _ := source.FirstText(raw, m.Stock)

	payload, err := json.Marshal(sanitize(map[string]any(raw)))
	if err != nil {
		return Skip(ReasonPayload)
	}

	now := n.clock.Now()
	p := &catalogdomain.Product{
		ID:           n.genID.Generate().Int64(),
		SupplierID:   sc.SupplierID,
		SupplierName: sc.SupplierName,
		ProductKey:   key,
		Name:         name,
		Brand:        brand,
		Category:     category(raw, m.Category),
		Slug:         slug.Make(strings.TrimSpace(brand + " " + name)),
		PriceNet:     net,
		PriceGross:   n.pricing.Gross(&net),
		Stock:        ParseStock(stockText),
		Image:        image(raw, m.Image),
		RawPayload:   payload,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if barcode != "" {
		p.EAN = &barcode
	}
	link := resolveLink(raw, m.Link, sc.LinkTemplate, key, barcode)
	p.Link = &link

	return Ok(p)
}

// ParsePrice reads a decimal that may use a decimal comma. Unparsable or
// negative input yields zero.
func ParsePrice(s string) decimal.Decimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return decimal.Zero
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

// ParseStock reads an integer quantity, truncating fractional input such as
// "3.0". Unparsable or negative input yields zero.
func ParseStock(s string) int64 {
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}

func category(raw source.RawRecord, paths []string) string {
	for _, p := range paths {
		items := source.List(raw, source.SplitPath(p)...)
		if len(items) == 0 {
			continue
		}
		if text, ok := source.Text(items[len(items)-1]); ok && text != "" {
			return text
		}
	}
	return catalogdomain.DefaultCategory
}

func image(raw source.RawRecord, m config.ImageMapping) *string {
	if m.Assets == "" {
		return nil
	}
	for _, asset := range source.List(raw, source.SplitPath(m.Assets)...) {
		kind, _ := source.Text(asset, source.SplitPath(m.TypeField)...)
		if kind != m.TypeValue {
			continue
		}
		if value, ok := source.Text(asset, source.SplitPath(m.ValueField)...); ok && value != "" {
			return &value
		}
	}
	return nil
}

func resolveLink(raw source.RawRecord, paths []string, template, key, ean string) string {
	if link, ok := source.FirstText(raw, paths); ok && link != "" {
		return link
	}
	if template != "" {
		return strings.NewReplacer("{product_key}", key, "{ean}", ean).Replace(template)
	}
	return "#"
}

// sanitize replaces NaN and Inf, which encoding/json refuses, with null.
func sanitize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = sanitize(val)
		}
		return out
	case source.RawRecord:
		return sanitize(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitize(val)
		}
		return out
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return nil
		}
		return t
	default:
		return v
	}
}
