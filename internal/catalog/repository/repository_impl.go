package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/catalogsync/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// insertChunk keeps multi-row inserts under sqlite's bound-parameter limit.
const insertChunk = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) DeleteBySupplier(ctx context.Context, db *gorm.DB, supplierID int64) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM products WHERE supplier_id = ?`, supplierID)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Clauses(onConflict()).Create(product).Error
}

func (r *repo) UpsertBatch(ctx context.Context, db *gorm.DB, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	return db.WithContext(ctx).Clauses(onConflict()).CreateInBatches(products, insertChunk).Error
}

func (r *repo) CountBySupplier(ctx context.Context, db *gorm.DB, supplierID int64) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Product{}).Where("supplier_id = ?", supplierID).Count(&count).Error
	return count, err
}

func (r *repo) Query(ctx context.Context, db *gorm.DB, spec domain.QuerySpec) ([]domain.Product, error) {
	if len(spec.Tokens) == 0 {
		return nil, fmt.Errorf("query without tokens: %w", gorm.ErrInvalidData)
	}

	stmt := db.WithContext(ctx).Model(&domain.Product{})
	if spec.InStock {
		stmt = stmt.Where("stock > 0")
	}

	switch spec.Mode {
	case domain.MatchFuzzy:
		expr, args := fuzzyCondition(db.Dialector.Name(), spec.Tokens)
		stmt = stmt.Where(expr, args...)
	default:
		for _, token := range spec.Tokens {
			pattern := "%" + token + "%"
			stmt = stmt.Where("(LOWER(name) LIKE ? OR LOWER(brand) LIKE ?)", pattern, pattern)
		}
	}

	var items []domain.Product
	err := stmt.
		Order("price_net ASC").
		Order("id ASC").
		Limit(spec.Limit).
		Offset(spec.Offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func onConflict() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "supplier_id"}, {Name: "product_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"price_net", "price_gross", "stock", "updated_at"}),
	}
}

// fuzzyCondition requires every token as a word prefix, using the dialect's
// full-text facility where there is one.
func fuzzyCondition(dialect string, tokens []string) (string, []any) {
	switch dialect {
	case "postgres":
		terms := make([]string, 0, len(tokens))
		for _, token := range tokens {
			terms = append(terms, "'"+strings.ReplaceAll(token, "'", "''")+"':*")
		}
		return "to_tsvector('simple', coalesce(name, '') || ' ' || coalesce(brand, '')) @@ to_tsquery('simple', ?)",
			[]any{strings.Join(terms, " & ")}
	case "mysql":
		terms := make([]string, 0, len(tokens))
		for _, token := range tokens {
			token = strings.Trim(token, `+-<>()~*"@.`)
			if token == "" {
				continue
			}
			terms = append(terms, "+"+token+"*")
		}
		return "MATCH(name, brand) AGAINST (? IN BOOLEAN MODE)", []any{strings.Join(terms, " ")}
	default:
		parts := make([]string, 0, len(tokens))
		args := make([]any, 0, len(tokens)*4)
		for _, token := range tokens {
			parts = append(parts, "(LOWER(name) LIKE ? OR LOWER(name) LIKE ? OR LOWER(brand) LIKE ? OR LOWER(brand) LIKE ?)")
			args = append(args, token+"%", "% "+token+"%", token+"%", "% "+token+"%")
		}
		return "(" + strings.Join(parts, " AND ") + ")", args
	}
}
