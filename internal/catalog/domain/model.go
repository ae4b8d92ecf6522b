package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const DefaultCategory = "Uncategorized"

// Product is the canonical catalog row shared by every supplier.
type Product struct {
	ID           int64           `json:"id" gorm:"primaryKey;autoIncrement:false;index:idx_products_price_id,priority:2"`
	SupplierID   int64           `json:"supplier_id" gorm:"not null;uniqueIndex:ux_products_supplier_key,priority:1"`
	SupplierName string          `json:"supplier_name" gorm:"type:varchar(255);not null;default:''"`
	ProductKey   string          `json:"product_key" gorm:"type:varchar(191);not null;uniqueIndex:ux_products_supplier_key,priority:2"`
	EAN          *string         `json:"ean,omitempty" gorm:"column:ean;type:varchar(64)"`
	Name         string          `json:"name" gorm:"type:varchar(512);not null"`
	Brand        string          `json:"brand" gorm:"type:varchar(255);not null;default:''"`
	Category     string          `json:"category" gorm:"type:varchar(255);not null;default:'Uncategorized'"`
	Slug         string          `json:"slug" gorm:"type:varchar(512);not null;default:''"`
	PriceNet     decimal.Decimal `json:"price_net" gorm:"type:decimal(12,2);not null;default:0;index:idx_products_price_id,priority:1;check:chk_products_price_net,price_net >= 0"`
	PriceGross   decimal.Decimal `json:"price_gross" gorm:"type:decimal(12,2);not null;default:0;check:chk_products_price_gross,price_gross >= 0"`
	Stock        int64           `json:"stock" gorm:"not null;default:0;check:chk_products_stock,stock >= 0"`
	Link         *string         `json:"link,omitempty" gorm:"type:text"`
	Image        *string         `json:"image,omitempty" gorm:"type:text"`
	RawPayload   datatypes.JSON  `json:"-" gorm:"type:json"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }
