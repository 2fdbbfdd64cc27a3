package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductVariant is one priced, SKU'd combination of a product's attributes.
type ProductVariant struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	SKU         string          `gorm:"column:sku;not null"`
	Size        string          `gorm:"column:size;not null;default:''"`
	Finish      string          `gorm:"column:finish;not null;default:''"`
	PackingSize string          `gorm:"column:packing_size;not null;default:''"`
	HSNCode     string          `gorm:"column:hsn_code;not null;default:''"`
	Material    string          `gorm:"column:material;not null;default:''"`
	Notes       string          `gorm:"column:notes;not null;default:''"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Position    int             `gorm:"column:position;not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductVariant) TableName() string { return "product_variants" }
