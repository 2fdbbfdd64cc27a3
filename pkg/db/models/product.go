package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a tenant's catalog listing; variants hang off it.
type Product struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	TenantID         uuid.UUID        `gorm:"column:tenant_id;type:uuid;not null;index:idx_products_tenant_code"`
	Code             string           `gorm:"column:code;not null;index:idx_products_tenant_code"`
	Name             string           `gorm:"column:name;not null"`
	CategoryID       *uuid.UUID       `gorm:"column:category_id;type:uuid"`
	ShortDescription string           `gorm:"column:short_description;not null;default:''"`
	FullDescription  string           `gorm:"column:full_description;not null;default:''"`
	ImageURL         *string          `gorm:"column:image_url"`
	Variants         []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }
