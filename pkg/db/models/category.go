package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is a node in a tenant's category tree.
type Category struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TenantID  uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null;index:idx_categories_tenant_parent"`
	ParentID  *uuid.UUID `gorm:"column:parent_id;type:uuid;index:idx_categories_tenant_parent"`
	Name      string     `gorm:"column:name;not null"`
	Slug      *string    `gorm:"column:slug"`
	SortOrder int        `gorm:"column:sort_order;not null;default:0"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Category) TableName() string { return "categories" }
