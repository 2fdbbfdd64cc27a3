package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-catalog/internal/categories"
	"github.com/angelmondragon/packfinderz-catalog/internal/duplicates"
)

// Category is a stored category document.
type Category struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenantId"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug,omitempty"`
	ParentID  *uuid.UUID `json:"parentId,omitempty"`
	SortOrder int        `json:"sortOrder"`
}

// Product is a stored product document.
type Product struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         uuid.UUID  `json:"tenantId"`
	Code             string     `json:"code"`
	Name             string     `json:"name"`
	CategoryID       *uuid.UUID `json:"categoryId,omitempty"`
	ShortDescription string     `json:"shortDescription,omitempty"`
	FullDescription  string     `json:"fullDescription,omitempty"`
	ImageURL         string     `json:"imageUrl,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Variant is a stored product variant document.
type Variant struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenantId"`
	ProductID   uuid.UUID       `json:"productId"`
	SKU         string          `json:"sku"`
	Size        string          `json:"size,omitempty"`
	Finish      string          `json:"finish,omitempty"`
	PackingSize string          `json:"packingSize,omitempty"`
	HSNCode     string          `json:"hsnCode,omitempty"`
	Material    string          `json:"material,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Position    int             `json:"position"`
}

// Store is the document store the import engine writes to. Every call is
// scoped to one tenant and may fail transiently.
type Store interface {
	ListCategories(ctx context.Context, tenantID uuid.UUID) ([]Category, error)
	// FindCategories lists the direct children of parentID, or roots when nil.
	FindCategories(ctx context.Context, tenantID uuid.UUID, parentID *uuid.UUID) ([]Category, error)
	CreateCategory(ctx context.Context, category Category) (Category, error)

	ListProducts(ctx context.Context, tenantID uuid.UUID) ([]Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	UpdateProduct(ctx context.Context, product Product) (Product, error)

	ListVariants(ctx context.Context, tenantID, productID uuid.UUID) ([]Variant, error)
	CreateVariant(ctx context.Context, variant Variant) (Variant, error)
	DeleteVariant(ctx context.Context, tenantID, variantID uuid.UUID) error
}

// Node converts a stored category into a resolver node.
func (c Category) Node() categories.Node {
	return categories.Node{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		ParentID:  c.ParentID,
		SortOrder: c.SortOrder,
	}
}

// Tree builds a resolver snapshot from stored categories.
func Tree(stored []Category) *categories.Tree {
	nodes := make([]categories.Node, len(stored))
	for i, c := range stored {
		nodes[i] = c.Node()
	}
	return categories.NewTree(nodes)
}

// Index builds a duplicate detection index from stored products.
func Index(stored []Product) *duplicates.Index {
	existing := make([]duplicates.Existing, len(stored))
	for i, p := range stored {
		existing[i] = duplicates.Existing{
			ID:        p.ID,
			Code:      p.Code,
			Name:      p.Name,
			UpdatedAt: p.UpdatedAt,
		}
	}
	return duplicates.NewIndex(existing)
}
