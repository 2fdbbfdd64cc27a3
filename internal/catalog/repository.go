package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-catalog/pkg/db"
	"github.com/angelmondragon/packfinderz-catalog/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
)

// Repository implements Store over the SQL catalog tables.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

func (r *Repository) ListCategories(ctx context.Context, tenantID uuid.UUID) ([]Category, error) {
	var rows []models.Category
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("sort_order ASC").
		Order("name ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return categoriesFromModels(rows), nil
}

func (r *Repository) FindCategories(ctx context.Context, tenantID uuid.UUID, parentID *uuid.UUID) ([]Category, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	var rows []models.Category
	if err := q.Order("sort_order ASC").Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return categoriesFromModels(rows), nil
}

func (r *Repository) CreateCategory(ctx context.Context, category Category) (Category, error) {
	if category.TenantID == uuid.Nil {
		return Category{}, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	row := models.Category{
		ID:        category.ID,
		TenantID:  category.TenantID,
		ParentID:  category.ParentID,
		Name:      category.Name,
		SortOrder: category.SortOrder,
	}
	if category.Slug != "" {
		slug := category.Slug
		row.Slug = &slug
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Category{}, createError(err, "category")
	}
	return categoryFromModel(row), nil
}

func (r *Repository) ListProducts(ctx context.Context, tenantID uuid.UUID) ([]Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	out := make([]Product, len(rows))
	for i, row := range rows {
		out[i] = productFromModel(row)
	}
	return out, nil
}

func (r *Repository) CreateProduct(ctx context.Context, product Product) (Product, error) {
	if product.TenantID == uuid.Nil {
		return Product{}, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	row := productToModel(product)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Product{}, createError(err, "product")
	}
	return productFromModel(row), nil
}

// UpdateProduct overwrites the product's imported fields.
func (r *Repository) UpdateProduct(ctx context.Context, product Product) (Product, error) {
	row := productToModel(product)
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND tenant_id = ?", product.ID, product.TenantID).
		Updates(map[string]any{
			"code":              row.Code,
			"name":              row.Name,
			"category_id":       row.CategoryID,
			"short_description": row.ShortDescription,
			"full_description":  row.FullDescription,
			"image_url":         row.ImageURL,
		})
	if res.Error != nil {
		return Product{}, res.Error
	}
	if res.RowsAffected == 0 {
		return Product{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", product.ID))
	}

	var stored models.Product
	if err := r.db.WithContext(ctx).First(&stored, "id = ?", product.ID).Error; err != nil {
		if db.IsNotFound(err) {
			return Product{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, fmt.Sprintf("product %s not found", product.ID))
		}
		return Product{}, err
	}
	return productFromModel(stored), nil
}

func (r *Repository) ListVariants(ctx context.Context, tenantID, productID uuid.UUID) ([]Variant, error) {
	var rows []models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("position ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	out := make([]Variant, len(rows))
	for i, row := range rows {
		out[i] = variantFromModel(row)
	}
	return out, nil
}

func (r *Repository) CreateVariant(ctx context.Context, variant Variant) (Variant, error) {
	if variant.TenantID == uuid.Nil || variant.ProductID == uuid.Nil {
		return Variant{}, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and product id are required")
	}
	if variant.ID == uuid.Nil {
		variant.ID = uuid.New()
	}
	row := models.ProductVariant{
		ID:          variant.ID,
		TenantID:    variant.TenantID,
		ProductID:   variant.ProductID,
		SKU:         variant.SKU,
		Size:        variant.Size,
		Finish:      variant.Finish,
		PackingSize: variant.PackingSize,
		HSNCode:     variant.HSNCode,
		Material:    variant.Material,
		Notes:       variant.Notes,
		Price:       variant.Price,
		Position:    variant.Position,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Variant{}, createError(err, "variant")
	}
	return variantFromModel(row), nil
}

func (r *Repository) DeleteVariant(ctx context.Context, tenantID, variantID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", variantID, tenantID).
		Delete(&models.ProductVariant{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("variant %s not found", variantID))
	}
	return nil
}

// createError maps a primary key collision to a conflict so a retried insert
// with the same id is recognized.
func createError(err error, kind string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, kind+" already exists")
	}
	return err
}

func categoriesFromModels(rows []models.Category) []Category {
	out := make([]Category, len(rows))
	for i, row := range rows {
		out[i] = categoryFromModel(row)
	}
	return out
}

func categoryFromModel(row models.Category) Category {
	c := Category{
		ID:        row.ID,
		TenantID:  row.TenantID,
		Name:      row.Name,
		ParentID:  row.ParentID,
		SortOrder: row.SortOrder,
	}
	if row.Slug != nil {
		c.Slug = *row.Slug
	}
	return c
}

func productToModel(p Product) models.Product {
	row := models.Product{
		ID:               p.ID,
		TenantID:         p.TenantID,
		Code:             p.Code,
		Name:             p.Name,
		CategoryID:       p.CategoryID,
		ShortDescription: p.ShortDescription,
		FullDescription:  p.FullDescription,
	}
	if p.ImageURL != "" {
		url := p.ImageURL
		row.ImageURL = &url
	}
	return row
}

func productFromModel(row models.Product) Product {
	p := Product{
		ID:               row.ID,
		TenantID:         row.TenantID,
		Code:             row.Code,
		Name:             row.Name,
		CategoryID:       row.CategoryID,
		ShortDescription: row.ShortDescription,
		FullDescription:  row.FullDescription,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.ImageURL != nil {
		p.ImageURL = *row.ImageURL
	}
	return p
}

func variantFromModel(row models.ProductVariant) Variant {
	return Variant{
		ID:          row.ID,
		TenantID:    row.TenantID,
		ProductID:   row.ProductID,
		SKU:         row.SKU,
		Size:        row.Size,
		Finish:      row.Finish,
		PackingSize: row.PackingSize,
		HSNCode:     row.HSNCode,
		Material:    row.Material,
		Notes:       row.Notes,
		Price:       row.Price,
		Position:    row.Position,
	}
}
