package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-catalog/internal/catalog"
	"github.com/angelmondragon/packfinderz-catalog/pkg/config"
)

const (
	fieldTenantID  = "tenantId"
	fieldParentID  = "parentId"
	fieldProductID = "productId"
)

// Collections names the collections the store reads and writes.
type Collections struct {
	Products       string
	Variants       string
	Categories     string
	DuplicateIndex string
}

// CollectionsFrom reads collection ids from config.
func CollectionsFrom(cfg config.DocStoreConfig) Collections {
	c := Collections{
		Products:       cfg.ProductsCollection,
		Variants:       cfg.VariantsCollection,
		Categories:     cfg.CategoriesCollection,
		DuplicateIndex: cfg.DuplicateIndexSource,
	}
	if c.DuplicateIndex == "" {
		c.DuplicateIndex = c.Products
	}
	return c
}

// Store implements catalog.Store on top of Client.
type Store struct {
	client      *Client
	collections Collections
	ids         *docIDs
}

// NewStore builds a Store.
func NewStore(client *Client, collections Collections) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("docstore client is required")
	}
	if collections.Products == "" || collections.Variants == "" || collections.Categories == "" {
		return nil, fmt.Errorf("docstore collections are required")
	}
	if collections.DuplicateIndex == "" {
		collections.DuplicateIndex = collections.Products
	}
	return &Store{client: client, collections: collections, ids: newDocIDs()}, nil
}

var _ catalog.Store = (*Store)(nil)

// Ping checks the categories collection is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, s.collections.Categories)
}

type categoryDoc struct {
	TenantID  string  `json:"tenantId"`
	Name      string  `json:"name"`
	Slug      *string `json:"slug"`
	ParentID  *string `json:"parentId"`
	SortOrder int     `json:"sortOrder"`
}

type productDoc struct {
	TenantID         string  `json:"tenantId"`
	Code             string  `json:"productCode"`
	Name             string  `json:"name"`
	CategoryID       *string `json:"categoryId"`
	ShortDescription string  `json:"shortDescription"`
	FullDescription  string  `json:"fullDescription"`
	ImageURL         *string `json:"imageUrl"`
}

type variantDoc struct {
	TenantID    string  `json:"tenantId"`
	ProductID   string  `json:"productId"`
	SKU         string  `json:"sku"`
	Size        string  `json:"size"`
	Finish      string  `json:"finish"`
	PackingSize string  `json:"packingSize"`
	HSNCode     string  `json:"hsnCode"`
	Material    string  `json:"material"`
	Notes       string  `json:"notes"`
	Price       float64 `json:"price"`
	Position    int     `json:"position"`
}

func (s *Store) ListCategories(ctx context.Context, tenantID uuid.UUID) ([]catalog.Category, error) {
	docs, err := s.client.List(ctx, s.collections.Categories, []Filter{Eq(fieldTenantID, tenantID.String())}, "sortOrder")
	if err != nil {
		return nil, err
	}
	return s.decodeCategories(docs)
}

func (s *Store) FindCategories(ctx context.Context, tenantID uuid.UUID, parentID *uuid.UUID) ([]catalog.Category, error) {
	filters := []Filter{Eq(fieldTenantID, tenantID.String())}
	if parentID == nil {
		filters = append(filters, IsNull(fieldParentID))
	} else {
		filters = append(filters, Eq(fieldParentID, s.ids.remote(*parentID)))
	}
	docs, err := s.client.List(ctx, s.collections.Categories, filters, "sortOrder")
	if err != nil {
		return nil, err
	}
	return s.decodeCategories(docs)
}

func (s *Store) CreateCategory(ctx context.Context, category catalog.Category) (catalog.Category, error) {
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	doc := categoryDoc{
		TenantID:  category.TenantID.String(),
		Name:      category.Name,
		ParentID:  s.ids.remotePtr(category.ParentID),
		SortOrder: category.SortOrder,
	}
	if category.Slug != "" {
		slug := category.Slug
		doc.Slug = &slug
	}
	stored, err := s.client.Create(ctx, s.collections.Categories, category.ID.String(), doc)
	if err != nil {
		return catalog.Category{}, err
	}
	return s.decodeCategory(stored)
}

// ListProducts reads the duplicate index source, which defaults to the products collection.
func (s *Store) ListProducts(ctx context.Context, tenantID uuid.UUID) ([]catalog.Product, error) {
	docs, err := s.client.List(ctx, s.collections.DuplicateIndex, []Filter{Eq(fieldTenantID, tenantID.String())}, "")
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Product, 0, len(docs))
	for _, d := range docs {
		p, err := s.decodeProduct(d)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, product catalog.Product) (catalog.Product, error) {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	stored, err := s.client.Create(ctx, s.collections.Products, product.ID.String(), s.productToDoc(product))
	if err != nil {
		return catalog.Product{}, err
	}
	return s.decodeProduct(stored)
}

func (s *Store) UpdateProduct(ctx context.Context, product catalog.Product) (catalog.Product, error) {
	stored, err := s.client.Update(ctx, s.collections.Products, s.ids.remote(product.ID), s.productToDoc(product))
	if err != nil {
		return catalog.Product{}, err
	}
	return s.decodeProduct(stored)
}

func (s *Store) ListVariants(ctx context.Context, tenantID, productID uuid.UUID) ([]catalog.Variant, error) {
	docs, err := s.client.List(ctx, s.collections.Variants, []Filter{
		Eq(fieldTenantID, tenantID.String()),
		Eq(fieldProductID, s.ids.remote(productID)),
	}, "position")
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Variant, 0, len(docs))
	for _, d := range docs {
		v, err := s.decodeVariant(d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) CreateVariant(ctx context.Context, variant catalog.Variant) (catalog.Variant, error) {
	if variant.ID == uuid.Nil {
		variant.ID = uuid.New()
	}
	doc := variantDoc{
		TenantID:    variant.TenantID.String(),
		ProductID:   s.ids.remote(variant.ProductID),
		SKU:         variant.SKU,
		Size:        variant.Size,
		Finish:      variant.Finish,
		PackingSize: variant.PackingSize,
		HSNCode:     variant.HSNCode,
		Material:    variant.Material,
		Notes:       variant.Notes,
		Price:       variant.Price.InexactFloat64(),
		Position:    variant.Position,
	}
	stored, err := s.client.Create(ctx, s.collections.Variants, variant.ID.String(), doc)
	if err != nil {
		return catalog.Variant{}, err
	}
	return s.decodeVariant(stored)
}

// DeleteVariant removes the document by id. Documents are addressed globally,
// so tenantID is not part of the request.
func (s *Store) DeleteVariant(ctx context.Context, _ uuid.UUID, variantID uuid.UUID) error {
	return s.client.Delete(ctx, s.collections.Variants, s.ids.remote(variantID))
}

func (s *Store) decodeCategories(docs []Document) ([]catalog.Category, error) {
	out := make([]catalog.Category, 0, len(docs))
	for _, d := range docs {
		c, err := s.decodeCategory(d)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) decodeCategory(d Document) (catalog.Category, error) {
	var doc categoryDoc
	if err := json.Unmarshal(d.Data, &doc); err != nil {
		return catalog.Category{}, fmt.Errorf("decode category %s: %w", d.ID, err)
	}
	if d.ID == "" {
		return catalog.Category{}, fmt.Errorf("category document without id")
	}
	c := catalog.Category{
		ID:        s.ids.local(d.ID),
		TenantID:  parseUUID(doc.TenantID),
		Name:      doc.Name,
		SortOrder: doc.SortOrder,
		ParentID:  s.ids.localPtr(doc.ParentID),
	}
	if doc.Slug != nil {
		c.Slug = *doc.Slug
	}
	return c, nil
}

func (s *Store) productToDoc(p catalog.Product) productDoc {
	doc := productDoc{
		TenantID:         p.TenantID.String(),
		Code:             p.Code,
		Name:             p.Name,
		CategoryID:       s.ids.remotePtr(p.CategoryID),
		ShortDescription: p.ShortDescription,
		FullDescription:  p.FullDescription,
	}
	if p.ImageURL != "" {
		url := p.ImageURL
		doc.ImageURL = &url
	}
	return doc
}

func (s *Store) decodeProduct(d Document) (catalog.Product, error) {
	var doc productDoc
	if err := json.Unmarshal(d.Data, &doc); err != nil {
		return catalog.Product{}, fmt.Errorf("decode product %s: %w", d.ID, err)
	}
	if d.ID == "" {
		return catalog.Product{}, fmt.Errorf("product document without id")
	}
	p := catalog.Product{
		ID:               s.ids.local(d.ID),
		TenantID:         parseUUID(doc.TenantID),
		Code:             doc.Code,
		Name:             doc.Name,
		CategoryID:       s.ids.localPtr(doc.CategoryID),
		ShortDescription: doc.ShortDescription,
		FullDescription:  doc.FullDescription,
		UpdatedAt:        d.UpdatedAt,
	}
	if doc.ImageURL != nil {
		p.ImageURL = *doc.ImageURL
	}
	return p, nil
}

func (s *Store) decodeVariant(d Document) (catalog.Variant, error) {
	var doc variantDoc
	if err := json.Unmarshal(d.Data, &doc); err != nil {
		return catalog.Variant{}, fmt.Errorf("decode variant %s: %w", d.ID, err)
	}
	if d.ID == "" {
		return catalog.Variant{}, fmt.Errorf("variant document without id")
	}
	return catalog.Variant{
		ID:          s.ids.local(d.ID),
		TenantID:    parseUUID(doc.TenantID),
		ProductID:   s.ids.local(doc.ProductID),
		SKU:         doc.SKU,
		Size:        doc.Size,
		Finish:      doc.Finish,
		PackingSize: doc.PackingSize,
		HSNCode:     doc.HSNCode,
		Material:    doc.Material,
		Notes:       doc.Notes,
		Price:       decimal.NewFromFloat(doc.Price),
		Position:    doc.Position,
	}, nil
}

func parseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// docIDNamespace seeds the name-based uuids given to store-assigned ids.
var docIDNamespace = uuid.MustParse("3b6f0c2e-8d4a-5e71-9c1f-6a2b7d5e4f10")

// docIDs maps document ids onto the uuids the catalog works with. Canonical
// uuid ids map to themselves. Any other id, such as a generated 20 character
// hex id, gets a stable name-based uuid that is remembered so writes address
// the original document.
type docIDs struct {
	mu      sync.RWMutex
	remotes map[uuid.UUID]string
}

func newDocIDs() *docIDs {
	return &docIDs{remotes: make(map[uuid.UUID]string)}
}

func (m *docIDs) local(remote string) uuid.UUID {
	if remote == "" {
		return uuid.Nil
	}
	if id, err := uuid.Parse(remote); err == nil && id.String() == remote {
		return id
	}
	id := uuid.NewSHA1(docIDNamespace, []byte(remote))
	m.mu.Lock()
	m.remotes[id] = remote
	m.mu.Unlock()
	return id
}

func (m *docIDs) localPtr(remote *string) *uuid.UUID {
	if remote == nil || *remote == "" {
		return nil
	}
	id := m.local(*remote)
	return &id
}

func (m *docIDs) remote(id uuid.UUID) string {
	m.mu.RLock()
	remote, ok := m.remotes[id]
	m.mu.RUnlock()
	if ok {
		return remote
	}
	return id.String()
}

func (m *docIDs) remotePtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	remote := m.remote(*id)
	return &remote
}
