package imports

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-catalog/internal/catalog"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
)

// fakeStore is an in-memory catalog.Store. failures maps "op:key" to a queue
// of errors returned before the call is allowed through.
type fakeStore struct {
	mu         sync.Mutex
	categories map[uuid.UUID]catalog.Category
	products   map[uuid.UUID]catalog.Product
	variants   map[uuid.UUID]catalog.Variant
	failures   map[string][]error
	calls      map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		categories: make(map[uuid.UUID]catalog.Category),
		products:   make(map[uuid.UUID]catalog.Product),
		variants:   make(map[uuid.UUID]catalog.Variant),
		failures:   make(map[string][]error),
		calls:      make(map[string]int),
	}
}

func (f *fakeStore) failOn(op, key string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+":"+key] = append(f.failures[op+":"+key], errs...)
}

func (f *fakeStore) injected(op, key string) error {
	f.calls[op]++
	k := op + ":" + key
	queue := f.failures[k]
	if len(queue) == 0 {
		return nil
	}
	f.failures[k] = queue[1:]
	return queue[0]
}

func (f *fakeStore) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeStore) addCategory(tenantID uuid.UUID, name, slug string, parent *uuid.UUID) catalog.Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := catalog.Category{ID: uuid.New(), TenantID: tenantID, Name: name, Slug: slug, ParentID: parent}
	f.categories[c.ID] = c
	return c
}

func (f *fakeStore) addProduct(tenantID uuid.UUID, code, name string, variants int) catalog.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := catalog.Product{ID: uuid.New(), TenantID: tenantID, Code: code, Name: name, UpdatedAt: time.Now()}
	f.products[p.ID] = p
	for i := 0; i < variants; i++ {
		v := catalog.Variant{ID: uuid.New(), TenantID: tenantID, ProductID: p.ID, SKU: code + "-old", Position: i}
		f.variants[v.ID] = v
	}
	return p
}

func (f *fakeStore) ListCategories(_ context.Context, tenantID uuid.UUID) ([]catalog.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("ListCategories", ""); err != nil {
		return nil, err
	}
	var out []catalog.Category
	for _, c := range f.categories {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) FindCategories(_ context.Context, tenantID uuid.UUID, parentID *uuid.UUID) ([]catalog.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("FindCategories", ""); err != nil {
		return nil, err
	}
	var out []catalog.Category
	for _, c := range f.categories {
		if c.TenantID != tenantID {
			continue
		}
		switch {
		case parentID == nil && c.ParentID == nil:
			out = append(out, c)
		case parentID != nil && c.ParentID != nil && *parentID == *c.ParentID:
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateCategory(_ context.Context, c catalog.Category) (catalog.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreateCategory", c.Name); err != nil {
		return catalog.Category{}, err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	f.categories[c.ID] = c
	return c, nil
}

func (f *fakeStore) ListProducts(_ context.Context, tenantID uuid.UUID) ([]catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("ListProducts", ""); err != nil {
		return nil, err
	}
	var out []catalog.Product
	for _, p := range f.products {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *fakeStore) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreateProduct", p.Code); err != nil {
		return catalog.Product{}, err
	}
	if _, exists := f.products[p.ID]; exists {
		return catalog.Product{}, pkgerrors.New(pkgerrors.CodeConflict, "product already exists")
	}
	p.UpdatedAt = time.Now()
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeStore) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("UpdateProduct", p.Code); err != nil {
		return catalog.Product{}, err
	}
	if _, exists := f.products[p.ID]; !exists {
		return catalog.Product{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	p.UpdatedAt = time.Now()
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeStore) ListVariants(_ context.Context, tenantID, productID uuid.UUID) ([]catalog.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("ListVariants", ""); err != nil {
		return nil, err
	}
	return f.variantsOf(tenantID, productID), nil
}

func (f *fakeStore) variantsOf(tenantID, productID uuid.UUID) []catalog.Variant {
	var out []catalog.Variant
	for _, v := range f.variants {
		if v.TenantID == tenantID && v.ProductID == productID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (f *fakeStore) CreateVariant(_ context.Context, v catalog.Variant) (catalog.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreateVariant", v.SKU); err != nil {
		return catalog.Variant{}, err
	}
	if _, exists := f.variants[v.ID]; exists {
		return catalog.Variant{}, pkgerrors.New(pkgerrors.CodeConflict, "variant already exists")
	}
	f.variants[v.ID] = v
	return v, nil
}

func (f *fakeStore) DeleteVariant(_ context.Context, tenantID, variantID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("DeleteVariant", ""); err != nil {
		return err
	}
	v, ok := f.variants[variantID]
	if !ok || v.TenantID != tenantID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	delete(f.variants, variantID)
	return nil
}

func (f *fakeStore) productByCode(code string) (catalog.Product, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.Code == code {
			return p, true
		}
	}
	return catalog.Product{}, false
}

func (f *fakeStore) variantCount(tenantID, productID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.variantsOf(tenantID, productID))
}

func (f *fakeStore) categoryByName(name string) (catalog.Category, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.categories {
		if c.Name == name {
			return c, true
		}
	}
	return catalog.Category{}, false
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (f *fakeEvents) Publish(_ context.Context, eventType, _, _ string, data any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	f.data = append(f.data, data)
	return uuid.NewString(), nil
}
