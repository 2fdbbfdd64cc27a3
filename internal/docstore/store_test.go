package docstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-catalog/internal/catalog"
	"github.com/angelmondragon/packfinderz-catalog/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
)

// fakeAPI is a minimal in-memory document database speaking the client's protocol.
type fakeAPI struct {
	mu       sync.Mutex
	docs     map[string]map[string]map[string]any
	order    map[string][]string
	requests []string
	failNext map[string]int
	headers  http.Header
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		docs:     map[string]map[string]map[string]any{},
		order:    map[string][]string{},
		failNext: map[string]int{},
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.headers = r.Header.Clone()

	if n := f.failNext[r.Method]; n > 0 {
		f.failNext[r.Method] = n - 1
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "Rate limit for the current endpoint has been exceeded", "code": 429, "type": "general_rate_limit_exceeded"})
		return
	}

	// /databases/{db}/collections/{col}/documents[/{id}]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 5 || parts[0] != "databases" || parts[2] != "collections" || parts[4] != "documents" {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "route not found"})
		return
	}
	col := parts[3]
	if f.docs[col] == nil {
		f.docs[col] = map[string]map[string]any{}
	}
	var id string
	if len(parts) > 5 {
		id = parts[5]
	}

	switch {
	case r.Method == http.MethodGet && id == "":
		f.list(w, r, col)
	case r.Method == http.MethodPost && id == "":
		var body struct {
			DocumentID string         `json:"documentId"`
			Data       map[string]any `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, exists := f.docs[col][body.DocumentID]; exists {
			writeJSON(w, http.StatusConflict, map[string]any{"message": "Document already exists", "type": "document_already_exists"})
			return
		}
		doc := body.Data
		doc["$id"] = body.DocumentID
		now := time.Now().UTC().Format(time.RFC3339Nano)
		doc["$createdAt"], doc["$updatedAt"] = now, now
		f.docs[col][body.DocumentID] = doc
		f.order[col] = append(f.order[col], body.DocumentID)
		writeJSON(w, http.StatusCreated, doc)
	case r.Method == http.MethodPatch && id != "":
		doc, ok := f.docs[col][id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Document not found", "type": "document_not_found"})
			return
		}
		var body struct {
			Data map[string]any `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for k, v := range body.Data {
			doc[k] = v
		}
		doc["$updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
		writeJSON(w, http.StatusOK, doc)
	case r.Method == http.MethodDelete && id != "":
		if _, ok := f.docs[col][id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Document not found", "type": "document_not_found"})
			return
		}
		delete(f.docs[col], id)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"message": "method not allowed"})
	}
}

func (f *fakeAPI) list(w http.ResponseWriter, r *http.Request, col string) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	cursor := q.Get("cursorAfter")

	var matched []map[string]any
	for _, id := range f.order[col] {
		doc, ok := f.docs[col][id]
		if !ok || !matches(doc, q["filter"]) {
			continue
		}
		matched = append(matched, doc)
	}
	if orderBy := q.Get("orderBy"); orderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := matched[i][orderBy].(float64)
			b, _ := matched[j][orderBy].(float64)
			return a < b
		})
	}
	if cursor != "" {
		for i, doc := range matched {
			if doc["$id"] == cursor {
				matched = matched[i+1:]
				break
			}
		}
	}
	total := len(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "documents": matched})
}

func matches(doc map[string]any, filters []string) bool {
	for _, f := range filters {
		parts := strings.SplitN(f, ":", 3)
		switch {
		case len(parts) == 2 && parts[1] == "null":
			if v, ok := doc[parts[0]]; ok && v != nil {
				return false
			}
		case len(parts) == 3 && parts[1] == "eq":
			if v, _ := doc[parts[0]].(string); v != parts[2] {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// seed stores a document under an id the store assigned itself.
func (f *fakeAPI) seed(col, id string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[col] == nil {
		f.docs[col] = map[string]map[string]any{}
	}
	data["$id"] = id
	now := time.Now().UTC().Format(time.RFC3339Nano)
	data["$createdAt"], data["$updatedAt"] = now, now
	f.docs[col][id] = data
	f.order[col] = append(f.order[col], id)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestStore(t *testing.T, pageSize int) (*Store, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := config.DocStoreConfig{
		Endpoint:             srv.URL + "/",
		ProjectID:            "proj",
		APIKey:               "secret",
		DatabaseID:           "catalog",
		ProductsCollection:   "products",
		VariantsCollection:   "variants",
		CategoriesCollection: "categories",
		PageSize:             pageSize,
	}
	client, err := NewClient(cfg, srv.Client(), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	store, err := NewStore(client, CollectionsFrom(cfg))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, api
}

func TestStoreCategoryLifecycle(t *testing.T) {
	store, api := newTestStore(t, 2)
	ctx := context.Background()
	tenant := uuid.New()

	root, err := store.CreateCategory(ctx, catalog.Category{TenantID: tenant, Name: "Hardware", Slug: "hardware"})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	for i, name := range []string{"Handles", "Hinges", "Knobs"} {
		if _, err := store.CreateCategory(ctx, catalog.Category{TenantID: tenant, Name: name, ParentID: &root.ID, SortOrder: i + 1}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if _, err := store.CreateCategory(ctx, catalog.Category{TenantID: uuid.New(), Name: "Other tenant"}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	all, err := store.ListCategories(ctx, tenant)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 categories across pages, got %d", len(all))
	}
	if all[0].Slug != "hardware" || all[0].ParentID != nil {
		t.Fatalf("unexpected root %+v", all[0])
	}

	roots, err := store.FindCategories(ctx, tenant, nil)
	if err != nil || len(roots) != 1 || roots[0].ID != root.ID {
		t.Fatalf("unexpected roots %+v err=%v", roots, err)
	}
	children, err := store.FindCategories(ctx, tenant, &root.ID)
	if err != nil || len(children) != 3 {
		t.Fatalf("unexpected children %+v err=%v", children, err)
	}

	if got := api.headers.Get(headerAPIKey); got != "secret" {
		t.Fatalf("expected api key header, got %q", got)
	}
	if got := api.headers.Get(headerProject); got != "proj" {
		t.Fatalf("expected project header, got %q", got)
	}
}

func TestStoreProductAndVariants(t *testing.T) {
	store, _ := newTestStore(t, 100)
	ctx := context.Background()
	tenant := uuid.New()

	p, err := store.CreateProduct(ctx, catalog.Product{TenantID: tenant, Code: "S-106", Name: "Handle"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if p.UpdatedAt.IsZero() {
		t.Fatalf("expected updatedAt from system fields")
	}

	p.Name = "Slim Handle"
	updated, err := store.UpdateProduct(ctx, p)
	if err != nil || updated.Name != "Slim Handle" || updated.Code != "S-106" {
		t.Fatalf("unexpected update %+v err=%v", updated, err)
	}

	for i, size := range []string{"128MM", "96MM"} {
		_, err := store.CreateVariant(ctx, catalog.Variant{
			TenantID:  tenant,
			ProductID: p.ID,
			SKU:       "S-106-" + size,
			Size:      size,
			Price:     decimal.NewFromFloat(132.5),
			Position:  1 - i,
		})
		if err != nil {
			t.Fatalf("create variant: %v", err)
		}
	}
	variants, err := store.ListVariants(ctx, tenant, p.ID)
	if err != nil || len(variants) != 2 {
		t.Fatalf("unexpected variants %+v err=%v", variants, err)
	}
	if variants[0].Size != "96MM" || !variants[0].Price.Equal(decimal.RequireFromString("132.5")) {
		t.Fatalf("expected variants ordered by position, got %+v", variants[0])
	}

	if err := store.DeleteVariant(ctx, tenant, variants[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = store.DeleteVariant(ctx, tenant, variants[0].ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound || typed.Status() != http.StatusNotFound {
		t.Fatalf("expected typed not found, got %v", err)
	}

	products, err := store.ListProducts(ctx, tenant)
	if err != nil || len(products) != 1 {
		t.Fatalf("unexpected products %+v err=%v", products, err)
	}
}

func TestStoreUpdateMissingProduct(t *testing.T) {
	store, _ := newTestStore(t, 100)
	_, err := store.UpdateProduct(context.Background(), catalog.Product{ID: uuid.New(), TenantID: uuid.New()})
	f := pkgerrors.Normalize(err)
	if f.Status != http.StatusNotFound || f.Transient() || f.Type != "document_not_found" {
		t.Fatalf("unexpected failure %+v", f)
	}
}

func TestClientMapsRateLimitToTransientFailure(t *testing.T) {
	store, api := newTestStore(t, 100)
	api.failNext[http.MethodPost] = 1

	_, err := store.CreateProduct(context.Background(), catalog.Product{TenantID: uuid.New(), Code: "X"})
	f := pkgerrors.Normalize(err)
	if !f.Transient() || f.Status != http.StatusTooManyRequests || f.Type != "general_rate_limit_exceeded" {
		t.Fatalf("expected transient 429, got %+v", f)
	}
	if !strings.Contains(f.Message, "Rate limit") {
		t.Fatalf("expected remote message, got %q", f.Message)
	}

	if _, err := store.CreateProduct(context.Background(), catalog.Product{TenantID: uuid.New(), Code: "X"}); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
}

func TestClientDecodesPlainTextErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	client, err := NewClient(config.DocStoreConfig{Endpoint: srv.URL, DatabaseID: "db"}, srv.Client(), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = client.Ping(context.Background(), "products")
	f := pkgerrors.Normalize(err)
	if f.Status != http.StatusBadGateway || !f.Transient() || f.Message != "upstream exploded" {
		t.Fatalf("unexpected failure %+v", f)
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient(config.DocStoreConfig{DatabaseID: "db"}, nil, nil); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewClient(config.DocStoreConfig{Endpoint: "http://x"}, nil, nil); err == nil {
		t.Fatalf("expected database error")
	}
	if _, err := NewStore(nil, Collections{}); err == nil {
		t.Fatalf("expected client error")
	}
}

func TestStoreHandlesStoreAssignedIDs(t *testing.T) {
	store, api := newTestStore(t, 100)
	ctx := context.Background()
	tenant := uuid.New()

	const (
		rootID    = "65f1a2b3c4d5e6f7a8b9"
		childID   = "65f1a2b3c4d5e6f7a8c0"
		productID = "0123456789abcdef0123456789abcdef"
		variantID = "65f1a2b3c4d5e6f7a8d1"
	)
	api.seed("categories", rootID, map[string]any{"tenantId": tenant.String(), "name": "Hardware", "parentId": nil, "sortOrder": 1.0})
	api.seed("categories", childID, map[string]any{"tenantId": tenant.String(), "name": "Handles", "parentId": rootID, "sortOrder": 2.0})
	api.seed("products", productID, map[string]any{"tenantId": tenant.String(), "productCode": "S-106", "name": "Handle", "categoryId": childID})
	api.seed("variants", variantID, map[string]any{"tenantId": tenant.String(), "productId": productID, "sku": "S-106-96MM", "price": 132.456, "position": 0.0})

	cats, err := store.ListCategories(ctx, tenant)
	if err != nil || len(cats) != 2 {
		t.Fatalf("unexpected categories %+v err=%v", cats, err)
	}
	root, child := cats[0], cats[1]
	if root.ParentID != nil || child.ParentID == nil || *child.ParentID != root.ID {
		t.Fatalf("expected child under root, got root=%+v child=%+v", root, child)
	}
	if again, _ := store.ListCategories(ctx, tenant); again[0].ID != root.ID {
		t.Fatalf("ids must be stable across reads")
	}

	children, err := store.FindCategories(ctx, tenant, &root.ID)
	if err != nil || len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("unexpected children %+v err=%v", children, err)
	}
	knobs, err := store.CreateCategory(ctx, catalog.Category{TenantID: tenant, Name: "Knobs", ParentID: &root.ID})
	if err != nil {
		t.Fatalf("create under store-assigned parent: %v", err)
	}
	if got := api.docs["categories"][knobs.ID.String()]["parentId"]; got != rootID {
		t.Fatalf("expected parentId %q on the wire, got %v", rootID, got)
	}

	products, err := store.ListProducts(ctx, tenant)
	if err != nil || len(products) != 1 {
		t.Fatalf("unexpected products %+v err=%v", products, err)
	}
	p := products[0]
	if p.CategoryID == nil || *p.CategoryID != child.ID {
		t.Fatalf("expected product in child category, got %+v", p.CategoryID)
	}
	p.Name = "Slim Handle"
	if _, err := store.UpdateProduct(ctx, p); err != nil {
		t.Fatalf("update product: %v", err)
	}
	if got := api.docs["products"][productID]["categoryId"]; got != childID {
		t.Fatalf("expected categoryId %q kept, got %v", childID, got)
	}

	variants, err := store.ListVariants(ctx, tenant, p.ID)
	if err != nil || len(variants) != 1 {
		t.Fatalf("unexpected variants %+v err=%v", variants, err)
	}
	if variants[0].ProductID != p.ID || !variants[0].Price.Equal(decimal.RequireFromString("132.456")) {
		t.Fatalf("unexpected variant %+v", variants[0])
	}
	if err := store.DeleteVariant(ctx, tenant, variants[0].ID); err != nil {
		t.Fatalf("delete variant: %v", err)
	}
	if _, ok := api.docs["variants"][variantID]; ok {
		t.Fatalf("variant %s should be deleted", variantID)
	}
}
