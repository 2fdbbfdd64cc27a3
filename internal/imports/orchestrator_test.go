package imports

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-catalog/internal/catalog"
	"github.com/angelmondragon/packfinderz-catalog/internal/csvimport"
	"github.com/angelmondragon/packfinderz-catalog/internal/drafts"
	"github.com/angelmondragon/packfinderz-catalog/internal/reconcile"
	"github.com/angelmondragon/packfinderz-catalog/pkg/batch"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
)

const handlesCSV = `Product Code,Product Name,Category,Size (MM / Inch),Colour / Finish,MRP (INR)
S-106,Pull Handle,,96MM,Matt,"₹1,320.00"
S-106,Pull Handle,,128MM,Matt,"₹1,480.00"
S-107,Knob,,32MM,Gold,450
`

const hierarchyCSV = `Product Code,Product Name,Category,Size (MM / Inch),Colour / Finish,MRP (INR)
S-106,Pull Handle,Hardware > Handles,96MM,Matt,1320
S-106,Pull Handle,Hardware > Handles,128MM,Matt,1480
`

func testEngine() batch.Options {
	return batch.Options{
		BatchSize:      2,
		Concurrency:    2,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		Sleep:          func(context.Context, time.Duration) error { return nil },
	}
}

func newTestOrchestrator(t *testing.T, store catalog.Store) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(OrchestratorParams{Store: store, Engine: testEngine()})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func buildPlan(t *testing.T, store *fakeStore, tenantID uuid.UUID, csv string) (*reconcile.Plan, RunInput) {
	t.Helper()
	ctx := context.Background()
	cats, err := store.ListCategories(ctx, tenantID)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	existing, err := store.ListProducts(ctx, tenantID)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	tree := catalog.Tree(cats)
	plan := reconcile.Build(drafts.Group(csvimport.Parse(csv)), tree, catalog.Index(existing), nil)
	return plan, RunInput{TenantID: tenantID, Plan: plan, Tree: tree}
}

func TestOrchestratorCreatesProductsAndVariants(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	_, in := buildPlan(t, store, tenantID, handlesCSV)

	var progress []Progress
	in.OnProgress = func(p Progress) { progress = append(progress, p) }

	report, err := newTestOrchestrator(t, store).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != enums.ImportStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", report.Status, report.Message)
	}
	if report.ProductsCreated != 2 || report.VariantsWritten != 3 || report.Succeeded != 2 || report.FailureCount != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	handle, ok := store.productByCode("S-106")
	if !ok {
		t.Fatalf("S-106 was not written")
	}
	if handle.TenantID != tenantID || handle.Name != "Pull Handle" {
		t.Fatalf("unexpected product %+v", handle)
	}
	variants, _ := store.ListVariants(context.Background(), tenantID, handle.ID)
	if len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(variants))
	}
	if variants[0].SKU != "S-106-96MM-Matt" || variants[0].Price.String() != "1320" || variants[1].Position != 1 {
		t.Fatalf("unexpected variants %+v", variants)
	}

	if len(progress) == 0 {
		t.Fatalf("expected progress updates")
	}
	last := progress[len(progress)-1]
	if last.Phase != enums.ImportPhaseVariants || last.Completed != 2 || last.Total != 2 {
		t.Fatalf("unexpected final progress %+v", last)
	}
}

func TestOrchestratorUpdateReplacesVariants(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	existing := store.addProduct(tenantID, "S-106", "Pull Handle", 3)

	plan, in := buildPlan(t, store, tenantID, handlesCSV)
	if plan.Products[0].Action != enums.ImportActionSkip {
		t.Fatalf("detected duplicate should default to skip, got %s", plan.Products[0].Action)
	}
	if err := plan.SetAction(0, enums.ImportActionUpdate); err != nil {
		t.Fatalf("set action: %v", err)
	}

	report, err := newTestOrchestrator(t, store).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.ProductsUpdated != 1 || report.ProductsCreated != 1 {
		t.Fatalf("unexpected product counts %+v", report)
	}
	if report.VariantsDeleted != 3 || report.VariantsWritten != 3 {
		t.Fatalf("unexpected variant counts %+v", report)
	}
	if got := store.variantCount(tenantID, existing.ID); got != 2 {
		t.Fatalf("expected full replace to leave 2 variants, got %d", got)
	}
	updated, _ := store.productByCode("S-106")
	if updated.ID != existing.ID {
		t.Fatalf("update must keep the existing id")
	}
}

func TestOrchestratorCreatesCategoryChain(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	plan, in := buildPlan(t, store, tenantID, hierarchyCSV)
	if len(plan.Proposals) != 2 {
		t.Fatalf("expected 2 proposals, got %+v", plan.Proposals)
	}

	report, err := newTestOrchestrator(t, store).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != enums.ImportStatusCompleted || report.CategoriesCreated != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	hardware, _ := store.categoryByName("Hardware")
	handles, ok := store.categoryByName("Handles")
	if !ok || handles.ParentID == nil || *handles.ParentID != hardware.ID {
		t.Fatalf("Handles should sit under Hardware: %+v", handles)
	}
	product, _ := store.productByCode("S-106")
	if product.CategoryID == nil || *product.CategoryID != handles.ID {
		t.Fatalf("product should reference Handles, got %v", product.CategoryID)
	}
}

func TestOrchestratorReusesCategoryCreatedConcurrently(t *testing.T) {
	store := newFakeStore()
	tenantID := uuid.New()
	_, in := buildPlan(t, store, tenantID, hierarchyCSV)

	// created after the snapshot was taken
	store.addCategory(tenantID, "Hardware", "hardware", nil)

	report, err := newTestOrchestrator(t, store).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.CategoriesReused != 1 || report.CategoriesCreated != 1 {
		t.Fatalf("unexpected category counts %+v", report)
	}
	roots, _ := store.FindCategories(context.Background(), tenantID, nil)
	if len(roots) != 1 {
		t.Fatalf("expected a single Hardware root, got %d", len(roots))
	}
}

func TestOrchestratorValidationAborts(t *testing.T) {
	tests := map[string]struct {
		csv     string
		edit    func(*reconcile.Plan)
		message string
	}{
		"nothing selected": {
			csv: handlesCSV,
			edit: func(p *reconcile.Plan) {
				if _, err := p.BulkApply(enums.ImportActionSkip, enums.BulkScopeAll); err != nil {
					panic(err)
				}
			},
			message: msgNothingSelected,
		},
		"category not selected": {
			csv:     hierarchyCSV,
			edit:    func(p *reconcile.Plan) { p.SelectAllCategories(false) },
			message: "neither existing nor selected",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			plan, in := buildPlan(t, store, uuid.New(), tc.csv)
			tc.edit(plan)

			report, err := newTestOrchestrator(t, store).Run(context.Background(), in)
			if err != nil {
				t.Fatalf("validation abort should not error: %v", err)
			}
			if report.Status != enums.ImportStatusAbortedValidation || !strings.Contains(report.Message, tc.message) {
				t.Fatalf("unexpected report %+v", report)
			}
			if store.callCount("CreateProduct") != 0 || store.callCount("CreateCategory") != 0 {
				t.Fatalf("validation abort must not write")
			}
		})
	}
}

func TestOrchestratorAbortsWhenCategoryCannotBeCreated(t *testing.T) {
	store := newFakeStore()
	_, in := buildPlan(t, store, uuid.New(), hierarchyCSV)
	store.failOn("CreateCategory", "Handles", pkgerrors.FromStatus(400, "document_invalid", "Invalid document structure"))

	report, err := newTestOrchestrator(t, store).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != enums.ImportStatusAbortedValidation {
		t.Fatalf("expected aborted_validation, got %s", report.Status)
	}
	if len(report.Unresolved) != 1 || !strings.Contains(report.Unresolved[0], "S-106") {
		t.Fatalf("expected S-106 listed, got %v", report.Unresolved)
	}
	if report.CategoriesCreated != 1 || report.FailureCount != 1 {
		t.Fatalf("unexpected counts %+v", report)
	}
	if store.callCount("CreateProduct") != 0 {
		t.Fatalf("no products may be written after a failed re-resolve")
	}
}

func TestOrchestratorRetriesTransientFailures(t *testing.T) {
	store := newFakeStore()
	_, in := buildPlan(t, store, uuid.New(), handlesCSV)
	store.failOn("CreateProduct", "S-106", pkgerrors.FromStatus(429, "rate_limit", "Too many requests"))
	store.failOn("CreateVariant", "S-106-128MM-Matt", pkgerrors.FromStatus(503, "", "unavailable"))

	report, err := newTestOrchestrator(t, store).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.FailureCount != 0 || report.Retries != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	handle, _ := store.productByCode("S-106")
	if got := store.variantCount(handle.TenantID, handle.ID); got != 2 {
		t.Fatalf("retried variant write must not duplicate, got %d variants", got)
	}
}

func TestOrchestratorReportsPermanentFailures(t *testing.T) {
	store := newFakeStore()
	_, in := buildPlan(t, store, uuid.New(), handlesCSV)
	store.failOn("CreateProduct", "S-107", pkgerrors.FromStatus(400, "document_invalid", "Invalid document structure"))

	report, err := newTestOrchestrator(t, store).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Status != enums.ImportStatusCompleted {
		t.Fatalf("per-item failures must not abort: %s", report.Status)
	}
	if report.ProductsCreated != 1 || report.Succeeded != 1 || report.FailureCount != 1 || report.VariantsWritten != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	f := report.Failures[0]
	if f.Label != "S-107 Knob" || f.Status != 400 || f.Type != "document_invalid" || f.Phase != enums.ImportPhaseProducts {
		t.Fatalf("unexpected failure %+v", f)
	}
}

func TestOrchestratorCapsFailureDetails(t *testing.T) {
	var b strings.Builder
	b.WriteString("Product Code,Product Name\n")
	for i := 0; i < 7; i++ {
		fmt.Fprintf(&b, "P-%d,Product %d\n", i, i)
	}
	store := newFakeStore()
	_, in := buildPlan(t, store, uuid.New(), b.String())
	for i := 0; i < 7; i++ {
		store.failOn("CreateProduct", fmt.Sprintf("P-%d", i), pkgerrors.FromStatus(422, "document_invalid", "Invalid document structure"))
	}

	report, err := newTestOrchestrator(t, store).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.FailureCount != 7 || len(report.Failures) != defaultFailureLimit || report.Succeeded != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}
