package reconcile

import (
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-catalog/internal/categories"
	"github.com/angelmondragon/packfinderz-catalog/internal/drafts"
	"github.com/angelmondragon/packfinderz-catalog/internal/duplicates"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
)

type fixture struct {
	hardwareID uuid.UUID
	storedID   uuid.UUID
	tree       *categories.Tree
	index      *duplicates.Index
	products   []drafts.ProductDraft
}

func newFixture() fixture {
	f := fixture{hardwareID: uuid.New(), storedID: uuid.New()}
	f.tree = categories.NewTree([]categories.Node{{ID: f.hardwareID, Name: "Hardware", Slug: "hardware"}})
	f.index = duplicates.NewIndex([]duplicates.Existing{{ID: f.storedID, Code: "S-200", Name: "Old Pull"}})
	f.products = []drafts.ProductDraft{
		{Ref: 0, ProductCode: "S-106", Name: "Handle", RawCategory: "Hardware > Handles", Action: enums.ImportActionCreate, Variants: make([]drafts.VariantDraft, 2)},
		{Ref: 1, ProductCode: "S-107", Name: "Knob", RawCategory: "Hardware", Action: enums.ImportActionCreate, Variants: make([]drafts.VariantDraft, 1)},
		{Ref: 2, ProductCode: "S-200", Name: "Pull", RawCategory: "Bath > Taps", Action: enums.ImportActionCreate, Variants: make([]drafts.VariantDraft, 1)},
		{Ref: 3, ProductCode: "S-300", Name: "Loose", Action: enums.ImportActionCreate, Variants: make([]drafts.VariantDraft, 1)},
	}
	return f
}

func TestBuildAnnotatesDrafts(t *testing.T) {
	f := newFixture()
	plan := Build(f.products, f.tree, f.index, nil)

	if plan.Products[1].CategoryID == nil || *plan.Products[1].CategoryID != f.hardwareID {
		t.Fatalf("expected flat category to resolve")
	}
	dup := plan.Products[2]
	if dup.Existing == nil || dup.Existing.ID != f.storedID || dup.Action != enums.ImportActionSkip {
		t.Fatalf("expected duplicate to default to skip: %+v", dup)
	}
	if len(plan.Proposals) != 1 || plan.Proposals[0].Key != "hardware/handles" {
		t.Fatalf("skipped products must not propose categories: %+v", plan.Proposals)
	}
	if !plan.Selected("hardware/handles") {
		t.Fatalf("new proposals default to selected")
	}
	if plan.UnresolvedCount(f.tree) != 0 {
		t.Fatalf("expected nothing unresolved")
	}
}

func TestChoicesSurviveRecomputation(t *testing.T) {
	f := newFixture()
	plan := Build(f.products, f.tree, f.index, nil)
	if err := plan.SetCategoryChoice("hardware/handles", false); err != nil {
		t.Fatalf("set choice: %v", err)
	}

	rebuilt := Build(plan.Products, f.tree, f.index, plan.Choices)
	if rebuilt.Selected("hardware/handles") {
		t.Fatalf("choice should be preserved by key")
	}
	if rebuilt.UnresolvedCount(f.tree) != 1 {
		t.Fatalf("expected the deselected path to block one product, got %d", rebuilt.UnresolvedCount(f.tree))
	}

	if err := rebuilt.SetCategoryChoice("missing", true); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown key, got %v", err)
	}
}

func TestSetActionRules(t *testing.T) {
	f := newFixture()
	plan := Build(f.products, f.tree, f.index, nil)

	if err := plan.SetAction(0, enums.ImportActionUpdate); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("update without a match must be rejected, got %v", err)
	}
	if err := plan.SetAction(2, enums.ImportActionUpdate); err != nil {
		t.Fatalf("update on duplicate: %v", err)
	}
	if err := plan.SetAction(99, enums.ImportActionSkip); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := plan.SetAction(1, "merge"); err == nil {
		t.Fatalf("expected invalid action error")
	}

	plan.Repropose(f.tree)
	keys := map[string]bool{}
	for _, p := range plan.Proposals {
		keys[p.Key] = true
	}
	if !keys["bath"] || !keys["bath/taps"] {
		t.Fatalf("un-skipping a product should propose its categories: %+v", plan.Proposals)
	}
}

func TestBulkApply(t *testing.T) {
	f := newFixture()
	plan := Build(f.products, f.tree, f.index, nil)

	changed, err := plan.BulkApply("", enums.BulkScopeDuplicates)
	if err != nil || changed != 1 || plan.Products[2].Action != enums.ImportActionUpdate {
		t.Fatalf("default bulk apply should update duplicates: changed=%d err=%v", changed, err)
	}

	changed, err = plan.BulkApply(enums.ImportActionSkip, enums.BulkScopeAll)
	if err != nil || changed != 4 {
		t.Fatalf("expected every product skipped, changed=%d err=%v", changed, err)
	}
	if got := plan.Summarize(f.tree); got.Ready() || got.ToSkip != 4 {
		t.Fatalf("all-skip plan must not be ready: %+v", got)
	}

	changed, err = plan.BulkApply(enums.ImportActionUpdate, enums.BulkScopeAll)
	if err != nil || changed != 1 {
		t.Fatalf("update applies only to matched products, changed=%d err=%v", changed, err)
	}
}

func TestSelectAllCategories(t *testing.T) {
	f := newFixture()
	f.products[2].ProductCode = "S-201"
	plan := Build(f.products, f.tree, f.index, nil)
	if len(plan.Proposals) != 3 {
		t.Fatalf("expected 3 proposals, got %d", len(plan.Proposals))
	}

	plan.SelectAllCategories(false)
	if len(plan.SelectedProposals()) != 0 || plan.UnresolvedCount(f.tree) != 2 {
		t.Fatalf("deselecting all should block both products")
	}
	plan.SelectAllCategories(true)
	if len(plan.SelectedProposals()) != 3 || plan.UnresolvedCount(f.tree) != 0 {
		t.Fatalf("selecting all should resolve everything")
	}
}

func TestComputeUnresolvedCountCountsExactProducts(t *testing.T) {
	f := newFixture()
	selected := []drafts.ProductDraft{
		{Ref: 0, RawCategory: "Hardware > Handles"},
		{Ref: 1, RawCategory: "Hardware > Handles"},
		{Ref: 2, RawCategory: "Bath > Taps"},
		{Ref: 3, RawCategory: "Hardware"},
		{Ref: 4, RawCategory: ""},
		{Ref: 5, RawCategory: "Nowhere", CategoryID: &f.hardwareID},
	}
	proposals := categories.ProposeMissing(selected, f.tree)

	all := map[string]bool{}
	for _, p := range proposals {
		all[p.Key] = true
	}
	if got := ComputeUnresolvedCount(selected, f.tree, proposals, all); got != 0 {
		t.Fatalf("expected 0 with every proposal selected, got %d", got)
	}

	partial := map[string]bool{"hardware/handles": true, "bath": true, "bath/taps": false}
	if got := ComputeUnresolvedCount(selected, f.tree, proposals, partial); got != 1 {
		t.Fatalf("expected 1 product blocked by bath/taps, got %d", got)
	}

	none := map[string]bool{}
	if got := ComputeUnresolvedCount(selected, f.tree, proposals, none); got != 3 {
		t.Fatalf("expected 3 blocked products, got %d", got)
	}

	if got := ComputeUnresolvedCount(selected, f.tree, nil, all); got != 3 {
		t.Fatalf("choices without proposals must not resolve anything, got %d", got)
	}
}

func TestSummarize(t *testing.T) {
	f := newFixture()
	plan := Build(f.products, f.tree, f.index, nil)
	got := plan.Summarize(f.tree)
	want := Summary{
		TotalProducts:      4,
		TotalVariants:      5,
		Duplicates:         1,
		ToCreate:           3,
		ToSkip:             1,
		ProposedCategories: 1,
		SelectedCategories: 1,
	}
	if got != want {
		t.Fatalf("unexpected summary:\n got %+v\nwant %+v", got, want)
	}
	if !got.Ready() {
		t.Fatalf("expected plan to be ready")
	}
}
