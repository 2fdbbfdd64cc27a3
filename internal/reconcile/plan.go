package reconcile

import (
	"fmt"

	"github.com/angelmondragon/packfinderz-catalog/internal/categories"
	"github.com/angelmondragon/packfinderz-catalog/internal/drafts"
	"github.com/angelmondragon/packfinderz-catalog/internal/duplicates"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
)

// Plan is the operator-editable overlay on a parsed file: one action per
// product and one creation choice per proposed category. Choices are kept by
// key across recomputation, including for proposals that are currently absent.
type Plan struct {
	Products  []drafts.ProductDraft `json:"products"`
	Proposals []categories.Proposal `json:"proposals"`
	Choices   map[string]bool       `json:"choices"`
}

// Build resolves categories, runs duplicate detection and derives proposals.
// previous carries creation choices from an earlier plan; new keys default to true.
func Build(products []drafts.ProductDraft, tree *categories.Tree, ix *duplicates.Index, previous map[string]bool) *Plan {
	resolved := categories.ResolveDrafts(products, tree)
	detected := duplicates.Apply(resolved, ix)
	p := &Plan{Products: detected, Choices: copyChoices(previous)}
	p.Repropose(tree)
	return p
}

// Repropose recomputes proposals from the current actions and tree.
func (p *Plan) Repropose(tree *categories.Tree) {
	p.Proposals = categories.ProposeMissing(p.Products, tree)
	if p.Choices == nil {
		p.Choices = make(map[string]bool, len(p.Proposals))
	}
	for _, prop := range p.Proposals {
		if _, ok := p.Choices[prop.Key]; !ok {
			p.Choices[prop.Key] = true
		}
	}
}

func copyChoices(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Product returns a pointer to the draft with ref.
func (p *Plan) Product(ref int) (*drafts.ProductDraft, error) {
	for i := range p.Products {
		if p.Products[i].Ref == ref {
			return &p.Products[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %d not found in import", ref))
}

// SetAction overrides one product's action. Update needs a matched stored product.
func (p *Plan) SetAction(ref int, action enums.ImportAction) error {
	if !action.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid action %q", action))
	}
	product, err := p.Product(ref)
	if err != nil {
		return err
	}
	if action == enums.ImportActionUpdate && product.Existing == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %q has no existing match to update", product.Label()))
	}
	product.Action = action
	return nil
}

// BulkApply sets action on every duplicate, or on every product for BulkScopeAll.
// Update is only applied where a match exists. It returns how many drafts changed.
func (p *Plan) BulkApply(action enums.ImportAction, scope enums.BulkScope) (int, error) {
	if action == "" {
		action = enums.ImportActionUpdate
	}
	if !action.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid action %q", action))
	}
	changed := 0
	for i := range p.Products {
		product := &p.Products[i]
		if scope != enums.BulkScopeAll && product.Existing == nil {
			continue
		}
		if action == enums.ImportActionUpdate && product.Existing == nil {
			continue
		}
		if product.Action != action {
			product.Action = action
			changed++
		}
	}
	return changed, nil
}

// SetCategoryChoice toggles creation of one proposed category.
func (p *Plan) SetCategoryChoice(key string, create bool) error {
	if !p.hasProposal(key) {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("proposed category %q not found", key))
	}
	p.Choices[key] = create
	return nil
}

// SelectAllCategories sets every current proposal to create.
func (p *Plan) SelectAllCategories(create bool) {
	if p.Choices == nil {
		p.Choices = make(map[string]bool, len(p.Proposals))
	}
	for _, prop := range p.Proposals {
		p.Choices[prop.Key] = create
	}
}

func (p *Plan) hasProposal(key string) bool {
	for _, prop := range p.Proposals {
		if prop.Key == key {
			return true
		}
	}
	return false
}

// Selected reports whether the proposal with key is currently chosen for creation.
func (p *Plan) Selected(key string) bool {
	return p.hasProposal(key) && p.Choices[key]
}

// SelectedProducts returns the drafts whose action is not skip.
func (p *Plan) SelectedProducts() []drafts.ProductDraft {
	out := make([]drafts.ProductDraft, 0, len(p.Products))
	for _, product := range p.Products {
		if product.Action != enums.ImportActionSkip {
			out = append(out, product)
		}
	}
	return out
}

// SelectedProposals returns proposals chosen for creation in depth order.
func (p *Plan) SelectedProposals() []categories.Proposal {
	out := make([]categories.Proposal, 0, len(p.Proposals))
	for _, prop := range p.Proposals {
		if p.Choices[prop.Key] {
			out = append(out, prop)
		}
	}
	return out
}

// Unresolved lists selected products whose category cannot be resolved.
func (p *Plan) Unresolved(tree *categories.Tree) []drafts.ProductDraft {
	return UnresolvedProducts(p.SelectedProducts(), tree, p.Proposals, p.Choices)
}

// UnresolvedCount is ComputeUnresolvedCount over the plan's own state.
func (p *Plan) UnresolvedCount(tree *categories.Tree) int {
	return ComputeUnresolvedCount(p.SelectedProducts(), tree, p.Proposals, p.Choices)
}

// ComputeUnresolvedCount counts selected products whose category path has a
// segment that neither exists in the tree nor maps to a proposal chosen for
// creation. It holds no state between calls.
func ComputeUnresolvedCount(selected []drafts.ProductDraft, tree *categories.Tree, proposals []categories.Proposal, choices map[string]bool) int {
	return len(UnresolvedProducts(selected, tree, proposals, choices))
}

// UnresolvedProducts is ComputeUnresolvedCount returning the offending drafts.
func UnresolvedProducts(selected []drafts.ProductDraft, tree *categories.Tree, proposals []categories.Proposal, choices map[string]bool) []drafts.ProductDraft {
	chosen := make(map[string]bool, len(proposals))
	for _, prop := range proposals {
		if choices[prop.Key] {
			chosen[prop.Key] = true
		}
	}
	isChosen := func(key string) bool { return chosen[key] }

	var out []drafts.ProductDraft
	for _, product := range selected {
		if product.CategoryID != nil {
			continue
		}
		if !categories.HasCategory(product.RawCategory) {
			continue
		}
		if tree.PathResolvable(product.RawCategory, isChosen) {
			continue
		}
		out = append(out, product)
	}
	return out
}
