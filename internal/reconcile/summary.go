package reconcile

import (
	"github.com/angelmondragon/packfinderz-catalog/internal/categories"
	"github.com/angelmondragon/packfinderz-catalog/internal/drafts"
	"github.com/angelmondragon/packfinderz-catalog/internal/duplicates"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
)

// Summary is the preview shown before running an import.
type Summary struct {
	TotalProducts        int `json:"totalProducts"`
	TotalVariants        int `json:"totalVariants"`
	Duplicates           int `json:"duplicates"`
	ToCreate             int `json:"toCreate"`
	ToUpdate             int `json:"toUpdate"`
	ToSkip               int `json:"toSkip"`
	ProposedCategories   int `json:"proposedCategories"`
	SelectedCategories   int `json:"selectedCategories"`
	UnresolvedCategories int `json:"unresolvedCategories"`
}

// Summarize counts the plan against tree.
func (p *Plan) Summarize(tree *categories.Tree) Summary {
	s := Summary{
		TotalProducts:        len(p.Products),
		TotalVariants:        drafts.VariantCount(p.Products),
		Duplicates:           duplicates.Count(p.Products),
		ProposedCategories:   len(p.Proposals),
		SelectedCategories:   len(p.SelectedProposals()),
		UnresolvedCategories: p.UnresolvedCount(tree),
	}
	for _, product := range p.Products {
		switch product.Action {
		case enums.ImportActionCreate:
			s.ToCreate++
		case enums.ImportActionUpdate:
			s.ToUpdate++
		case enums.ImportActionSkip:
			s.ToSkip++
		}
	}
	return s
}

// Ready reports whether the plan may run: something selected and nothing unresolved.
func (s Summary) Ready() bool {
	return s.ToCreate+s.ToUpdate > 0 && s.UnresolvedCategories == 0
}
