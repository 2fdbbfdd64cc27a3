package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/angelmondragon/packfinderz-catalog/internal/imports"
)

type printer struct {
	out  io.Writer
	json bool
}

type previewOutput struct {
	ImportID  string `json:"importId"`
	FileName  string `json:"fileName"`
	Summary   any    `json:"summary"`
	Proposals []any  `json:"proposals"`
	Products  []any  `json:"products"`
}

func (p printer) preview(s *imports.Session) error {
	summary := s.Summary()
	if p.json {
		out := previewOutput{ImportID: s.ID.String(), FileName: s.FileName, Summary: summary}
		for _, prop := range s.Plan.Proposals {
			out.Proposals = append(out.Proposals, map[string]any{
				"key":      prop.Key,
				"label":    prop.Label,
				"selected": s.Plan.Choices[prop.Key],
			})
		}
		for _, prod := range s.Plan.Products {
			out.Products = append(out.Products, map[string]any{
				"ref":      prod.Ref,
				"label":    prod.Label(),
				"action":   prod.Action,
				"variants": len(prod.Variants),
			})
		}
		return p.encode(out)
	}

	fmt.Fprintf(p.out, "import %s (%s)\n", s.ID, s.FileName)
	fmt.Fprintf(p.out, "products %d, variants %d, duplicates %d\n", summary.TotalProducts, summary.TotalVariants, summary.Duplicates)
	fmt.Fprintf(p.out, "create %d, update %d, skip %d\n", summary.ToCreate, summary.ToUpdate, summary.ToSkip)
	fmt.Fprintf(p.out, "categories to create %d of %d proposed, unresolved products %d\n", summary.SelectedCategories, summary.ProposedCategories, summary.UnresolvedCategories)

	if len(s.Plan.Products) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REF\tPRODUCT\tVARIANTS\tACTION")
	for _, prod := range s.Plan.Products {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", prod.Ref, prod.Label(), len(prod.Variants), prod.Action)
	}
	return tw.Flush()
}

func (p printer) report(r *imports.Report) error {
	if p.json {
		return p.encode(r)
	}

	fmt.Fprintf(p.out, "status %s\n", r.Status)
	if r.Message != "" {
		fmt.Fprintln(p.out, r.Message)
	}
	for _, label := range r.Unresolved {
		fmt.Fprintf(p.out, "  unresolved category: %s\n", label)
	}
	fmt.Fprintf(p.out, "categories created %d, reused %d\n", r.CategoriesCreated, r.CategoriesReused)
	fmt.Fprintf(p.out, "products created %d, updated %d, skipped %d\n", r.ProductsCreated, r.ProductsUpdated, r.ProductsSkipped)
	fmt.Fprintf(p.out, "variants written %d, deleted %d, retries %d\n", r.VariantsWritten, r.VariantsDeleted, r.Retries)
	if r.FailureCount > 0 {
		fmt.Fprintf(p.out, "failures %d\n", r.FailureCount)
		for _, f := range r.Failures {
			fmt.Fprintf(p.out, "  [%s] %s: %s (status %d, %d attempts)\n", f.Phase, f.Label, f.Message, f.Status, f.Attempts)
		}
	}
	return nil
}

func (p printer) encode(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
