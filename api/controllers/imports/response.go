package imports

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-catalog/internal/drafts"
	importsvc "github.com/angelmondragon/packfinderz-catalog/internal/imports"
	"github.com/angelmondragon/packfinderz-catalog/internal/reconcile"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
)

type importResponse struct {
	ID        uuid.UUID           `json:"id"`
	Status    enums.ImportStatus  `json:"status"`
	FileName  string              `json:"fileName"`
	Format    enums.FileFormat    `json:"format"`
	Summary   reconcile.Summary   `json:"summary"`
	Proposals []proposalResponse  `json:"proposals"`
	Products  []productResponse   `json:"products"`
	Progress  *importsvc.Progress `json:"progress,omitempty"`
	Report    *importsvc.Report   `json:"report,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

type proposalResponse struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Name      string `json:"name"`
	Depth     int    `json:"depth"`
	ParentKey string `json:"parentKey,omitempty"`
	Selected  bool   `json:"selected"`
}

type productResponse struct {
	Ref          int                   `json:"ref"`
	ProductCode  string                `json:"productCode"`
	Name         string                `json:"name"`
	Category     string                `json:"category,omitempty"`
	CategoryID   *uuid.UUID            `json:"categoryId,omitempty"`
	CategoryPath string                `json:"categoryPath,omitempty"`
	Unresolved   bool                  `json:"unresolved"`
	Action       enums.ImportAction    `json:"action"`
	Existing     *drafts.ExistingMatch `json:"existing,omitempty"`
	Variants     []drafts.VariantDraft `json:"variants"`
}

func newImportResponse(s *importsvc.Session) importResponse {
	resp := importResponse{
		ID:        s.ID,
		Status:    s.Status,
		FileName:  s.FileName,
		Format:    s.Format,
		Summary:   s.Summary(),
		Progress:  s.Progress,
		Report:    s.Report,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Plan == nil {
		return resp
	}

	tree := s.Tree()
	unresolved := make(map[int]bool)
	for _, p := range s.Plan.Unresolved(tree) {
		unresolved[p.Ref] = true
	}

	resp.Proposals = make([]proposalResponse, len(s.Plan.Proposals))
	for i, prop := range s.Plan.Proposals {
		resp.Proposals[i] = proposalResponse{
			Key:       prop.Key,
			Label:     prop.Label,
			Name:      prop.Name,
			Depth:     prop.Depth,
			ParentKey: prop.ParentKey,
			Selected:  s.Plan.Selected(prop.Key),
		}
	}

	resp.Products = make([]productResponse, len(s.Plan.Products))
	for i, p := range s.Plan.Products {
		item := productResponse{
			Ref:         p.Ref,
			ProductCode: p.ProductCode,
			Name:        p.Name,
			Category:    p.RawCategory,
			CategoryID:  p.CategoryID,
			Unresolved:  unresolved[p.Ref],
			Action:      p.Action,
			Existing:    p.Existing,
			Variants:    p.Variants,
		}
		if p.CategoryID != nil {
			item.CategoryPath = tree.PathLabel(*p.CategoryID)
		}
		resp.Products[i] = item
	}
	return resp
}
