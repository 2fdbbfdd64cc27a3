package imports

import (
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
)

// FailureDetail describes one item the run gave up on.
type FailureDetail struct {
	Phase    enums.ImportPhase `json:"phase"`
	Label    string            `json:"label"`
	Status   int               `json:"status,omitempty"`
	Message  string            `json:"message"`
	Type     string            `json:"type,omitempty"`
	Attempts int               `json:"attempts"`
}

// Report is the outcome of one run.
type Report struct {
	Status            enums.ImportStatus `json:"status"`
	Message           string             `json:"message,omitempty"`
	Unresolved        []string           `json:"unresolved,omitempty"`
	CategoriesCreated int                `json:"categoriesCreated"`
	CategoriesReused  int                `json:"categoriesReused"`
	ProductsCreated   int                `json:"productsCreated"`
	ProductsUpdated   int                `json:"productsUpdated"`
	ProductsSkipped   int                `json:"productsSkipped"`
	VariantsWritten   int                `json:"variantsWritten"`
	VariantsDeleted   int                `json:"variantsDeleted"`
	Succeeded         int                `json:"succeeded"`
	FailureCount      int                `json:"failureCount"`
	Failures          []FailureDetail    `json:"failures,omitempty"`
	Retries           int                `json:"retries"`
}

func (r *Report) addFailure(limit int, f FailureDetail) {
	r.FailureCount++
	if limit <= 0 || len(r.Failures) < limit {
		r.Failures = append(r.Failures, f)
	}
}

// Progress is published after each item of a phase reaches a terminal outcome.
type Progress struct {
	Phase     enums.ImportPhase `json:"phase"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
}
