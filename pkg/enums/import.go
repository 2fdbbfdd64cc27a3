package enums

import (
	"fmt"
	"strings"
)

// ImportAction is the per-product reconciliation decision.
type ImportAction string

const (
	ImportActionCreate ImportAction = "create"
	ImportActionUpdate ImportAction = "update"
	ImportActionSkip   ImportAction = "skip"
)

var validImportActions = []ImportAction{
	ImportActionCreate,
	ImportActionUpdate,
	ImportActionSkip,
}

// String implements fmt.Stringer.
func (a ImportAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ImportAction.
func (a ImportAction) IsValid() bool {
	for _, candidate := range validImportActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseImportAction converts raw input into an ImportAction.
func ParseImportAction(value string) (ImportAction, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validImportActions {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid import action %q", value)
}

// MatchType records which key matched an existing product.
type MatchType string

const (
	MatchTypeCode MatchType = "code"
	MatchTypeName MatchType = "name"
)

// ImportStatus is the lifecycle state of an import session.
type ImportStatus string

const (
	ImportStatusDraft             ImportStatus = "draft"
	ImportStatusRunning           ImportStatus = "running"
	ImportStatusCompleted         ImportStatus = "completed"
	ImportStatusAbortedValidation ImportStatus = "aborted_validation"
	ImportStatusAbortedError      ImportStatus = "aborted_error"
)

// IsTerminal reports whether the run has finished.
func (s ImportStatus) IsTerminal() bool {
	switch s {
	case ImportStatusCompleted, ImportStatusAbortedValidation, ImportStatusAbortedError:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (s ImportStatus) String() string {
	return string(s)
}

// ImportPhase names the orchestrator stage currently executing.
type ImportPhase string

const (
	ImportPhaseValidate   ImportPhase = "validate"
	ImportPhaseCategories ImportPhase = "categories"
	ImportPhaseResolve    ImportPhase = "resolve"
	ImportPhaseProducts   ImportPhase = "products"
	ImportPhaseVariants   ImportPhase = "variants"
)

// BulkScope selects which products a bulk action applies to.
type BulkScope string

const (
	BulkScopeDuplicates BulkScope = "duplicates"
	BulkScopeAll        BulkScope = "all"
)

// ParseBulkScope defaults to duplicates for empty input.
func ParseBulkScope(value string) (BulkScope, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(BulkScopeDuplicates):
		return BulkScopeDuplicates, nil
	case string(BulkScopeAll):
		return BulkScopeAll, nil
	}
	return "", fmt.Errorf("invalid bulk scope %q", value)
}

// FileFormat is an accepted import/template file type.
type FileFormat string

const (
	FileFormatCSV  FileFormat = "csv"
	FileFormatXLSX FileFormat = "xlsx"
	FileFormatJSON FileFormat = "json"
)

// FileFormatFromName infers the format from a file name extension.
func FileFormatFromName(name string) (FileFormat, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return FileFormatCSV, nil
	case strings.HasSuffix(lower, ".xlsx"):
		return FileFormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported file type %q: only .csv and .xlsx are accepted", name)
}
