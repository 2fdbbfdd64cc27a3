package duplicates

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-catalog/internal/drafts"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
)

// Existing is the slice of a stored product needed for duplicate detection.
type Existing struct {
	ID        uuid.UUID
	Code      string
	Name      string
	UpdatedAt time.Time
}

// Index holds stored products by normalized code and by normalized name.
// It is built once per snapshot and never mutated.
type Index struct {
	byCode map[string]Existing
	byName map[string]Existing
	size   int
}

// NewIndex builds the lookup maps. When two stored products share a key the
// first one wins.
func NewIndex(products []Existing) *Index {
	ix := &Index{
		byCode: make(map[string]Existing, len(products)),
		byName: make(map[string]Existing, len(products)),
		size:   len(products),
	}
	for _, p := range products {
		if k := Normalize(p.Code); k != "" {
			if _, ok := ix.byCode[k]; !ok {
				ix.byCode[k] = p
			}
		}
		if k := Normalize(p.Name); k != "" {
			if _, ok := ix.byName[k]; !ok {
				ix.byName[k] = p
			}
		}
	}
	return ix
}

// Len reports how many stored products the index was built from.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// Normalize trims and lowercases a code or name.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Detect matches by product code first and falls back to name. Empty keys never match.
func (ix *Index) Detect(code, name string) (*drafts.ExistingMatch, bool) {
	if ix == nil {
		return nil, false
	}
	if k := Normalize(code); k != "" {
		if e, ok := ix.byCode[k]; ok {
			return matchFrom(e, enums.MatchTypeCode), true
		}
	}
	if k := Normalize(name); k != "" {
		if e, ok := ix.byName[k]; ok {
			return matchFrom(e, enums.MatchTypeName), true
		}
	}
	return nil, false
}

func matchFrom(e Existing, mt enums.MatchType) *drafts.ExistingMatch {
	return &drafts.ExistingMatch{
		ID:        e.ID,
		Name:      e.Name,
		UpdatedAt: e.UpdatedAt,
		MatchType: mt,
	}
}

// Apply runs detection over drafts and returns updated copies.
//
//   - first detection forces skip so nothing is overwritten without an explicit choice
//   - the same stored product matching again keeps the operator's action
//   - a different stored product matching resets to skip
//   - a lost match resets to create and clears the reference
func Apply(products []drafts.ProductDraft, ix *Index) []drafts.ProductDraft {
	out := make([]drafts.ProductDraft, len(products))
	copy(out, products)
	for i := range out {
		p := &out[i]
		match, ok := ix.Detect(p.ProductCode, p.Name)
		switch {
		case !ok:
			if p.Existing != nil {
				p.Existing = nil
				p.Action = enums.ImportActionCreate
			}
		case p.Existing == nil:
			p.Existing = match
			p.Action = enums.ImportActionSkip
		case p.Existing.ID == match.ID:
			p.Existing = match
		default:
			p.Existing = match
			p.Action = enums.ImportActionSkip
		}
	}
	return out
}

// Count reports how many drafts carry a match.
func Count(products []drafts.ProductDraft) int {
	n := 0
	for _, p := range products {
		if p.Existing != nil {
			n++
		}
	}
	return n
}
