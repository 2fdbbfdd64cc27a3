package categories

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-catalog/internal/drafts"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
)

// Resolve matches the whole trimmed string against every stored category,
// first by slug and then by case-insensitive name.
func (t *Tree) Resolve(raw string) (Node, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Node{}, false
	}
	slug := Slugify(raw)
	if slug != "" {
		for _, n := range t.nodes {
			if n.Slug != "" && n.Slug == slug {
				return n, true
			}
		}
	}
	for _, n := range t.nodes {
		if strings.EqualFold(strings.TrimSpace(n.Name), raw) {
			return n, true
		}
	}
	return Node{}, false
}

// ResolvePath walks the segments of raw from the roots down and returns the
// leaf when every segment matches.
func (t *Tree) ResolvePath(raw string) (Node, bool) {
	segments := SplitPath(raw)
	if len(segments) == 0 {
		return Node{}, false
	}
	var (
		parent *uuid.UUID
		node   Node
	)
	for _, seg := range segments {
		next, ok := t.FindChild(parent, seg)
		if !ok {
			return Node{}, false
		}
		node = next
		id := next.ID
		parent = &id
	}
	return node, true
}

// Lookup resolves raw as a flat name or slug, then as a hierarchical path.
func (t *Tree) Lookup(raw string) (Node, bool) {
	if n, ok := t.Resolve(raw); ok {
		return n, true
	}
	return t.ResolvePath(raw)
}

// Proposal is a category implied by import data that is not stored yet.
// The parent is either an existing category (ParentID) or another proposal
// (ParentKey); both are empty for a new root.
type Proposal struct {
	Key       string     `json:"key"`
	Segments  []string   `json:"segments"`
	Name      string     `json:"name"`
	Label     string     `json:"label"`
	Slug      string     `json:"slug"`
	ParentID  *uuid.UUID `json:"parentId,omitempty"`
	ParentKey string     `json:"parentKey,omitempty"`
	Depth     int        `json:"depth"`
}

// ProposalKey normalizes a root-first segment list into a proposal key.
func ProposalKey(segments []string) string {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = segmentKey(seg)
	}
	return strings.Join(parts, "/")
}

func segmentKey(seg string) string {
	if s := Slugify(seg); s != "" {
		return s
	}
	return strings.ToLower(strings.TrimSpace(seg))
}

// walk descends segments through the tree. It returns the last matched
// node id and the index of the first segment that did not match
// (len(segments) when all matched).
func (t *Tree) walk(segments []string) (*uuid.UUID, int) {
	var parent *uuid.UUID
	for i, seg := range segments {
		next, ok := t.FindChild(parent, seg)
		if !ok {
			return parent, i
		}
		id := next.ID
		parent = &id
	}
	return parent, len(segments)
}

// MissingChain returns the proposals needed to materialize raw, root-first.
// It is empty when raw resolves against the tree.
func (t *Tree) MissingChain(raw string) []Proposal {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, ok := t.Resolve(raw); ok {
		return nil
	}
	segments := SplitPath(raw)
	parent, miss := t.walk(segments)
	if miss == len(segments) {
		return nil
	}

	chain := make([]Proposal, 0, len(segments)-miss)
	for j := miss; j < len(segments); j++ {
		path := append([]string(nil), segments[:j+1]...)
		p := Proposal{
			Key:      ProposalKey(path),
			Segments: path,
			Name:     segments[j],
			Label:    strings.Join(path, " "+PathSeparator+" "),
			Slug:     Slugify(segments[j]),
			Depth:    j + 1,
		}
		if j == miss {
			if parent != nil {
				id := *parent
				p.ParentID = &id
			}
		} else {
			p.ParentKey = chain[len(chain)-1].Key
		}
		chain = append(chain, p)
	}
	return chain
}

// ProposeMissing collects the categories every non-skipped draft still needs,
// deduplicated by key and ordered by depth then label so parents come first.
// Drafts that already carry a category id present in the tree need nothing.
func ProposeMissing(products []drafts.ProductDraft, t *Tree) []Proposal {
	byKey := make(map[string]Proposal)
	for _, p := range products {
		if p.Action == enums.ImportActionSkip {
			continue
		}
		if p.CategoryID != nil {
			if _, ok := t.Get(*p.CategoryID); ok {
				continue
			}
		}
		for _, prop := range t.MissingChain(p.RawCategory) {
			if _, seen := byKey[prop.Key]; !seen {
				byKey[prop.Key] = prop
			}
		}
	}

	out := make([]Proposal, 0, len(byKey))
	for _, prop := range byKey {
		out = append(out, prop)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// PathResolvable reports whether raw is empty, resolves against the tree, or
// has every missing segment covered by a proposal that selected accepts.
// A raw value made only of separators counts as empty.
func (t *Tree) PathResolvable(raw string, selected func(key string) bool) bool {
	for _, prop := range t.MissingChain(raw) {
		if selected == nil || !selected(prop.Key) {
			return false
		}
	}
	return true
}

// HasCategory reports whether raw names at least one path segment.
func HasCategory(raw string) bool {
	return len(SplitPath(raw)) > 0
}

// ResolveDrafts sets each draft's CategoryID from the tree. A current id still
// present in the tree is kept; otherwise the raw path is looked up again, so
// repeated passes converge. The input slice is not modified.
func ResolveDrafts(products []drafts.ProductDraft, t *Tree) []drafts.ProductDraft {
	out := make([]drafts.ProductDraft, len(products))
	copy(out, products)
	for i := range out {
		if out[i].CategoryID != nil {
			if _, ok := t.Get(*out[i].CategoryID); ok {
				continue
			}
		}
		out[i].CategoryID = nil
		if n, ok := t.Lookup(out[i].RawCategory); ok {
			id := n.ID
			out[i].CategoryID = &id
		}
	}
	return out
}
