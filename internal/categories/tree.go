package categories

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// PathSeparator delimits hierarchy levels in a raw category path.
const PathSeparator = ">"

// Node is a stored category as seen by the resolver.
type Node struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug,omitempty"`
	ParentID  *uuid.UUID `json:"parentId,omitempty"`
	SortOrder int        `json:"sortOrder"`
}

// Tree is an immutable snapshot of a tenant's categories. Nodes live in a flat
// arena; parent links are looked up by id. A parent id that is missing from
// the snapshot (or points at the node itself) makes the node a root.
type Tree struct {
	nodes    []Node
	byID     map[uuid.UUID]int
	children map[uuid.UUID][]int
	roots    []int
}

// NewTree indexes nodes. Later duplicates of an id are ignored.
func NewTree(nodes []Node) *Tree {
	t := &Tree{
		nodes:    make([]Node, 0, len(nodes)),
		byID:     make(map[uuid.UUID]int, len(nodes)),
		children: make(map[uuid.UUID][]int),
	}
	for _, n := range nodes {
		if _, dup := t.byID[n.ID]; dup {
			continue
		}
		t.byID[n.ID] = len(t.nodes)
		t.nodes = append(t.nodes, n)
	}
	for i, n := range t.nodes {
		if p, ok := t.parentIndex(n); ok {
			t.children[t.nodes[p].ID] = append(t.children[t.nodes[p].ID], i)
			continue
		}
		t.roots = append(t.roots, i)
	}
	return t
}

func (t *Tree) parentIndex(n Node) (int, bool) {
	if n.ParentID == nil || *n.ParentID == n.ID {
		return 0, false
	}
	idx, ok := t.byID[*n.ParentID]
	return idx, ok
}

// With returns a new snapshot holding the current nodes plus extra.
func (t *Tree) With(extra ...Node) *Tree {
	all := make([]Node, 0, len(t.nodes)+len(extra))
	all = append(all, t.nodes...)
	all = append(all, extra...)
	return NewTree(all)
}

// Len reports the node count.
func (t *Tree) Len() int { return len(t.nodes) }

// Nodes copies the arena in insertion order.
func (t *Tree) Nodes() []Node {
	out := make([]Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Get looks a node up by id.
func (t *Tree) Get(id uuid.UUID) (Node, bool) {
	idx, ok := t.byID[id]
	if !ok {
		return Node{}, false
	}
	return t.nodes[idx], true
}

// Children lists the direct children of parent, or the roots when parent is nil.
func (t *Tree) Children(parent *uuid.UUID) []Node {
	var idxs []int
	if parent == nil {
		idxs = t.roots
	} else {
		idxs = t.children[*parent]
	}
	out := make([]Node, len(idxs))
	for i, idx := range idxs {
		out[i] = t.nodes[idx]
	}
	return out
}

// Ancestry returns the chain from the root down to id. Revisiting an id ends the walk.
func (t *Tree) Ancestry(id uuid.UUID) []Node {
	idx, ok := t.byID[id]
	if !ok {
		return nil
	}
	visited := make(map[uuid.UUID]struct{})
	var chain []Node
	for {
		n := t.nodes[idx]
		if _, seen := visited[n.ID]; seen {
			break
		}
		visited[n.ID] = struct{}{}
		chain = append(chain, n)
		p, ok := t.parentIndex(n)
		if !ok {
			break
		}
		idx = p
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// PathLabel renders the ancestry of id as "A > B > C".
func (t *Tree) PathLabel(id uuid.UUID) string {
	chain := t.Ancestry(id)
	names := make([]string, len(chain))
	for i, n := range chain {
		names[i] = n.Name
	}
	return strings.Join(names, " "+PathSeparator+" ")
}

// FindChild matches segment against the children of parent by
// case-insensitive name or by slug equal to Slugify(segment).
func (t *Tree) FindChild(parent *uuid.UUID, segment string) (Node, bool) {
	var idxs []int
	if parent == nil {
		idxs = t.roots
	} else {
		idxs = t.children[*parent]
	}
	for _, idx := range idxs {
		if matchesSegment(t.nodes[idx], segment) {
			return t.nodes[idx], true
		}
	}
	return Node{}, false
}

func matchesSegment(n Node, segment string) bool {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(n.Name), segment) {
		return true
	}
	return n.Slug != "" && n.Slug == Slugify(segment)
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of non alphanumerics into "-".
func Slugify(s string) string {
	slug := strings.ToLower(strings.TrimSpace(s))
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// SplitPath splits a raw path on ">" and drops blank segments.
func SplitPath(raw string) []string {
	parts := strings.Split(raw, PathSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
