package schema

import (
	"iter"
	"slices"

	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/pathsyntax"
)

// TableTree is the compiled arena of table nodes. It is immutable after
// Compile and safe for concurrent readers; accessors return copies.
type TableTree struct {
	nodes  []TableNode
	root   int
	syntax pathsyntax.SyntaxConfig
}

// Len returns the number of nodes.
func (t *TableTree) Len() int {
	return len(t.nodes)
}

// Root returns the index of the root node.
func (t *TableTree) Root() int {
	return t.root
}

// Node returns a copy of the node at index i.
func (t *TableTree) Node(i int) TableNode {
	return t.nodes[i].clone()
}

// Parent returns the parent index of node i; ok is false for the root.
func (t *TableTree) Parent(i int) (int, bool) {
	p := t.nodes[i].Parent
	return p, p >= 0
}

// Children returns the child indices of node i in first-appearance order.
func (t *TableTree) Children(i int) []int {
	return slices.Clone(t.nodes[i].Children)
}

// Walk yields node indices in pre-order, root first.
func (t *TableTree) Walk() iter.Seq[int] {
	return func(yield func(int) bool) {
		if len(t.nodes) == 0 {
			return
		}
		stack := []int{t.root}
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(i) {
				return
			}
			children := t.nodes[i].Children
			for j := len(children) - 1; j >= 0; j-- {
				stack = append(stack, children[j])
			}
		}
	}
}

// FindTrail locates the first node, in pre-order, whose table key equals the
// given table path or ends with it on a segment boundary, and returns the
// root-to-node trail of indices.
func (t *TableTree) FindTrail(tablePath string) ([]int, bool) {
	want := t.syntax.ParseSegments(tablePath)
	if len(want) == 0 || len(t.nodes) == 0 {
		return nil, false
	}

	matches := func(i int) bool {
		segs := t.nodes[i].Segments
		if len(segs) < len(want) {
			return false
		}
		tail := segs[len(segs)-len(want):]
		for k := range want {
			if tail[k].Key() != want[k].Key() {
				return false
			}
		}
		return true
	}

	type frame struct {
		node int
		next int
	}

	stack := []frame{{node: t.root}}
	if matches(t.root) {
		return []int{t.root}, true
	}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		children := t.nodes[top.node].Children
		if top.next >= len(children) {
			stack = stack[:len(stack)-1]
			continue
		}
		child := children[top.next]
		top.next++

		stack = append(stack, frame{node: child})
		if matches(child) {
			trail := make([]int, len(stack))
			for k, f := range stack {
				trail[k] = f.node
			}
			return trail, true
		}
	}
	return nil, false
}

// Fingerprint returns a content hash of the tree structure. Equal inputs to
// Compile always produce equal fingerprints.
func (t *TableTree) Fingerprint() (string, error) {
	nodes := make([]any, len(t.nodes))
	for i, n := range t.nodes {
		columns := make([]any, len(n.Columns))
		for j, c := range n.Columns {
			columns[j] = map[string]any{
				"name":      c.Name,
				"path":      c.Path,
				"identity":  c.IsIdentity,
				"spatial":   c.IsSpatial,
				"queryable": c.Queryable,
			}
		}
		nodes[i] = map[string]any{
			"path":        n.TablePath,
			"type":        n.Type.String(),
			"sort_key":    n.SortKey,
			"primary_key": n.PrimaryKey,
			"parent":      n.Parent,
			"children":    n.Children,
			"columns":     columns,
		}
	}
	return ir.Fingerprint(ir.DomainTableTree, map[string]any{
		"root":  t.root,
		"nodes": nodes,
	})
}
