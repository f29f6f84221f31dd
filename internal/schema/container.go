package schema

import (
	"fmt"
	"log/slog"
	"slices"
)

// InstanceContainer is the compiled schema of one feature type: the root
// container plus the related containers in pre-order. The root interleaves
// among the related containers at MainOffset.
type InstanceContainer struct {
	tree       *TableTree
	main       AttributesContainer
	related    []AttributesContainer
	mainOffset int
}

func newInstanceContainer(tree *TableTree, firstOwn []int, logger *slog.Logger) *InstanceContainer {
	ic := &InstanceContainer{tree: tree}
	keyNames := sortKeyNames(tree)

	// The root may only interleave between whole subtrees of its children;
	// splitting a subtree would make the row order intransitive.
	boundaries := []int{0}
	rootOwn := firstOwn[tree.root]
	before := 0
	for i := range tree.Walk() {
		if i == tree.root {
			continue
		}
		if tree.nodes[i].Parent == tree.root && len(ic.related) > 0 {
			boundaries = append(boundaries, len(ic.related))
		}
		ic.related = append(ic.related, newContainer(tree, i, keyNames))
		if firstOwn[i] < rootOwn {
			before++
		}
	}
	boundaries = append(boundaries, len(ic.related))
	for _, b := range boundaries {
		if b <= before {
			ic.mainOffset = b
		}
	}
	ic.main = newContainer(tree, tree.root, keyNames)
	if ic.mainOffset != before {
		logger.Warn("moving main table to subtree boundary",
			"table_path", ic.main.Path,
			"requested_offset", before,
			"offset", ic.mainOffset,
		)
	}

	for rank := range ic.len() {
		ic.at(rank).PriorityRank = rank
	}
	return ic
}

func newContainer(tree *TableTree, i int, keyNames []string) AttributesContainer {
	n := tree.nodes[i]
	return AttributesContainer{
		Name:       n.Table,
		Path:       n.Path,
		TablePath:  n.TablePath,
		Segments:   slices.Clone(n.Segments),
		Joins:      slices.Clone(n.Joins),
		SortKey:    n.SortKey,
		PrimaryKey: n.PrimaryKey,
		SortKeys:   sortKeys(tree, i, keyNames),
		Attributes: slices.Clone(n.Columns),
		Type:       n.Type,
		Node:       i,
	}
}

// sortKeyNames assigns every node a qualified "table.column" key name, unique
// across the tree. A table reached twice gets its node index appended.
func sortKeyNames(tree *TableTree) []string {
	names := make([]string, len(tree.nodes))
	taken := make(map[string]bool, len(tree.nodes))
	for i := range tree.Walk() {
		n := tree.nodes[i]
		name := n.Table + "." + n.SortKey
		if taken[name] {
			name = fmt.Sprintf("%s#%d", name, i)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

// sortKeys builds the composite key of node i: the key of every node on the
// trail from the root down to i. A child's key names therefore extend its
// parent's.
func sortKeys(tree *TableTree, i int, keyNames []string) []SortKey {
	var trail []int
	for j := i; j >= 0; j = tree.nodes[j].Parent {
		trail = append(trail, j)
	}
	slices.Reverse(trail)

	keys := make([]SortKey, 0, len(trail))
	for _, j := range trail {
		n := tree.nodes[j]
		keys = append(keys, SortKey{
			Name:    keyNames[j],
			Table:   n.Table,
			Column:  n.SortKey,
			Segment: len(n.Segments) - 1,
		})
	}
	return keys
}

func (ic *InstanceContainer) len() int {
	return len(ic.related) + 1
}

// at returns a pointer to the container with the given rank.
func (ic *InstanceContainer) at(rank int) *AttributesContainer {
	switch {
	case rank < ic.mainOffset:
		return &ic.related[rank]
	case rank == ic.mainOffset:
		return &ic.main
	default:
		return &ic.related[rank-1]
	}
}

// Tree returns the underlying table tree.
func (ic *InstanceContainer) Tree() *TableTree {
	return ic.tree
}

// Main returns the root container.
func (ic *InstanceContainer) Main() AttributesContainer {
	return ic.main.clone()
}

// Related returns the non-root containers in pre-order.
func (ic *InstanceContainer) Related() []AttributesContainer {
	out := make([]AttributesContainer, len(ic.related))
	for i, c := range ic.related {
		out[i] = c.clone()
	}
	return out
}

// MainOffset returns the rank of the root container.
func (ic *InstanceContainer) MainOffset() int {
	return ic.mainOffset
}

// All returns every container in priority rank order: All()[i].PriorityRank == i.
func (ic *InstanceContainer) All() []AttributesContainer {
	out := make([]AttributesContainer, ic.len())
	for rank := range out {
		out[rank] = ic.at(rank).clone()
	}
	return out
}

// Container returns the container with the given table key.
func (ic *InstanceContainer) Container(path string) (AttributesContainer, bool) {
	for rank := range ic.len() {
		if c := ic.at(rank); c.Path == path {
			return c.clone(), true
		}
	}
	return AttributesContainer{}, false
}

// SpatialAttribute returns the first attribute flagged {spatial}, in rank order.
func (ic *InstanceContainer) SpatialAttribute() (Attribute, bool) {
	for rank := range ic.len() {
		for _, a := range ic.at(rank).Attributes {
			if a.IsSpatial {
				return a, true
			}
		}
	}
	return Attribute{}, false
}

// Queryables returns every attribute exposed with {queryable=name}, in rank order.
func (ic *InstanceContainer) Queryables() []Attribute {
	var out []Attribute
	for rank := range ic.len() {
		for _, a := range ic.at(rank).Attributes {
			if a.Queryable != "" {
				out = append(out, a)
			}
		}
	}
	return out
}
