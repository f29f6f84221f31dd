package schema

import (
	"github.com/roach88/featurestream/internal/pathsyntax"
)

// classify assigns every node its TableType, parents before children.
func classify(t *TableTree, syntax pathsyntax.SyntaxConfig) {
	for i := range t.Walk() {
		n := &t.nodes[i]
		parentType := Undecided
		if n.Parent >= 0 {
			parentType = t.nodes[n.Parent].Type
		}
		n.Type = decideType(*n, t.nodes, parentType, syntax)
	}
}

// decideType evaluates the classification table top-down; first match wins.
func decideType(n TableNode, nodes []TableNode, parentType TableType, syntax pathsyntax.SyntaxConfig) TableType {
	for _, c := range n.Columns {
		if c.IsIdentity {
			return Main
		}
	}
	if n.Parent < 0 {
		return Merged
	}

	rel := relativeJoins(n, nodes[n.Parent])

	if len(rel) > 0 &&
		rel[0].IsSelfJoin(syntax.DefaultPrimaryKey()) &&
		(parentType == Main || parentType == Merged) &&
		!syntax.IsJunctionTable(n.Path) {
		return Merged
	}

	for _, j := range rel {
		if syntax.IsJunctionTable(j.TargetTable) {
			if len(rel) == 1 {
				return OneToMany
			}
			return ManyToMany
		}
	}

	if len(rel) > 0 && rel[0].SourceColumn == syntax.DefaultPrimaryKey() {
		return OneToMany
	}
	return OneToOne
}

// relativeJoins returns the join conditions of the segments n adds below its
// parent, including hops through junction tables.
func relativeJoins(n, parent TableNode) []pathsyntax.JoinCondition {
	return pathsyntax.Path{Segments: n.Segments[len(parent.Segments):]}.Joins()
}
