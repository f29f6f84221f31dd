package schema

import (
	"slices"

	"github.com/roach88/featurestream/internal/pathsyntax"
)

// TableType is the relational role of a table node.
type TableType int

const (
	// Undecided is the state before classification. It never survives Compile.
	Undecided TableType = iota
	Main
	Merged
	OneToOne
	OneToMany
	ManyToMany
	// Ref is reserved for references to other feature types.
	Ref
)

var tableTypeNames = [...]string{
	Undecided:  "UNDECIDED",
	Main:       "MAIN",
	Merged:     "MERGED",
	OneToOne:   "ONE_TO_ONE",
	OneToMany:  "ONE_TO_MANY",
	ManyToMany: "MANY_TO_MANY",
	Ref:        "REF",
}

func (t TableType) String() string {
	if t < 0 || int(t) >= len(tableTypeNames) {
		return "UNKNOWN"
	}
	return tableTypeNames[t]
}

// Repeats reports whether rows of this type may occur more than once per
// parent row.
func (t TableType) Repeats() bool {
	return t == OneToMany || t == ManyToMany
}

// Entry is one annotated path plus its configuration metadata.
// SortPriority wins over a {priority=N} flag; IsIdentity is ORed with {oid}.
type Entry struct {
	Path         string
	SortPriority *int
	IsIdentity   bool
}

// Attribute is one mapped column.
type Attribute struct {
	Name       string // column name
	Path       string // table key + "/" + column
	IsIdentity bool
	IsSpatial  bool
	Queryable  string
}

// SortKey is one component of a container's composite sort key.
type SortKey struct {
	Name       string // qualified "table.column"
	Table      string
	Column     string
	Segment    int // index into the container's segments
	Descending bool
}

// TableNode is one node of the table tree. Parent and Children are indices
// into the owning TableTree.
type TableNode struct {
	Path       string // flag-insensitive table key
	TablePath  string // table path including table flags
	Table      string
	Segments   []pathsyntax.Segment
	Type       TableType
	Joins      []pathsyntax.JoinCondition
	Columns    []Attribute
	SortKey    string
	PrimaryKey string
	Parent     int // -1 for the root
	Children   []int
}

// IsRoot reports whether the node has no parent.
func (n TableNode) IsRoot() bool {
	return n.Parent < 0
}

func (n TableNode) clone() TableNode {
	n.Segments = slices.Clone(n.Segments)
	n.Joins = slices.Clone(n.Joins)
	n.Columns = slices.Clone(n.Columns)
	n.Children = slices.Clone(n.Children)
	return n
}

// AttributesContainer is the queryable view of one table node.
type AttributesContainer struct {
	Name         string
	Path         string
	TablePath    string
	Segments     []pathsyntax.Segment
	Joins        []pathsyntax.JoinCondition
	SortKey      string
	PrimaryKey   string
	SortKeys     []SortKey
	Attributes   []Attribute
	PriorityRank int
	Type         TableType
	Node         int
}

// SortKeyNames returns the qualified names of the container's sort keys.
func (c AttributesContainer) SortKeyNames() []string {
	names := make([]string, len(c.SortKeys))
	for i, k := range c.SortKeys {
		names[i] = k.Name
	}
	return names
}

// Attribute returns the attribute with the given column name.
func (c AttributesContainer) Attribute(name string) (Attribute, bool) {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

func (c AttributesContainer) clone() AttributesContainer {
	c.Segments = slices.Clone(c.Segments)
	c.Joins = slices.Clone(c.Joins)
	c.SortKeys = slices.Clone(c.SortKeys)
	c.Attributes = slices.Clone(c.Attributes)
	return c
}
