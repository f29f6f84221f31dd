package query

import (
	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/schema"
)

// Query is a request handed to a cursor provider, or by callers to the
// reader. Sealed.
type Query interface {
	queryNode()
}

// Predicate is a filter condition. Sealed.
type Predicate interface {
	predicateNode()
}

// SortBy is a caller-requested sort column of the main table.
type SortBy struct {
	Column     string
	Descending bool
}

// FeatureQuery asks for one page of features of one type.
//
// Limit 0 means no limit. IDs restricts the result to the given feature ids
// and disables the meta query.
type FeatureQuery struct {
	Type                 string
	Limit                int
	Offset               int
	IDs                  []ir.Value
	SortBy               []SortBy
	Filter               Predicate
	ComputeNumberMatched bool
}

func (FeatureQuery) queryNode() {}

// MetaQuery asks for the counters of one page: min and max main key, number
// of features returned, and the number matched (when ComputeNumberMatched).
type MetaQuery struct {
	Main                 schema.AttributesContainer
	Limit                int
	Offset               int
	SortBy               []SortBy
	Filter               Predicate
	ComputeNumberMatched bool
}

func (MetaQuery) queryNode() {}

// ValueQuery asks for the rows of one container, sorted by SortKeys.
//
// The page is restricted by exactly one of: IDs, the key bounds
// [MinKey, MaxKey] on the main sort key, or Limit/Offset over the main table.
type ValueQuery struct {
	Container schema.AttributesContainer
	Main      schema.AttributesContainer
	SortKeys  []schema.SortKey
	MinKey    ir.Value
	MaxKey    ir.Value
	Limit     int
	Offset    int
	IDs       []ir.Value
	SortBy    []SortBy
	Filter    Predicate
}

func (ValueQuery) queryNode() {}

// Bounded reports whether the query is restricted by key bounds.
func (q ValueQuery) Bounded() bool {
	return !ir.IsNull(q.MinKey) && !ir.IsNull(q.MaxKey)
}

// Equals matches rows whose field equals a literal.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// And matches rows satisfying every predicate. Empty means always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// IDColumn returns the column feature ids refer to: the main container's
// identity attribute, else its primary key.
func IDColumn(main schema.AttributesContainer) string {
	for _, a := range main.Attributes {
		if a.IsIdentity {
			return a.Name
		}
	}
	return main.PrimaryKey
}
