// Package row defines the rows flowing through a merge and the ordering law
// between them.
package row

import (
	"strings"

	"github.com/roach88/featurestream/internal/ir"
)

// Direction is the sort direction of one sort-key column.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// Row is one fetched record of one container. Rows are never mutated after
// creation.
type Row struct {
	// Name is the container (table) name.
	Name string
	// Path is the container's table key.
	Path string

	// SortKeyNames lists the qualified key names, ancestor to descendant.
	SortKeyNames      []string
	SortKeyValues     []ir.Value
	SortKeyDirections []Direction

	// Priority is the container's priority rank; the final tie-break.
	Priority int

	Values []any
	IsMeta bool

	meta MetaInfo
}

// MetaInfo carries the aggregate pagination counters of one query.
// NumberMatched is -1 when it was not computed.
type MetaInfo struct {
	MinKey         ir.Value
	MaxKey         ir.Value
	NumberReturned int64
	NumberMatched  int64
}

// ZeroMeta is substituted when no meta information is available.
func ZeroMeta() MetaInfo {
	return MetaInfo{MinKey: ir.Null{}, MaxKey: ir.Null{}}
}

// HasBounds reports whether both key bounds are known.
func (m MetaInfo) HasBounds() bool {
	return !ir.IsNull(m.MinKey) && !ir.IsNull(m.MaxKey)
}

// NewMeta builds the synthetic meta row. It sorts before every other row.
func NewMeta(info MetaInfo) Row {
	if info.MinKey == nil {
		info.MinKey = ir.Null{}
	}
	if info.MaxKey == nil {
		info.MaxKey = ir.Null{}
	}
	return Row{Name: "meta", IsMeta: true, meta: info}
}

// Meta returns the counters of a meta row; ok is false for value rows.
func (r Row) Meta() (MetaInfo, bool) {
	return r.meta, r.IsMeta
}

// direction returns the direction of key i; missing entries are ascending.
func (r Row) direction(i int) Direction {
	if i < len(r.SortKeyDirections) {
		return r.SortKeyDirections[i]
	}
	return Ascending
}

// key returns sort-key value i; missing entries are null.
func (r Row) key(i int) ir.Value {
	if i < len(r.SortKeyValues) && r.SortKeyValues[i] != nil {
		return r.SortKeyValues[i]
	}
	return ir.Null{}
}

// String renders the row for traces, e.g. "addresses[1 10]".
func (r Row) String() string {
	if r.IsMeta {
		return "meta"
	}
	keys := make([]string, len(r.SortKeyValues))
	for i := range r.SortKeyValues {
		keys[i] = r.key(i).String()
	}
	return r.Name + "[" + strings.Join(keys, " ") + "]"
}
