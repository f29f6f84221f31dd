package pathsyntax

import (
	"strconv"
	"strings"
)

// JoinCondition links a table segment to its predecessor:
// predecessor.SourceColumn = TargetTable.TargetColumn.
type JoinCondition struct {
	SourceColumn string
	TargetColumn string
	TargetTable  string
}

// String renders the join marker, e.g. "[id=parcel_id]".
func (j JoinCondition) String() string {
	return "[" + j.SourceColumn + "=" + j.TargetColumn + "]"
}

// IsSelfJoin reports whether the condition is the identity marker [id=id]
// for the given primary key column.
func (j JoinCondition) IsSelfJoin(primaryKey string) bool {
	return j.SourceColumn == primaryKey && j.TargetColumn == primaryKey
}

// TableFlags are per-segment key overrides: {sortKey=col} and {primaryKey=col}.
type TableFlags struct {
	SortKey    string
	PrimaryKey string
}

// Segment is one table step of a path.
type Segment struct {
	Table string
	Join  *JoinCondition // nil for the first segment of a path
	Flags TableFlags
}

// Key renders the segment without table flags.
func (s Segment) Key() string {
	if s.Join == nil {
		return s.Table
	}
	return s.Join.String() + s.Table
}

// String renders the segment with table flags.
func (s Segment) String() string {
	var b strings.Builder
	b.WriteString(s.Key())
	if s.Flags.SortKey != "" {
		b.WriteString("{sortKey=" + s.Flags.SortKey + "}")
	}
	if s.Flags.PrimaryKey != "" {
		b.WriteString("{primaryKey=" + s.Flags.PrimaryKey + "}")
	}
	return b.String()
}

// Flags are the terminal column flags of a path.
type Flags struct {
	OID         bool
	Spatial     bool
	Priority    int
	HasPriority bool
	Queryable   string
}

// Path is a parsed annotated path.
type Path struct {
	Raw      string
	Segments []Segment
	Columns  []string
	Flags    Flags
}

// Table returns the name of the last table segment.
func (p Path) Table() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[len(p.Segments)-1].Table
}

// TablePath renders the table segments with their table flags.
func (p Path) TablePath() string {
	return JoinPath(p.Segments)
}

// TableKey renders the table segments without flags. Two paths with equal
// table keys address the same table node.
func (p Path) TableKey() string {
	return JoinKey(p.Segments)
}

// Joins returns the join conditions along the table segments.
func (p Path) Joins() []JoinCondition {
	return joinsOf(p.Segments)
}

// JoinPath renders segments back into "/a/[x=y]b" form, table flags included.
func JoinPath(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(PathSeparator)
		b.WriteString(s.String())
	}
	return b.String()
}

// JoinKey renders segments without table flags.
func JoinKey(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(PathSeparator)
		b.WriteString(s.Key())
	}
	return b.String()
}

// ParsePath parses a full annotated path. ok is false when the path has no
// recognizable trailing column segment; callers treat that as "not mapped".
func (c SyntaxConfig) ParsePath(raw string) (Path, bool) {
	if c.column == nil {
		return Path{}, false
	}
	m := c.column.FindStringSubmatch(raw)
	if m == nil {
		return Path{}, false
	}

	segments := c.ParseSegments(m[1])
	if len(segments) == 0 {
		return Path{}, false
	}

	return Path{
		Raw:      raw,
		Segments: segments,
		Columns:  strings.Split(m[2], MultiColumnSeparator),
		Flags:    c.parseFlags(m[3]),
	}, true
}

// ParseSegments splits a table path ("/a/[x=y]b{sortKey=k}") into segments.
// Unrecognized segments are skipped.
func (c SyntaxConfig) ParseSegments(tablePath string) []Segment {
	if c.segment == nil {
		return nil
	}

	var segments []Segment
	for _, part := range strings.Split(tablePath, PathSeparator) {
		if part == "" {
			continue
		}
		m := c.segment.FindStringSubmatch(part)
		if m == nil {
			continue
		}

		seg := Segment{Table: m[3]}
		if m[1] != "" {
			seg.Join = &JoinCondition{
				SourceColumn: m[1],
				TargetColumn: m[2],
				TargetTable:  m[3],
			}
		}
		for _, f := range c.flag.FindAllStringSubmatch(m[4], -1) {
			switch f[1] {
			case "sortKey":
				seg.Flags.SortKey = f[2]
			case "primaryKey":
				seg.Flags.PrimaryKey = f[2]
			}
		}
		segments = append(segments, seg)
	}
	return segments
}

// ExtractJoins returns one join condition per joined segment of a table path.
func (c SyntaxConfig) ExtractJoins(tablePath string) []JoinCondition {
	return joinsOf(c.ParseSegments(tablePath))
}

// ExtractColumns returns the column names and flags of a full path.
// Both are empty when the path does not parse.
func (c SyntaxConfig) ExtractColumns(raw string) ([]string, Flags) {
	p, ok := c.ParsePath(raw)
	if !ok {
		return nil, Flags{}
	}
	return p.Columns, p.Flags
}

func (c SyntaxConfig) parseFlags(s string) Flags {
	var flags Flags
	for _, f := range c.flag.FindAllStringSubmatch(s, -1) {
		switch f[1] {
		case "oid":
			flags.OID = true
		case "spatial":
			flags.Spatial = true
		case "priority":
			if n, err := strconv.Atoi(f[2]); err == nil {
				flags.Priority = n
				flags.HasPriority = true
			}
		case "queryable":
			flags.Queryable = f[2]
		}
	}
	return flags
}

func joinsOf(segments []Segment) []JoinCondition {
	var joins []JoinCondition
	for _, s := range segments {
		if s.Join != nil {
			joins = append(joins, *s.Join)
		}
	}
	return joins
}
