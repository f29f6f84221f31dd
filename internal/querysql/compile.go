// Package querysql compiles value and meta queries into parameterized SQL for
// SQLite.
//
// Table and column names come from parsed paths, which only admit
// identifiers; they are quoted anyway. Values are never interpolated.
// Every value query ends in an ORDER BY over the full sort key list, so rows
// leave the database in the order the reader merges them in.
package querysql

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/featurestream/internal/query"
	"github.com/roach88/featurestream/internal/schema"
)

// sb builds statements with ? placeholders.
var sb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// pageAlias is the alias of the main table inside page subqueries.
const pageAlias = "m"

// Compiler compiles query IR to SQL.
type Compiler struct{}

// NewCompiler creates a Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile converts a ValueQuery or MetaQuery to parameterized SQL.
//
// A value query selects the container's sort keys followed by its attributes.
// A meta query selects exactly four columns: min key, max key, number of
// features in the page and number matched (-1 unless requested).
func (c *Compiler) Compile(q query.Query) (string, []any, error) {
	if err := query.Validate(q); err != nil {
		return "", nil, err
	}

	switch q := q.(type) {
	case query.ValueQuery:
		return c.compileValue(q)
	case query.MetaQuery:
		return c.compileMeta(q)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *Compiler) compileValue(q query.ValueQuery) (string, []any, error) {
	segs := q.Container.Segments
	if len(segs) == 0 {
		return "", nil, fmt.Errorf("container %s has no segments", q.Container.Name)
	}
	last := alias(len(segs) - 1)

	cols := make([]string, 0, len(q.SortKeys)+len(q.Container.Attributes))
	orderBy := make([]string, 0, len(q.SortKeys))
	for _, k := range q.SortKeys {
		if k.Segment < 0 || k.Segment >= len(segs) {
			return "", nil, fmt.Errorf("sort key %s refers to segment %d of %d", k.Name, k.Segment, len(segs))
		}
		col := column(alias(k.Segment), k.Column)
		cols = append(cols, col)
		orderBy = append(orderBy, orderTerm(col, k.Descending))
	}
	for _, a := range q.Container.Attributes {
		cols = append(cols, column(last, a.Name))
	}

	b := sb.Select(cols...).From(table(segs[0].Table, alias(0)))
	for k := 1; k < len(segs); k++ {
		j := segs[k].Join
		if j == nil {
			return "", nil, fmt.Errorf("segment %s of %s has no join condition", segs[k].Table, q.Container.Path)
		}
		b = b.Join(fmt.Sprintf("%s ON %s = %s",
			table(segs[k].Table, alias(k)),
			column(alias(k-1), j.SourceColumn),
			column(alias(k), j.TargetColumn),
		))
	}

	key := column(alias(0), q.Main.SortKey)
	switch {
	case len(q.IDs) > 0:
		ids := make([]any, len(q.IDs))
		for i, id := range q.IDs {
			ids[i] = id.Any()
		}
		b = b.Where(sq.Eq{column(alias(0), query.IDColumn(q.Main)): ids})
	case q.Bounded():
		b = b.Where(sq.GtOrEq{key: q.MinKey.Any()}).Where(sq.LtOrEq{key: q.MaxKey.Any()})
	case q.Limit > 0 || q.Offset > 0:
		page, err := c.page(q.Main, q.Limit, q.Offset, q.SortBy, q.Filter)
		if err != nil {
			return "", nil, err
		}
		pageSQL, args, err := page.ToSql()
		if err != nil {
			return "", nil, fmt.Errorf("compile page: %w", err)
		}
		b = b.Where(sq.Expr(key+" IN ("+pageSQL+")", args...))
	}

	if q.Filter != nil {
		filter, err := predicate(q.Filter, alias(0))
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b = b.Where(filter)
	}

	return b.OrderBy(orderBy...).ToSql()
}

func (c *Compiler) compileMeta(q query.MetaQuery) (string, []any, error) {
	page, err := c.page(q.Main, q.Limit, q.Offset, q.SortBy, q.Filter)
	if err != nil {
		return "", nil, err
	}

	var matched any = "-1"
	if q.ComputeNumberMatched {
		count := sb.Select("COUNT(*)").From(table(q.Main.Name, pageAlias))
		if q.Filter != nil {
			filter, err := predicate(q.Filter, pageAlias)
			if err != nil {
				return "", nil, fmt.Errorf("compile filter: %w", err)
			}
			count = count.Where(filter)
		}
		matched = sq.Alias(count, "number_matched")
	}

	return sb.Select("MIN(page.k)", "MAX(page.k)", "COUNT(*)").
		Column(matched).
		FromSelect(page, "page").
		ToSql()
}

// page selects the main keys of one page, in page order, as column k.
// The page is ordered by the requested sort columns, then by the main key.
func (c *Compiler) page(main schema.AttributesContainer, limit, offset int, sortBy []query.SortBy, filter query.Predicate) (sq.SelectBuilder, error) {
	key := column(pageAlias, main.SortKey)
	b := sb.Select(key + " AS k").From(table(main.Name, pageAlias))

	if filter != nil {
		where, err := predicate(filter, pageAlias)
		if err != nil {
			return b, fmt.Errorf("compile filter: %w", err)
		}
		b = b.Where(where)
	}

	orderBy := make([]string, 0, len(sortBy)+1)
	for _, s := range sortBy {
		orderBy = append(orderBy, orderTerm(column(pageAlias, s.Column), s.Descending))
	}
	orderBy = append(orderBy, orderTerm(key, false))
	b = b.OrderBy(orderBy...)

	switch {
	case limit > 0:
		b = b.Limit(uint64(limit))
	case offset > 0:
		// SQLite requires a LIMIT before OFFSET.
		b = b.Limit(math.MaxInt64)
	}
	if offset > 0 {
		b = b.Offset(uint64(offset))
	}
	return b, nil
}

// predicate compiles a filter over columns of the table aliased as alias.
func predicate(p query.Predicate, alias string) (sq.Sqlizer, error) {
	switch p := p.(type) {
	case query.Equals:
		if p.Value == nil {
			return nil, fmt.Errorf("equals %s has no value", p.Field)
		}
		return sq.Eq{column(alias, p.Field): p.Value.Any()}, nil
	case query.And:
		if len(p.Predicates) == 0 {
			return sq.Expr("1 = 1"), nil
		}
		and := make(sq.And, 0, len(p.Predicates))
		for _, child := range p.Predicates {
			s, err := predicate(child, alias)
			if err != nil {
				return nil, err
			}
			and = append(and, s)
		}
		return and, nil
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func alias(segment int) string {
	return "t" + strconv.Itoa(segment)
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func table(name, alias string) string {
	return quote(name) + " AS " + alias
}

func column(alias, name string) string {
	return alias + "." + quote(name)
}

// orderTerm sorts nulls first in both directions and compares text bytewise.
func orderTerm(col string, descending bool) string {
	dir := "ASC"
	if descending {
		dir = "DESC"
	}
	return col + " COLLATE BINARY " + dir + " NULLS FIRST"
}
