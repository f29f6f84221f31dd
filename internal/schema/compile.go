package schema

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/roach88/featurestream/internal/pathsyntax"
)

// Option configures Compile.
type Option func(*compiler)

// WithSyntax sets the path syntax. Default: pathsyntax.DefaultSyntax().
func WithSyntax(cfg pathsyntax.SyntaxConfig) Option {
	return func(c *compiler) {
		c.syntax = cfg
	}
}

// WithLogger sets the logger used to report dropped paths and flag
// conflicts. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *compiler) {
		c.logger = logger
	}
}

type compiler struct {
	syntax pathsyntax.SyntaxConfig
	logger *slog.Logger

	nodes []TableNode
	byKey map[string]int
	// firstOwn is the sorted entry position that first contributed columns
	// to each node; column-less nodes keep len(entries).
	firstOwn []int
}

type parsedEntry struct {
	path     pathsyntax.Path
	priority *int
	identity bool
}

// Compile turns a feature type's annotated paths into an InstanceContainer.
//
// Compilation is pure and deterministic: equal inputs yield structurally
// identical trees. The only errors are NoRootFound (no path parsed) and
// MultipleRoots (the paths do not share one root table).
func Compile(entries []Entry, opts ...Option) (*InstanceContainer, error) {
	c := &compiler{
		syntax: pathsyntax.DefaultSyntax(),
		logger: slog.Default(),
		byKey:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}

	parsed := c.parse(entries)
	sortByPriority(parsed)

	for pos, e := range parsed {
		c.add(pos, e, len(parsed))
	}

	if len(c.nodes) == 0 {
		return nil, &CompileError{
			Code:    ErrCodeNoRootFound,
			Message: "no annotated path could be parsed",
		}
	}

	root, err := c.link()
	if err != nil {
		return nil, err
	}

	tree := &TableTree{nodes: c.nodes, root: root, syntax: c.syntax}
	classify(tree, c.syntax)

	return newInstanceContainer(tree, c.firstOwn, c.logger), nil
}

func (c *compiler) parse(entries []Entry) []parsedEntry {
	parsed := make([]parsedEntry, 0, len(entries))
	for _, e := range entries {
		p, ok := c.syntax.ParsePath(e.Path)
		if !ok {
			c.logger.Warn("dropping unrecognized path", "path", e.Path)
			continue
		}

		pe := parsedEntry{path: p, identity: e.IsIdentity || p.Flags.OID}
		switch {
		case e.SortPriority != nil:
			prio := *e.SortPriority
			pe.priority = &prio
		case p.Flags.HasPriority:
			prio := p.Flags.Priority
			pe.priority = &prio
		}
		parsed = append(parsed, pe)
	}
	return parsed
}

// sortByPriority orders prioritized entries ascending, followed by the rest in
// input order.
func sortByPriority(parsed []parsedEntry) {
	slices.SortStableFunc(parsed, func(a, b parsedEntry) int {
		switch {
		case a.priority != nil && b.priority != nil:
			return cmp.Compare(*a.priority, *b.priority)
		case a.priority != nil:
			return -1
		case b.priority != nil:
			return 1
		default:
			return 0
		}
	})
}

// add registers the entry's strict prefixes (fan-out) and its own node, then
// merges its columns into that node.
func (c *compiler) add(pos int, e parsedEntry, total int) {
	segs := e.path.Segments
	for k := 1; k < len(segs); k++ {
		if c.syntax.IsJunctionTable(segs[k-1].Table) {
			continue
		}
		c.ensure(segs[:k], total)
	}
	i := c.ensure(segs, total)
	if c.firstOwn[i] == total {
		c.firstOwn[i] = pos
	}

	key := e.path.TableKey()
	for _, col := range e.path.Columns {
		attr := Attribute{
			Name:       col,
			Path:       key + pathsyntax.PathSeparator + col,
			IsIdentity: e.identity,
			IsSpatial:  e.path.Flags.Spatial,
			Queryable:  e.path.Flags.Queryable,
		}
		c.mergeColumn(i, attr)
	}
}

// ensure returns the node for segs, creating it on first appearance. Table
// flags of later appearances only fill flags still unset; conflicting values
// are ignored and logged.
func (c *compiler) ensure(segs []pathsyntax.Segment, total int) int {
	key := pathsyntax.JoinKey(segs)
	last := segs[len(segs)-1]

	if i, ok := c.byKey[key]; ok {
		n := &c.nodes[i]
		n.SortKey = c.mergeFlag(key, "sortKey", n.SortKey, last.Flags.SortKey)
		n.PrimaryKey = c.mergeFlag(key, "primaryKey", n.PrimaryKey, last.Flags.PrimaryKey)
		return i
	}

	n := TableNode{
		Path:       key,
		Table:      last.Table,
		Segments:   slices.Clone(segs),
		Joins:      pathsyntax.Path{Segments: segs}.Joins(),
		SortKey:    last.Flags.SortKey,
		PrimaryKey: last.Flags.PrimaryKey,
		Parent:     -1,
	}
	c.nodes = append(c.nodes, n)
	c.firstOwn = append(c.firstOwn, total)
	c.byKey[key] = len(c.nodes) - 1
	return len(c.nodes) - 1
}

func (c *compiler) mergeFlag(key, flag, current, next string) string {
	switch {
	case current == "":
		return next
	case next != "" && next != current:
		c.logger.Warn("ignoring conflicting table flag",
			"table_path", key,
			"flag", flag,
			"kept", current,
			"ignored", next,
		)
	}
	return current
}

// mergeColumn adds attr to node i. A column mapped twice keeps its first
// path and queryable name; identity and spatial flags accumulate.
func (c *compiler) mergeColumn(i int, attr Attribute) {
	n := &c.nodes[i]
	for j := range n.Columns {
		existing := &n.Columns[j]
		if existing.Name != attr.Name {
			continue
		}
		existing.IsIdentity = existing.IsIdentity || attr.IsIdentity
		existing.IsSpatial = existing.IsSpatial || attr.IsSpatial
		if existing.Queryable == "" {
			existing.Queryable = attr.Queryable
		}
		return
	}
	n.Columns = append(n.Columns, attr)
}

// link assigns every node the node with the longest strict segment-prefix
// match as parent, fills key defaults, and returns the single root.
func (c *compiler) link() (int, error) {
	var roots []int
	for i := range c.nodes {
		n := &c.nodes[i]
		if n.SortKey == "" {
			n.SortKey = c.syntax.DefaultSortKey()
		}
		if n.PrimaryKey == "" {
			n.PrimaryKey = c.syntax.DefaultPrimaryKey()
		}
		n.TablePath = pathsyntax.JoinPath(withFlags(n.Segments, n.SortKey, n.PrimaryKey, c.syntax))

		for k := len(n.Segments) - 1; k >= 1; k-- {
			if p, ok := c.byKey[pathsyntax.JoinKey(n.Segments[:k])]; ok {
				n.Parent = p
				break
			}
		}
		if n.Parent < 0 {
			roots = append(roots, i)
		}
	}

	if len(roots) != 1 {
		paths := make([]string, len(roots))
		for k, r := range roots {
			paths[k] = c.nodes[r].Path
		}
		return 0, &CompileError{
			Code:    ErrCodeMultipleRoots,
			Message: "annotated paths do not share a single root table",
			Paths:   paths,
		}
	}

	for i := range c.nodes {
		if p := c.nodes[i].Parent; p >= 0 {
			c.nodes[p].Children = append(c.nodes[p].Children, i)
		}
	}
	return roots[0], nil
}

// withFlags returns segs with the last segment carrying the resolved key
// flags, omitting those equal to the configured defaults.
func withFlags(segs []pathsyntax.Segment, sortKey, primaryKey string, syntax pathsyntax.SyntaxConfig) []pathsyntax.Segment {
	out := slices.Clone(segs)
	last := &out[len(out)-1]
	last.Flags = pathsyntax.TableFlags{}
	if sortKey != syntax.DefaultSortKey() {
		last.Flags.SortKey = sortKey
	}
	if primaryKey != syntax.DefaultPrimaryKey() {
		last.Flags.PrimaryKey = primaryKey
	}
	return out
}
