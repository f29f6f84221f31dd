package pathsyntax

import (
	"fmt"
	"regexp"
)

// Fixed separators of the path grammar.
const (
	PathSeparator        = "/"
	MultiColumnSeparator = ":"
)

// Defaults for SyntaxConfig.
const (
	DefaultJunctionTablePattern = ".+_2_.+"
	DefaultPrimaryKey           = "id"
)

const identifierPattern = `[a-zA-Z_][a-zA-Z0-9_]*`

// SyntaxConfig holds the configurable parts of the path grammar.
// It is an immutable value: build it once with NewSyntaxConfig and pass it to
// every parse call. The compiled patterns are safe for concurrent use.
type SyntaxConfig struct {
	junctionPattern   string
	defaultPrimaryKey string
	defaultSortKey    string

	junction *regexp.Regexp
	column   *regexp.Regexp
	segment  *regexp.Regexp
	flag     *regexp.Regexp
}

// Option configures a SyntaxConfig.
type Option func(*SyntaxConfig)

// WithJunctionTablePattern sets the naming convention that identifies
// junction (link) tables. Default: ".+_2_.+".
func WithJunctionTablePattern(pattern string) Option {
	return func(c *SyntaxConfig) {
		c.junctionPattern = pattern
	}
}

// WithDefaultPrimaryKey sets the primary key column name. Default: "id".
// The default sort key follows it unless WithDefaultSortKey is given.
func WithDefaultPrimaryKey(column string) Option {
	return func(c *SyntaxConfig) {
		c.defaultPrimaryKey = column
	}
}

// WithDefaultSortKey sets the sort key column name used when a table segment
// carries no {sortKey=...} flag.
func WithDefaultSortKey(column string) Option {
	return func(c *SyntaxConfig) {
		c.defaultSortKey = column
	}
}

// NewSyntaxConfig builds a SyntaxConfig. Returns an error when the junction
// table pattern does not compile or a key column is not an identifier.
func NewSyntaxConfig(opts ...Option) (SyntaxConfig, error) {
	c := SyntaxConfig{
		junctionPattern:   DefaultJunctionTablePattern,
		defaultPrimaryKey: DefaultPrimaryKey,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.defaultSortKey == "" {
		c.defaultSortKey = c.defaultPrimaryKey
	}

	ident := regexp.MustCompile("^" + identifierPattern + "$")
	if !ident.MatchString(c.defaultPrimaryKey) {
		return SyntaxConfig{}, fmt.Errorf("invalid default primary key %q", c.defaultPrimaryKey)
	}
	if !ident.MatchString(c.defaultSortKey) {
		return SyntaxConfig{}, fmt.Errorf("invalid default sort key %q", c.defaultSortKey)
	}

	junction, err := regexp.Compile(c.junctionPattern)
	if err != nil {
		return SyntaxConfig{}, fmt.Errorf("invalid junction table pattern %q: %w", c.junctionPattern, err)
	}
	c.junction = junction

	sep := regexp.QuoteMeta(PathSeparator)
	multi := regexp.QuoteMeta(MultiColumnSeparator)
	join := `\[(` + identifierPattern + `)=(` + identifierPattern + `)\]`
	tableFlags := `(?:\{[a-zA-Z_]+=[^{}]*\})*`
	segment := `(?:` + join + `)?(` + identifierPattern + `)(` + tableFlags + `)`

	c.segment = regexp.MustCompile("^" + segment + "$")
	c.column = regexp.MustCompile(
		`^((?:` + sep + `(?:\[` + identifierPattern + `=` + identifierPattern + `\])?` + identifierPattern + tableFlags + `)+)` +
			sep + `(` + identifierPattern + `(?:` + multi + identifierPattern + `)*)` +
			`((?:\{[^{}]*\})*)$`)
	c.flag = regexp.MustCompile(`\{([a-zA-Z_]+)(?:=([^{}]*))?\}`)

	return c, nil
}

// DefaultSyntax returns the default SyntaxConfig.
func DefaultSyntax() SyntaxConfig {
	c, err := NewSyntaxConfig()
	if err != nil {
		panic(err) // defaults always compile
	}
	return c
}

// JunctionTablePattern returns the configured junction naming pattern.
func (c SyntaxConfig) JunctionTablePattern() string { return c.junctionPattern }

// DefaultPrimaryKey returns the configured primary key column name.
func (c SyntaxConfig) DefaultPrimaryKey() string { return c.defaultPrimaryKey }

// DefaultSortKey returns the configured sort key column name.
func (c SyntaxConfig) DefaultSortKey() string { return c.defaultSortKey }

// IsJunctionTable reports whether an identifier (or a whole path) denotes a
// junction table by naming convention. Uses find semantics, like the pattern
// was always applied: ".+_2_.+" matches anywhere in the string.
func (c SyntaxConfig) IsJunctionTable(s string) bool {
	if c.junction == nil {
		return false
	}
	return c.junction.MatchString(s)
}
