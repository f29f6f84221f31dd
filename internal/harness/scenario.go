package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/query"
	"github.com/roach88/featurestream/internal/schema"
)

// Scenario defines one merge scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Type is the feature type name.
	Type string `yaml:"type"`

	// Paths is the inline mapping of the feature type.
	Paths []PathEntry `yaml:"paths,omitempty"`

	// FeatureTypes is a directory of CUE feature types, used when Paths is
	// empty. Relative to the scenario file when loaded with a base path.
	FeatureTypes string `yaml:"feature_types,omitempty"`

	// Schema holds the statements creating the fixture tables.
	Schema []string `yaml:"schema"`

	// Data holds fixture rows, inserted table by table in order.
	Data []TableData `yaml:"data,omitempty"`

	Query QuerySpec `yaml:"query"`

	Assertions []Assertion `yaml:"assertions,omitempty"`

	// ExecutionID fixes the execution id. Defaults to "scenario-exec".
	ExecutionID string `yaml:"execution_id,omitempty"`
}

// PathEntry is one annotated path. In YAML it is either a plain string or a
// mapping with path, priority and identity.
type PathEntry struct {
	Path     string `yaml:"path"`
	Priority *int   `yaml:"priority,omitempty"`
	Identity bool   `yaml:"identity,omitempty"`
}

// UnmarshalYAML accepts the scalar shorthand.
func (p *PathEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Path = node.Value
		return nil
	}
	type plain PathEntry
	var v plain
	if err := node.Decode(&v); err != nil {
		return err
	}
	*p = PathEntry(v)
	return nil
}

// Entry converts to a schema entry.
func (p PathEntry) Entry() schema.Entry {
	return schema.Entry{Path: p.Path, SortPriority: p.Priority, IsIdentity: p.Identity}
}

// TableData holds fixture rows for one table.
type TableData struct {
	Table string           `yaml:"table"`
	Rows  []map[string]any `yaml:"rows"`
}

// QuerySpec is the feature query of a scenario.
type QuerySpec struct {
	Limit  int        `yaml:"limit,omitempty"`
	Offset int        `yaml:"offset,omitempty"`
	IDs    []any      `yaml:"ids,omitempty"`
	SortBy []SortSpec `yaml:"sort_by,omitempty"`

	// Filter maps queryable names to the value they must equal.
	Filter map[string]any `yaml:"filter,omitempty"`

	NumberMatched bool `yaml:"number_matched,omitempty"`
}

// SortSpec is one requested sort column.
type SortSpec struct {
	Column     string `yaml:"column"`
	Descending bool   `yaml:"descending,omitempty"`
}

// FeatureQuery builds the query for feature type typ.
func (q QuerySpec) FeatureQuery(typ string) (query.FeatureQuery, error) {
	fq := query.FeatureQuery{
		Type:                 typ,
		Limit:                q.Limit,
		Offset:               q.Offset,
		ComputeNumberMatched: q.NumberMatched,
	}

	if len(q.IDs) > 0 {
		ids, err := ir.Values(q.IDs...)
		if err != nil {
			return fq, fmt.Errorf("ids: %w", err)
		}
		fq.IDs = ids
	}

	for _, s := range q.SortBy {
		fq.SortBy = append(fq.SortBy, query.SortBy{Column: s.Column, Descending: s.Descending})
	}

	fields := make([]string, 0, len(q.Filter))
	for field := range q.Filter {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	var preds []query.Predicate
	for _, field := range fields {
		v, err := ir.FromAny(q.Filter[field])
		if err != nil {
			return fq, fmt.Errorf("filter %s: %w", field, err)
		}
		preds = append(preds, query.Equals{Field: field, Value: v})
	}
	switch len(preds) {
	case 0:
	case 1:
		fq.Filter = preds[0]
	default:
		fq.Filter = query.And{Predicates: preds}
	}
	return fq, nil
}

// Assertion type constants.
const (
	AssertRows      = "rows"
	AssertRowOrder  = "row_order"
	AssertRowCount  = "row_count"
	AssertRowValues = "row_values"
	AssertMeta      = "meta"
	AssertReadError = "read_error"
)

// Assertion validates the merged stream.
type Assertion struct {
	Type string `yaml:"type"`

	// Rows are row labels (used by rows, row_order).
	Rows []string `yaml:"rows,omitempty"`

	// Container is a container name (used by row_count).
	Container string `yaml:"container,omitempty"`

	// Count is the expected number of rows (used by row_count).
	Count int `yaml:"count,omitempty"`

	// Row is a row label (used by row_values).
	Row string `yaml:"row,omitempty"`

	// Values are the expected attribute values (used by row_values).
	Values []any `yaml:"values,omitempty"`

	// Meta counters (used by meta). Unset fields are not checked.
	Returned *int64 `yaml:"returned,omitempty"`
	Matched  *int64 `yaml:"matched,omitempty"`
	MinKey   any    `yaml:"min_key,omitempty"`
	MaxKey   any    `yaml:"max_key,omitempty"`

	// Code is the expected read error code (used by read_error).
	Code string `yaml:"code,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the feature types directory relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.FeatureTypes != "" && !filepath.IsAbs(scenario.FeatureTypes) && basePath != "" {
		scenario.FeatureTypes = filepath.Join(basePath, scenario.FeatureTypes)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml file of dir in name order, resolving
// feature type directories relative to dir.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenarioWithBasePath(p, dir)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Type == "" {
		return fmt.Errorf("type is required")
	}

	if len(s.Paths) == 0 && s.FeatureTypes == "" {
		return fmt.Errorf("paths or feature_types is required")
	}
	if len(s.Paths) > 0 && s.FeatureTypes != "" {
		return fmt.Errorf("paths and feature_types are mutually exclusive")
	}
	for i, p := range s.Paths {
		if p.Path == "" {
			return fmt.Errorf("paths[%d]: path is required", i)
		}
	}

	if len(s.Schema) == 0 {
		return fmt.Errorf("schema list is required and must be non-empty")
	}
	for i, d := range s.Data {
		if d.Table == "" {
			return fmt.Errorf("data[%d]: table is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertRows:
	case AssertRowOrder:
		if len(a.Rows) == 0 {
			return fmt.Errorf("row_order requires rows")
		}
	case AssertRowCount:
		if a.Container == "" {
			return fmt.Errorf("row_count requires container")
		}
	case AssertRowValues:
		if a.Row == "" {
			return fmt.Errorf("row_values requires row")
		}
	case AssertMeta:
	case AssertReadError:
		if a.Code == "" {
			return fmt.Errorf("read_error requires code")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
