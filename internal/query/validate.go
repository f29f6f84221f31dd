package query

import (
	"fmt"

	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/schema"
)

// ValidationError reports an invalid query.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid query: %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the structure of a query. It does not look at any schema;
// use Resolve for that.
func Validate(q Query) error {
	switch q := q.(type) {
	case FeatureQuery:
		return validatePage(q.Limit, q.Offset, q.SortBy, q.Filter)
	case *FeatureQuery:
		return Validate(*q)
	case MetaQuery:
		if q.Main.Name == "" {
			return invalid("main", "main container is required")
		}
		return validatePage(q.Limit, q.Offset, q.SortBy, q.Filter)
	case ValueQuery:
		return validateValue(q)
	case nil:
		return invalid("query", "nil query")
	default:
		return invalid("query", "unknown query type %T", q)
	}
}

func validatePage(limit, offset int, sortBy []SortBy, filter Predicate) error {
	if limit < 0 {
		return invalid("limit", "must not be negative, got %d", limit)
	}
	if offset < 0 {
		return invalid("offset", "must not be negative, got %d", offset)
	}
	for i, s := range sortBy {
		if s.Column == "" {
			return invalid(fmt.Sprintf("sort_by[%d]", i), "column is required")
		}
	}
	if filter != nil {
		return validatePredicate("filter", filter)
	}
	return nil
}

func validateValue(q ValueQuery) error {
	if q.Container.Name == "" {
		return invalid("container", "container is required")
	}
	if len(q.SortKeys) == 0 {
		return invalid("sort_keys", "at least one sort key is required")
	}
	if ir.IsNull(q.MinKey) != ir.IsNull(q.MaxKey) {
		return invalid("bounds", "min and max key must be set together")
	}
	if q.Bounded() && len(q.IDs) > 0 {
		return invalid("bounds", "key bounds and ids are mutually exclusive")
	}
	return validatePage(q.Limit, q.Offset, q.SortBy, q.Filter)
}

func validatePredicate(field string, p Predicate) error {
	switch p := p.(type) {
	case Equals:
		if p.Field == "" {
			return invalid(field, "equals requires a field")
		}
		if p.Value == nil {
			return invalid(field, "equals %s requires a value", p.Field)
		}
	case And:
		for i, child := range p.Predicates {
			if err := validatePredicate(fmt.Sprintf("%s.and[%d]", field, i), child); err != nil {
				return err
			}
		}
	default:
		return invalid(field, "unknown predicate type %T", p)
	}
	return nil
}

// Resolve checks a feature query against a compiled feature type and returns
// a copy whose filter fields name main table columns instead of queryables.
// Sort columns must be attributes of the main container; filters may only
// use queryables of the main container.
func Resolve(q FeatureQuery, ic *schema.InstanceContainer) (FeatureQuery, error) {
	if err := Validate(q); err != nil {
		return FeatureQuery{}, err
	}

	main := ic.Main()
	for i, s := range q.SortBy {
		if _, ok := main.Attribute(s.Column); !ok {
			return FeatureQuery{}, invalid(fmt.Sprintf("sort_by[%d]", i), "%s is not an attribute of %s", s.Column, main.Name)
		}
	}

	columns := make(map[string]string)
	for _, a := range main.Attributes {
		if a.Queryable != "" {
			columns[a.Queryable] = a.Name
		}
	}

	if q.Filter != nil {
		filter, err := resolvePredicate(q.Filter, columns)
		if err != nil {
			return FeatureQuery{}, err
		}
		q.Filter = filter
	}
	return q, nil
}

func resolvePredicate(p Predicate, columns map[string]string) (Predicate, error) {
	switch p := p.(type) {
	case Equals:
		col, ok := columns[p.Field]
		if !ok {
			return nil, invalid("filter", "%s is not a queryable of the main table", p.Field)
		}
		return Equals{Field: col, Value: p.Value}, nil
	case And:
		out := And{Predicates: make([]Predicate, len(p.Predicates))}
		for i, child := range p.Predicates {
			resolved, err := resolvePredicate(child, columns)
			if err != nil {
				return nil, err
			}
			out.Predicates[i] = resolved
		}
		return out, nil
	default:
		return nil, invalid("filter", "unknown predicate type %T", p)
	}
}
