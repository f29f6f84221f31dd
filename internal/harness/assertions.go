package harness

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/featurestream/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		if event.Code != "" {
			fmt.Fprintf(&buf, "  [%d] error %s\n", event.Seq, event.Code)
			continue
		}
		fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event.Label)
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. A read error fails the result unless a read_error assertion
// expects it.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	expectsError := false
	for _, a := range assertions {
		if a.Type == AssertReadError {
			expectsError = true
		}
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if result.ReadError != "" && !expectsError {
		errs = append(errs, (&AssertionError{
			Type:     "read",
			Expected: "read succeeds",
			Actual:   "read failed with " + result.ReadError,
			Trace:    result.Trace,
		}).Error())
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertRows:
		return assertRows(result, a)
	case AssertRowOrder:
		return assertRowOrder(result, a)
	case AssertRowCount:
		return assertRowCount(result, a)
	case AssertRowValues:
		return assertRowValues(result, a)
	case AssertMeta:
		return assertMeta(result, a)
	case AssertReadError:
		return assertReadError(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertRows checks the complete label sequence.
func assertRows(result *Result, a Assertion) error {
	want := a.Rows
	if want == nil {
		want = []string{}
	}
	if diff := cmp.Diff(want, result.Labels()); diff != "" {
		return &AssertionError{
			Type:     AssertRows,
			Expected: fmt.Sprintf("rows %v", want),
			Actual:   "rows differ (-want +got):\n" + diff,
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertRowOrder checks that the labels appear in order. Other rows may
// appear in between.
func assertRowOrder(result *Result, a Assertion) error {
	labels := result.Labels()
	next := 0
	for _, want := range a.Rows {
		found := false
		for next < len(labels) {
			got := labels[next]
			next++
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertRowOrder,
				Expected: fmt.Sprintf("rows in order: %v", a.Rows),
				Actual:   fmt.Sprintf("%s missing or out of order", want),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertRowCount checks the number of rows of one container.
func assertRowCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Trace {
		if ev.Code == "" && ev.Container == a.Container {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%s appears %d times", a.Container, a.Count),
			Actual:   fmt.Sprintf("%s appears %d times", a.Container, count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertRowValues checks the attribute values of the first row with the
// given label.
func assertRowValues(result *Result, a Assertion) error {
	for _, ev := range result.Trace {
		if ev.Code != "" || ev.Label != a.Row {
			continue
		}
		want, got := render(a.Values), render(ev.Values)
		if diff := cmp.Diff(want, got); diff != "" {
			return &AssertionError{
				Type:     AssertRowValues,
				Expected: fmt.Sprintf("%s values %v", a.Row, want),
				Actual:   "values differ (-want +got):\n" + diff,
				Trace:    result.Trace,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertRowValues,
		Expected: fmt.Sprintf("row %s", a.Row),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// assertMeta checks the counters set on the assertion.
func assertMeta(result *Result, a Assertion) error {
	for _, ev := range result.Trace {
		if ev.Meta == nil {
			continue
		}
		var mismatches []string
		if a.Returned != nil && *a.Returned != ev.Meta.NumberReturned {
			mismatches = append(mismatches, fmt.Sprintf("returned %d, want %d", ev.Meta.NumberReturned, *a.Returned))
		}
		if a.Matched != nil && *a.Matched != ev.Meta.NumberMatched {
			mismatches = append(mismatches, fmt.Sprintf("matched %d, want %d", ev.Meta.NumberMatched, *a.Matched))
		}
		if a.MinKey != nil && renderValue(a.MinKey) != ev.Meta.MinKey.String() {
			mismatches = append(mismatches, fmt.Sprintf("min_key %s, want %s", ev.Meta.MinKey, renderValue(a.MinKey)))
		}
		if a.MaxKey != nil && renderValue(a.MaxKey) != ev.Meta.MaxKey.String() {
			mismatches = append(mismatches, fmt.Sprintf("max_key %s, want %s", ev.Meta.MaxKey, renderValue(a.MaxKey)))
		}
		if len(mismatches) > 0 {
			return &AssertionError{
				Type:     AssertMeta,
				Expected: "meta counters as declared",
				Actual:   strings.Join(mismatches, "; "),
				Trace:    result.Trace,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertMeta,
		Expected: "a meta row",
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// assertReadError checks the error code that ended the read.
func assertReadError(result *Result, a Assertion) error {
	if result.ReadError != a.Code {
		actual := "read succeeded"
		if result.ReadError != "" {
			actual = "read failed with " + result.ReadError
		}
		return &AssertionError{
			Type:     AssertReadError,
			Expected: "read fails with " + a.Code,
			Actual:   actual,
			Trace:    result.Trace,
		}
	}
	return nil
}

// render formats values the way sort keys print, so YAML and SQLite values
// of the same kind compare equal.
func render(vs []any) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = renderValue(v)
	}
	return out
}

func renderValue(v any) string {
	if val, err := ir.FromAny(v); err == nil {
		return val.String()
	}
	return fmt.Sprint(v)
}
