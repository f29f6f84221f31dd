package harness

import (
	"bytes"
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/featurestream/internal/ir"
)

// Snapshot renders a trace as canonical JSON, one object per line: a header
// naming the scenario, then one line per trace event.
//
// Values that canonical JSON cannot carry, such as floats, are rendered as
// strings.
func Snapshot(scenarioName, executionID string, result *Result) ([]byte, error) {
	var buf bytes.Buffer

	header, err := ir.MarshalCanonical(map[string]any{
		"execution_id": executionID,
		"scenario":     scenarioName,
	})
	if err != nil {
		return nil, err
	}
	buf.Write(header)
	buf.WriteByte('\n')

	for _, ev := range result.Trace {
		line, err := ir.MarshalCanonical(eventMap(ev))
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func eventMap(ev TraceEvent) map[string]any {
	m := map[string]any{"seq": ev.Seq}
	switch {
	case ev.Code != "":
		m["error"] = ev.Code
	case ev.Meta != nil:
		m["container"] = "meta"
		m["min_key"] = ev.Meta.MinKey
		m["max_key"] = ev.Meta.MaxKey
		m["returned"] = ev.Meta.NumberReturned
		m["matched"] = ev.Meta.NumberMatched
	default:
		m["container"] = ev.Container
		keys := make([]any, len(ev.Keys))
		for i, k := range ev.Keys {
			keys[i] = k
		}
		m["keys"] = keys
		m["values"] = canonicalValues(ev.Values)
	}
	return m
}

func canonicalValues(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		if val, err := ir.FromAny(v); err == nil {
			out[i] = val
			continue
		}
		out[i] = renderValue(v)
	}
	return out
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, WithDir(t.TempDir()))
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, executionID(scenario), result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName, executionID string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, executionID, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
