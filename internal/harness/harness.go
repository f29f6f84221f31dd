package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/featurestream/internal/config"
	"github.com/roach88/featurestream/internal/reader"
	"github.com/roach88/featurestream/internal/schema"
	"github.com/roach88/featurestream/internal/store"
	"github.com/roach88/featurestream/internal/testutil"
)

// DefaultExecutionID is used when a scenario does not fix one.
const DefaultExecutionID = "scenario-exec"

// Option configures Run.
type Option func(*options)

type options struct {
	dir    string
	logger *slog.Logger
}

// WithDir places the scenario database in dir instead of a fresh temporary
// directory.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithLogger sets the logger used by the store and reader. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Harness holds the state of one scenario execution.
type Harness struct {
	store  *store.Store
	seq    *testutil.Sequence
	ids    *testutil.FixedIDGenerator
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh SQLite file for isolation:
// 1. Create the fixture tables and insert the fixture rows
// 2. Compile the feature type
// 3. Read the query and trace every merged row
// 4. Evaluate assertions against the trace
//
// A failing read is not an error of Run; it is recorded in the result and
// checked by read_error assertions.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	dir := o.dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "featurestream-scenario-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create scenario directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	st, err := store.Open(filepath.Join(dir, scenario.Name+".db"), store.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		seq:    &testutil.Sequence{},
		ids:    testutil.NewFixedIDGenerator(executionID(scenario)),
		logger: o.logger,
	}

	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	ic, err := compile(scenario, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to compile feature type: %w", err)
	}

	result := NewResult()
	if err := h.read(ctx, scenario, ic, result); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func executionID(s *Scenario) string {
	if s.ExecutionID != "" {
		return s.ExecutionID
	}
	return DefaultExecutionID
}

// setup creates the fixture tables and rows.
func (h *Harness) setup(ctx context.Context, s *Scenario) error {
	if err := h.store.Exec(ctx, s.Schema...); err != nil {
		return err
	}
	for i, d := range s.Data {
		for j, r := range d.Rows {
			if err := h.store.Insert(ctx, d.Table, r); err != nil {
				return fmt.Errorf("data[%d].rows[%d]: %w", i, j, err)
			}
		}
		h.logger.Debug("fixture rows inserted", "table", d.Table, "rows", len(d.Rows))
	}
	return nil
}

// compile builds the feature type from inline paths or a CUE directory.
func compile(s *Scenario, logger *slog.Logger) (*schema.InstanceContainer, error) {
	if len(s.Paths) > 0 {
		entries := make([]schema.Entry, len(s.Paths))
		for i, p := range s.Paths {
			entries[i] = p.Entry()
		}
		return schema.Compile(entries, schema.WithLogger(logger))
	}

	types, err := config.LoadFeatureTypes(s.FeatureTypes)
	if err != nil {
		return nil, err
	}
	for _, ft := range types {
		if ft.Name != s.Type {
			continue
		}
		settings := config.SyntaxSettings{JunctionPattern: ".+_2_.+", DefaultPrimaryKey: "id"}
		syntax, err := settings.Config()
		if err != nil {
			return nil, err
		}
		return ft.Compile(syntax, logger)
	}
	return nil, fmt.Errorf("feature type %s not found in %s", s.Type, s.FeatureTypes)
}

// read runs the scenario query and traces the stream.
func (h *Harness) read(ctx context.Context, s *Scenario, ic *schema.InstanceContainer, result *Result) error {
	fq, err := s.Query.FeatureQuery(s.Type)
	if err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}

	r := reader.NewReader(h.store, ic, reader.WithLogger(h.logger), reader.WithIDGenerator(h.ids))
	stream, err := r.Read(ctx, fq)
	if err != nil {
		return record(err, h.seq.Next(), result)
	}

	for rw, err := range stream.All() {
		if err != nil {
			return record(err, h.seq.Next(), result)
		}
		result.AddRowTrace(rw, h.seq.Next())
	}
	return nil
}

// record traces a read error. Errors without a read error code, such as
// cancellation, abort the scenario.
func record(err error, seq int64, result *Result) error {
	var readErr *reader.ReadError
	if !errors.As(err, &readErr) {
		return fmt.Errorf("read failed: %w", err)
	}
	result.AddErrorTrace(string(readErr.Code), seq)
	return nil
}
