package harness

import (
	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/row"
)

// TraceEvent is one row of the merged stream, or the error ending it.
type TraceEvent struct {
	Seq int64

	// Label is the row's trace label, e.g. "addresses[1 10]".
	Label     string
	Container string
	Keys      []ir.Value
	Values    []any

	// Meta is set for the meta row.
	Meta *row.MetaInfo

	// Code is set when the stream failed at this point.
	Code string
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool

	// Trace contains every row in stream order.
	Trace []TraceEvent

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string

	// ReadError is the error code of a failed read or stream, empty on
	// success.
	ReadError string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddRowTrace adds a merged row to the trace.
func (r *Result) AddRowTrace(rw row.Row, seq int64) {
	ev := TraceEvent{
		Seq:       seq,
		Label:     rw.String(),
		Container: rw.Name,
		Keys:      rw.SortKeyValues,
		Values:    rw.Values,
	}
	if info, ok := rw.Meta(); ok {
		ev.Meta = &info
	}
	r.Trace = append(r.Trace, ev)
}

// AddErrorTrace records the error that ended the stream.
func (r *Result) AddErrorTrace(code string, seq int64) {
	r.ReadError = code
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Code: code})
}

// Labels returns the labels of every row in the trace.
func (r *Result) Labels() []string {
	labels := make([]string, 0, len(r.Trace))
	for _, ev := range r.Trace {
		if ev.Code == "" {
			labels = append(labels, ev.Label)
		}
	}
	return labels
}
