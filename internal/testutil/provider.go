// Package testutil provides in-memory collaborators for reader tests.
package testutil

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/query"
	"github.com/roach88/featurestream/internal/reader"
)

// MetaCursor is the name under which the meta cursor is recorded.
const MetaCursor = "meta"

// Rec builds a record whose sort keys and values are both keys.
// Panics on values ir.FromAny rejects.
func Rec(keys ...any) reader.Record {
	vals, err := ir.Values(keys...)
	if err != nil {
		panic(err)
	}
	return reader.Record{SortKeys: vals, Values: keys}
}

// MetaRec builds a meta record.
func MetaRec(minKey, maxKey any, returned, matched int64) reader.Record {
	return reader.Record{Values: []any{minKey, maxKey, returned, matched}}
}

type failure struct {
	after int
	err   error
}

// MemoryProvider serves pre-sorted records per container name and records
// every cursor it opens. It does not evaluate bounds, ids or filters.
type MemoryProvider struct {
	mu       sync.Mutex
	seq      Sequence
	records  map[string][]reader.Record
	openErrs map[string]error
	failures map[string]failure
	cursors  []*MemoryCursor
	queries  []query.Query
}

// NewMemoryProvider creates an empty provider. Containers without records
// yield empty cursors; without a meta record the meta cursor is empty.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		records:  make(map[string][]reader.Record),
		openErrs: make(map[string]error),
		failures: make(map[string]failure),
	}
}

// WithRecords sets the records of a container (or MetaCursor).
func (p *MemoryProvider) WithRecords(container string, recs ...reader.Record) *MemoryProvider {
	p.records[container] = recs
	return p
}

// WithOpenError makes opening the named cursor fail.
func (p *MemoryProvider) WithOpenError(container string, err error) *MemoryProvider {
	p.openErrs[container] = err
	return p
}

// WithFailure makes the named cursor fail with err after yielding `after`
// records.
func (p *MemoryProvider) WithFailure(container string, after int, err error) *MemoryProvider {
	p.failures[container] = failure{after: after, err: err}
	return p
}

// Open implements reader.Provider.
func (p *MemoryProvider) Open(ctx context.Context, q query.Query) (reader.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var name string
	switch q := q.(type) {
	case query.MetaQuery:
		name = MetaCursor
	case query.ValueQuery:
		name = q.Container.Name
	default:
		return nil, fmt.Errorf("unsupported query %T", q)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.queries = append(p.queries, q)
	if err := p.openErrs[name]; err != nil {
		return nil, err
	}

	c := &MemoryCursor{
		name:     name,
		records:  p.records[name],
		seq:      &p.seq,
		openedAt: p.seq.Next(),
	}
	if f, ok := p.failures[name]; ok {
		c.fail = &f
	}
	p.cursors = append(p.cursors, c)
	return c, nil
}

// Cursors returns every opened cursor in open order.
func (p *MemoryProvider) Cursors() []*MemoryCursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*MemoryCursor, len(p.cursors))
	copy(out, p.cursors)
	return out
}

// Cursor returns the opened cursor with the given name.
func (p *MemoryProvider) Cursor(name string) (*MemoryCursor, bool) {
	for _, c := range p.Cursors() {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Queries returns every query passed to Open, including failed opens.
func (p *MemoryProvider) Queries() []query.Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]query.Query, len(p.queries))
	copy(out, p.queries)
	return out
}

// MemoryCursor is a cursor over in-memory records.
type MemoryCursor struct {
	name    string
	records []reader.Record
	fail    *failure
	seq     *Sequence

	mu       sync.Mutex
	openedAt int64
	closedAt int64
	pulled   int
	closes   int
}

// Name returns the container name, or MetaCursor.
func (c *MemoryCursor) Name() string { return c.name }

// All implements reader.Cursor.
func (c *MemoryCursor) All() iter.Seq2[reader.Record, error] {
	return func(yield func(reader.Record, error) bool) {
		for i, rec := range c.records {
			if c.fail != nil && i == c.fail.after {
				yield(reader.Record{}, c.fail.err)
				return
			}
			if c.Closed() {
				yield(reader.Record{}, fmt.Errorf("cursor %s read after close", c.name))
				return
			}
			c.mu.Lock()
			c.pulled++
			c.mu.Unlock()
			if !yield(rec, nil) {
				return
			}
		}
		if c.fail != nil && c.fail.after >= len(c.records) {
			yield(reader.Record{}, c.fail.err)
		}
	}
}

// Close implements reader.Cursor.
func (c *MemoryCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.closedAt == 0 {
		c.closedAt = c.seq.Next()
	}
	return nil
}

// Closed reports whether Close was called.
func (c *MemoryCursor) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes > 0
}

// Closes returns how often Close was called.
func (c *MemoryCursor) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Pulled returns how many records were yielded.
func (c *MemoryCursor) Pulled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulled
}

// OpenedAt and ClosedAt return the provider-wide event numbers of the open
// and first close; ClosedAt is 0 while open.
func (c *MemoryCursor) OpenedAt() int64 { return c.openedAt }

func (c *MemoryCursor) ClosedAt() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedAt
}
