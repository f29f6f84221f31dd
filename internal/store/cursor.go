package store

import (
	"database/sql"
	"fmt"
	"iter"

	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/reader"
)

// cursor streams the rows of one statement. The first keys columns are sort
// keys; a meta cursor has none and yields its four counters as values.
type cursor struct {
	rows *sql.Rows
	keys int
}

func (c *cursor) All() iter.Seq2[reader.Record, error] {
	return func(yield func(reader.Record, error) bool) {
		cols, err := c.rows.Columns()
		if err != nil {
			yield(reader.Record{}, fmt.Errorf("columns: %w", err))
			return
		}
		if len(cols) < c.keys {
			yield(reader.Record{}, fmt.Errorf("statement returns %d columns, want at least %d", len(cols), c.keys))
			return
		}

		for c.rows.Next() {
			raw := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range raw {
				ptrs[i] = &raw[i]
			}
			if err := c.rows.Scan(ptrs...); err != nil {
				yield(reader.Record{}, fmt.Errorf("scan: %w", err))
				return
			}
			for i, v := range raw {
				if b, ok := v.([]byte); ok {
					raw[i] = string(b)
				}
			}

			keys, err := ir.Values(raw[:c.keys]...)
			if err != nil {
				yield(reader.Record{}, fmt.Errorf("sort keys: %w", err))
				return
			}
			if !yield(reader.Record{SortKeys: keys, Values: raw[c.keys:]}, nil) {
				return
			}
		}
		if err := c.rows.Err(); err != nil {
			yield(reader.Record{}, fmt.Errorf("iterate rows: %w", err))
		}
	}
}

// Close releases the rows and their connection. Safe to call twice.
func (c *cursor) Close() error {
	return c.rows.Close()
}
