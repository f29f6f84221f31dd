package reader

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/featurestream/internal/row"
)

// Stream is the ordered row output of one Read. It can be iterated once.
type Stream struct {
	ctx     context.Context
	merged  iter.Seq2[row.Row, error]
	cursors []Cursor
	meta    row.MetaInfo
	log     *slog.Logger

	consumed  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Meta returns the counters of this execution (zero when recovered).
func (s *Stream) Meta() row.MetaInfo {
	return s.meta
}

// All yields the merged rows, the meta row first. Iteration ends at the first
// error. Every cursor is closed when iteration ends for any reason, including
// the consumer breaking out early. A second call yields ErrStreamConsumed.
func (s *Stream) All() iter.Seq2[row.Row, error] {
	return func(yield func(row.Row, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield(row.Row{}, ErrStreamConsumed)
			return
		}
		defer func() {
			if err := s.Close(); err != nil {
				s.log.Warn("closing cursors failed", "error", err)
			}
		}()

		n := 0
		for r, err := range s.merged {
			if err != nil {
				err = classify(err)
				s.log.Error("read failed", "rows", n, "error", err)
				yield(row.Row{}, err)
				return
			}
			if err := s.ctx.Err(); err != nil {
				s.log.Info("read cancelled", "rows", n)
				yield(row.Row{}, err)
				return
			}
			n++
			if !yield(r, nil) {
				s.log.Debug("read stopped by consumer", "rows", n)
				return
			}
		}
		s.log.Info("read finished", "rows", n)
	}
}

// Close closes every value cursor. It is called by All when iteration ends,
// and must be called by consumers that never iterate. Safe to call twice.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.consumed.Store(true)
		var errs []error
		for _, c := range s.cursors {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// classify wraps comparator errors; cursor errors are already ReadErrors.
func classify(err error) error {
	var keyErr *row.KeyTypeError
	if errors.As(err, &keyErr) {
		return &ReadError{Code: ErrCodeKeyType, Err: err}
	}
	return err
}

// Collect drains a stream into a slice.
func Collect(s *Stream) ([]row.Row, error) {
	var out []row.Row
	for r, err := range s.All() {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
