// Package merge combines individually sorted lazy sequences into one sorted
// sequence without materializing them.
//
// Sources are pulled on demand: a merge step reads from whichever input it
// needs to produce the next element and nothing more. When the consumer stops
// early, every source that was started is stopped, which runs its cleanup.
package merge

import (
	"iter"
)

// CompareFunc orders two elements and may reject the comparison.
type CompareFunc[T any] func(a, b T) (int, error)

// Sorted merges two sequences that are each sorted by cmp. Ties take the
// element of a first.
func Sorted[T any](a, b iter.Seq2[T, error], cmp func(a, b T) int) iter.Seq2[T, error] {
	return SortedChecked(a, b, unchecked(cmp))
}

// All folds seqs into one sorted sequence by repeated pairwise merging.
func All[T any](cmp func(a, b T) int, seqs ...iter.Seq2[T, error]) iter.Seq2[T, error] {
	return AllChecked(unchecked(cmp), seqs...)
}

// AllChecked is All with a comparator that can fail. A comparator error is
// yielded as the final element of the merged sequence.
func AllChecked[T any](cmp CompareFunc[T], seqs ...iter.Seq2[T, error]) iter.Seq2[T, error] {
	if len(seqs) == 0 {
		return func(func(T, error) bool) {}
	}
	merged := seqs[0]
	for _, s := range seqs[1:] {
		merged = SortedChecked(merged, s, cmp)
	}
	return merged
}

// SortedChecked is Sorted with a comparator that can fail. Source errors and
// comparator errors are yielded once, after which the sequence ends.
func SortedChecked[T any](a, b iter.Seq2[T, error], cmp CompareFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		nextA, stopA := iter.Pull2(a)
		defer stopA()
		nextB, stopB := iter.Pull2(b)
		defer stopB()

		av, aErr, aOK := nextA()
		if aOK && aErr != nil {
			yield(zero, aErr)
			return
		}
		bv, bErr, bOK := nextB()
		if bOK && bErr != nil {
			yield(zero, bErr)
			return
		}

		for aOK || bOK {
			takeA := aOK
			if aOK && bOK {
				c, err := cmp(av, bv)
				if err != nil {
					yield(zero, err)
					return
				}
				takeA = c <= 0
			}

			if takeA {
				if !yield(av, nil) {
					return
				}
				av, aErr, aOK = nextA()
				if aOK && aErr != nil {
					yield(zero, aErr)
					return
				}
				continue
			}

			if !yield(bv, nil) {
				return
			}
			bv, bErr, bOK = nextB()
			if bOK && bErr != nil {
				yield(zero, bErr)
				return
			}
		}
	}
}

// FromSlice adapts a slice into an error-free sequence.
func FromSlice[T any](items []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

func unchecked[T any](cmp func(a, b T) int) CompareFunc[T] {
	return func(a, b T) (int, error) {
		return cmp(a, b), nil
	}
}
