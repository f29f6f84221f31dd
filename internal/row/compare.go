package row

import (
	"cmp"
	"fmt"

	"github.com/roach88/featurestream/internal/ir"
)

// KeyTypeError reports two rows holding values of different kinds under the
// same sort-key name. It is a configuration error: the containers disagree
// about the type of a shared key column.
type KeyTypeError struct {
	Name     string
	Position int
	Left     string
	Right    string
	Err      error
}

func (e *KeyTypeError) Error() string {
	return fmt.Sprintf("sort key %s at position %d: %s vs %s: %v", e.Name, e.Position, e.Left, e.Right, e.Err)
}

func (e *KeyTypeError) Unwrap() error {
	return e.Err
}

// Compare orders two rows:
//
//  1. the meta row sorts first;
//  2. values are compared over the common leading run of equal key names,
//     null before non-null regardless of direction, descending keys flipped;
//  3. ties fall back to container priority.
//
// Compare is a strict weak order for rows of one compiled container tree. A
// kind mismatch at a compared position falls back to kind order; use
// CompareChecked to surface it.
func Compare(a, b Row) int {
	c, _ := compare(a, b)
	return c
}

// CompareChecked is Compare, but returns a *KeyTypeError when two values of
// different kinds are compared.
func CompareChecked(a, b Row) (int, error) {
	return compare(a, b)
}

func compare(a, b Row) (int, error) {
	switch {
	case a.IsMeta && b.IsMeta:
		return 0, nil
	case a.IsMeta:
		return -1, nil
	case b.IsMeta:
		return 1, nil
	}

	n := CommonPrefix(a.SortKeyNames, b.SortKeyNames)
	for i := range n {
		c, err := compareKey(a.key(i), b.key(i), a.direction(i))
		if err != nil {
			return c, &KeyTypeError{
				Name:     a.SortKeyNames[i],
				Position: i,
				Left:     a.Name,
				Right:    b.Name,
				Err:      err,
			}
		}
		if c != 0 {
			return c, nil
		}
	}

	return cmp.Compare(a.Priority, b.Priority), nil
}

func compareKey(a, b ir.Value, dir Direction) (int, error) {
	aNull, bNull := ir.IsNull(a), ir.IsNull(b)
	switch {
	case aNull && bNull:
		return 0, nil
	case aNull:
		return -1, nil
	case bNull:
		return 1, nil
	}

	c, err := ir.Compare(a, b)
	if dir == Descending {
		c = -c
	}
	return c, err
}

// CommonPrefix returns the length of the longest common leading run of equal
// names.
func CommonPrefix(a, b []string) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
