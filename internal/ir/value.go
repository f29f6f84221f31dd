package ir

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the concrete type carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindString
	KindTime
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a sealed interface representing a sort-key value.
// Only Null, Int, String and Time implement it.
type Value interface {
	Kind() Kind
	Any() any
	String() string
	value() // Sealed
}

// Null represents a SQL NULL sort-key value.
type Null struct{}

func (Null) value()         {}
func (Null) Kind() Kind     { return KindNull }
func (Null) Any() any       { return nil }
func (Null) String() string { return "null" }

// Int represents every integral SQL type (smallint, integer, bigint).
type Int int64

func (Int) value()           {}
func (Int) Kind() Kind       { return KindInt }
func (v Int) Any() any       { return int64(v) }
func (v Int) String() string { return strconv.FormatInt(int64(v), 10) }

// String represents character sort keys. Ordering is byte-wise, matching
// COLLATE BINARY in the reference SQLite adapter.
type String string

func (String) value()           {}
func (String) Kind() Kind       { return KindString }
func (v String) Any() any       { return string(v) }
func (v String) String() string { return strconv.Quote(string(v)) }

// Time represents date and timestamp sort keys.
type Time struct {
	T time.Time
}

func (Time) value()           {}
func (Time) Kind() Kind       { return KindTime }
func (v Time) Any() any       { return v.T }
func (v Time) String() string { return v.T.UTC().Format(time.RFC3339Nano) }

// NewTime wraps a time.Time as a Value.
func NewTime(t time.Time) Time {
	return Time{T: t}
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	return v == nil || v.Kind() == KindNull
}

// KindMismatchError reports two non-null values of different kinds compared
// at the same sort-key position.
type KindMismatchError struct {
	Left  Kind
	Right Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("sort key kind mismatch: %s vs %s", e.Left, e.Right)
}

// Compare orders two values. Null (or nil) sorts before every non-null value
// and equals another null. Values of different non-null kinds cannot be
// ordered and return a *KindMismatchError together with the kind order, so
// callers that ignore the error still get a total order.
func Compare(a, b Value) (int, error) {
	aNull, bNull := IsNull(a), IsNull(b)
	switch {
	case aNull && bNull:
		return 0, nil
	case aNull:
		return -1, nil
	case bNull:
		return 1, nil
	}

	if a.Kind() != b.Kind() {
		return cmp.Compare(a.Kind(), b.Kind()), &KindMismatchError{Left: a.Kind(), Right: b.Kind()}
	}

	switch av := a.(type) {
	case Int:
		return cmp.Compare(av, b.(Int)), nil
	case String:
		return strings.Compare(string(av), string(b.(String))), nil
	case Time:
		return av.T.Compare(b.(Time).T), nil
	default:
		return 0, fmt.Errorf("unsupported value type: %T", a)
	}
}

// FromAny converts a scanned column value into a Value.
// Integral types of every width collapse into Int; []byte becomes String.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case string:
		return String(val), nil
	case []byte:
		return String(val), nil
	case time.Time:
		return NewTime(val), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not valid sort keys: %v", val)
	default:
		return nil, fmt.Errorf("unsupported sort key type: %T", v)
	}
}

// MustFromAny is like FromAny but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFromAny(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Values converts a list of plain Go values. Convenient for fixtures.
func Values(vs ...any) ([]Value, error) {
	out := make([]Value, len(vs))
	for i, v := range vs {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("value[%d]: %w", i, err)
		}
		out[i] = val
	}
	return out, nil
}
