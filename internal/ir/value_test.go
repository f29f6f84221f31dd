package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareSameKind(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"int less", Int(1), Int(2), -1},
		{"int equal", Int(7), Int(7), 0},
		{"int greater", Int(-1), Int(-5), 1},
		{"string less", String("a"), String("b"), -1},
		{"string binary order", String("Z"), String("a"), -1},
		{"time less", NewTime(t0), NewTime(t0.Add(time.Second)), -1},
		{"time equal", NewTime(t0), NewTime(t0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareNullSortsFirst(t *testing.T) {
	got, err := Compare(Null{}, Int(-100))
	require.NoError(t, err)
	assert.Equal(t, -1, got)

	got, err = Compare(String(""), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = Compare(nil, Null{})
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestCompareKindMismatch(t *testing.T) {
	got, err := Compare(Int(1), String("1"))
	require.Error(t, err)

	var mismatch *KindMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, KindInt, mismatch.Left)
	assert.Equal(t, KindString, mismatch.Right)

	// Fallback order stays antisymmetric
	back, _ := Compare(String("1"), Int(1))
	assert.Equal(t, -got, back)
}

func TestFromAny(t *testing.T) {
	t0 := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   any
		want Value
	}{
		{nil, Null{}},
		{int16(3), Int(3)},
		{int32(4), Int(4)},
		{int64(5), Int(5)},
		{7, Int(7)},
		{"x", String("x")},
		{[]byte("raw"), String("raw")},
		{t0, NewTime(t0)},
		{Int(9), Int(9)},
	}

	for _, tt := range tests {
		got, err := FromAny(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestFromAnyRejectsFloats(t *testing.T) {
	_, err := FromAny(1.5)
	assert.Error(t, err)

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestValueStrings(t *testing.T) {
	assert.Equal(t, "null", Null{}.String())
	assert.Equal(t, "42", Int(42).String())
	assert.Equal(t, `"a b"`, String("a b").String())
	assert.Equal(t, "2020-05-01T12:00:00Z", NewTime(time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)).String())
	assert.Equal(t, "string", KindString.String())
}
