package merge

import (
	"cmp"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// source records how far it was pulled and whether its cleanup ran.
type source struct {
	items  []int
	err    error
	pulled int
	closed bool
}

func (s *source) seq() iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		defer func() { s.closed = true }()
		for _, item := range s.items {
			s.pulled++
			if !yield(item, nil) {
				return
			}
		}
		if s.err != nil {
			yield(0, s.err)
		}
	}
}

func collect(t *testing.T, seq iter.Seq2[int, error]) ([]int, error) {
	t.Helper()
	var out []int
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func TestSorted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	got, err := collect(t, Sorted(FromSlice([]int{1, 4, 5, 9}), FromSlice([]int{2, 3, 5, 10, 11}), cmp.Compare[int]))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 5, 9, 10, 11}, got)
}

func TestSortedTiesTakeLeftFirst(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	type item struct {
		key int
		src string
	}
	byKey := func(a, b item) int { return cmp.Compare(a.key, b.key) }

	got, err := func() ([]item, error) {
		var out []item
		left := FromSlice([]item{{1, "a"}, {2, "a"}})
		right := FromSlice([]item{{1, "b"}, {2, "b"}})
		for v, err := range Sorted(left, right, byKey) {
			if err != nil {
				return out, err
			}
			out = append(out, v)
		}
		return out, nil
	}()
	require.NoError(t, err)
	assert.Equal(t, []item{{1, "a"}, {1, "b"}, {2, "a"}, {2, "b"}}, got)
}

func TestAll(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tests := []struct {
		name string
		seqs [][]int
		want []int
	}{
		{"no sources", nil, nil},
		{"single source", [][]int{{1, 2}}, []int{1, 2}},
		{"empty sources", [][]int{{}, {}, {}}, nil},
		{"three sources", [][]int{{1, 7}, {}, {0, 3, 8}, {2}}, []int{0, 1, 2, 3, 7, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seqs := make([]iter.Seq2[int, error], len(tt.seqs))
			for i, s := range tt.seqs {
				seqs[i] = FromSlice(s)
			}
			got, err := collect(t, All(cmp.Compare[int], seqs...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortedIsDemandDriven(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a := &source{items: []int{1, 2, 3, 4}}
	b := &source{items: []int{10, 20}}

	next, stop := iter.Pull2(Sorted(a.seq(), b.seq(), cmp.Compare[int]))
	defer stop()

	v, err, ok := next()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	// Only the two heads were needed for the first element.
	assert.Equal(t, 1, a.pulled)
	assert.Equal(t, 1, b.pulled)

	v, _, _ = next()
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, a.pulled)
	assert.Equal(t, 1, b.pulled)
}

func TestEarlyStopClosesSources(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sources := []*source{
		{items: []int{1, 5}},
		{items: []int{2, 6}},
		{items: []int{3, 7}},
	}
	seqs := make([]iter.Seq2[int, error], len(sources))
	for i, s := range sources {
		seqs[i] = s.seq()
	}

	for v, err := range All(cmp.Compare[int], seqs...) {
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		break
	}

	for i, s := range sources {
		assert.True(t, s.closed, "source %d not closed", i)
	}
}

func TestSourceErrorEndsMerge(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("cursor failed")
	failing := &source{items: []int{2}, err: boom}
	healthy := &source{items: []int{1, 3, 4}}

	got, err := collect(t, Sorted(healthy.seq(), failing.seq(), cmp.Compare[int]))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, got)
	assert.True(t, healthy.closed)
	assert.True(t, failing.closed)
}

func TestSourceErrorOnHead(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("open failed")
	failing := &source{err: boom}

	got, err := collect(t, Sorted(failing.seq(), FromSlice([]int{1}), cmp.Compare[int]))
	require.ErrorIs(t, err, boom)
	assert.Empty(t, got)
}

func TestAllCheckedComparatorError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bad := errors.New("incomparable")
	cmpFn := func(a, b int) (int, error) {
		if a == 4 || b == 4 {
			return 0, bad
		}
		return cmp.Compare(a, b), nil
	}

	got, err := collect(t, AllChecked(cmpFn, FromSlice([]int{1, 3}), FromSlice([]int{2, 4})))
	require.ErrorIs(t, err, bad)
	assert.Equal(t, []int{1, 2}, got)
}
