package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/query"
	"github.com/roach88/featurestream/internal/reader"
	"github.com/roach88/featurestream/internal/schema"
)

func valueQuery(name string) query.ValueQuery {
	return query.ValueQuery{Container: schema.AttributesContainer{Name: name}}
}

func drain(t *testing.T, c reader.Cursor) ([]reader.Record, error) {
	t.Helper()
	var out []reader.Record
	for rec, err := range c.All() {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func TestMemoryProvider_ServesRecords(t *testing.T) {
	p := NewMemoryProvider().WithRecords("parcels", Rec(1), Rec(2))

	c, err := p.Open(context.Background(), valueQuery("parcels"))
	require.NoError(t, err)

	recs, err := drain(t, c)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []ir.Value{ir.Int(1)}, recs[0].SortKeys)
	assert.Equal(t, []any{1}, recs[0].Values)

	require.NoError(t, c.Close())
	mc := c.(*MemoryCursor)
	assert.Equal(t, 2, mc.Pulled())
	assert.True(t, mc.Closed())
	assert.Equal(t, int64(1), mc.OpenedAt())
	assert.Equal(t, int64(2), mc.ClosedAt())
}

func TestMemoryProvider_MetaCursor(t *testing.T) {
	p := NewMemoryProvider().WithRecords(MetaCursor, MetaRec(int64(1), int64(9), 9, -1))

	c, err := p.Open(context.Background(), query.MetaQuery{})
	require.NoError(t, err)
	recs, err := drain(t, c)
	require.NoError(t, err)
	assert.Equal(t, []reader.Record{{Values: []any{int64(1), int64(9), int64(9), int64(-1)}}}, recs)

	mc, ok := p.Cursor(MetaCursor)
	require.True(t, ok)
	assert.Equal(t, MetaCursor, mc.Name())
}

func TestMemoryProvider_UnknownContainerIsEmpty(t *testing.T) {
	c, err := NewMemoryProvider().Open(context.Background(), valueQuery("nothing"))
	require.NoError(t, err)
	recs, err := drain(t, c)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemoryProvider_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		after     int
		records   []reader.Record
		wantCount int
	}{
		{"before first record", 0, []reader.Record{Rec(1), Rec(2)}, 0},
		{"mid stream", 1, []reader.Record{Rec(1), Rec(2)}, 1},
		{"after last record", 2, []reader.Record{Rec(1), Rec(2)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMemoryProvider().
				WithRecords("parcels", tt.records...).
				WithFailure("parcels", tt.after, boom)
			c, err := p.Open(context.Background(), valueQuery("parcels"))
			require.NoError(t, err)

			recs, err := drain(t, c)
			assert.ErrorIs(t, err, boom)
			assert.Len(t, recs, tt.wantCount)
		})
	}
}

func TestMemoryProvider_OpenError(t *testing.T) {
	boom := errors.New("no such table")
	p := NewMemoryProvider().WithOpenError("parcels", boom)

	_, err := p.Open(context.Background(), valueQuery("parcels"))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, p.Cursors())
	assert.Len(t, p.Queries(), 1)
}

func TestMemoryProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryProvider().Open(ctx, valueQuery("parcels"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryProvider_RejectsFeatureQuery(t *testing.T) {
	_, err := NewMemoryProvider().Open(context.Background(), query.FeatureQuery{})
	assert.Error(t, err)
}

func TestMemoryCursor_ReadAfterClose(t *testing.T) {
	p := NewMemoryProvider().WithRecords("parcels", Rec(1))
	c, err := p.Open(context.Background(), valueQuery("parcels"))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = drain(t, c)
	assert.Error(t, err)
	assert.Equal(t, 2, c.(*MemoryCursor).Closes())
	assert.Equal(t, int64(2), c.(*MemoryCursor).ClosedAt())
}

func TestSequence_Concurrent(t *testing.T) {
	var seq Sequence
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq.Next()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), seq.Current())
}

func TestFixedIDGenerator(t *testing.T) {
	assert.Equal(t, "test-exec", NewFixedIDGenerator("").Generate())
	g := NewFixedIDGenerator("exec-7")
	assert.Equal(t, "exec-7", g.Generate())
	assert.Equal(t, "exec-7", g.Generate())
}
