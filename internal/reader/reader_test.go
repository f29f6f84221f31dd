package reader_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/query"
	"github.com/roach88/featurestream/internal/reader"
	"github.com/roach88/featurestream/internal/row"
	"github.com/roach88/featurestream/internal/schema"
	"github.com/roach88/featurestream/internal/testutil"
)

func parcelsSchema(t *testing.T) *schema.InstanceContainer {
	t.Helper()
	ic, err := schema.Compile([]schema.Entry{
		{Path: "/parcels/id{oid}"},
		{Path: "/parcels/name{queryable=title}"},
		{Path: "/parcels/[id=parcel_id]addresses/id"},
		{Path: "/parcels/[id=parcel_id]addresses/street"},
	}, schema.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	return ic
}

// parcelsProvider serves two parcels with three addresses.
func parcelsProvider() *testutil.MemoryProvider {
	return testutil.NewMemoryProvider().
		WithRecords(testutil.MetaCursor, testutil.MetaRec(int64(1), int64(2), 2, 2)).
		WithRecords("parcels", testutil.Rec(1), testutil.Rec(2)).
		WithRecords("addresses", testutil.Rec(1, 10), testutil.Rec(1, 11), testutil.Rec(2, 20))
}

func newReader(t *testing.T, p reader.Provider) *reader.Reader {
	t.Helper()
	return reader.NewReader(p, parcelsSchema(t),
		reader.WithLogger(slog.New(slog.DiscardHandler)),
		reader.WithIDGenerator(testutil.NewFixedIDGenerator("")),
	)
}

func labels(rows []row.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.String()
	}
	return out
}

func valueQuery(t *testing.T, p *testutil.MemoryProvider, container string) query.ValueQuery {
	t.Helper()
	for _, q := range p.Queries() {
		if vq, ok := q.(query.ValueQuery); ok && vq.Container.Name == container {
			return vq
		}
	}
	t.Fatalf("no value query for %s", container)
	return query.ValueQuery{}
}

func metaQueries(p *testutil.MemoryProvider) int {
	n := 0
	for _, q := range p.Queries() {
		if _, ok := q.(query.MetaQuery); ok {
			n++
		}
	}
	return n
}

func assertAllClosed(t *testing.T, p *testutil.MemoryProvider) {
	t.Helper()
	for _, c := range p.Cursors() {
		assert.True(t, c.Closed(), "cursor %s not closed", c.Name())
		assert.Equal(t, 1, c.Closes(), "cursor %s closed more than once", c.Name())
	}
}

func TestRead_MergedOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := parcelsProvider()
	s, err := newReader(t, p).Read(context.Background(), query.FeatureQuery{Type: "parcels", Limit: 2, ComputeNumberMatched: true})
	require.NoError(t, err)

	rows, err := reader.Collect(s)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"meta",
		"parcels[1]",
		"addresses[1 10]",
		"addresses[1 11]",
		"parcels[2]",
		"addresses[2 20]",
	}, labels(rows))

	info, ok := rows[0].Meta()
	require.True(t, ok)
	assert.Equal(t, row.MetaInfo{MinKey: ir.Int(1), MaxKey: ir.Int(2), NumberReturned: 2, NumberMatched: 2}, info)
	assert.Equal(t, info, s.Meta())

	assert.Equal(t, "/parcels/[id=parcel_id]addresses", rows[2].Path)
	assert.Equal(t, []string{"parcels.id", "addresses.id"}, rows[2].SortKeyNames)
	assert.Equal(t, 1, rows[2].Priority)

	require.Len(t, p.Cursors(), 3)
	assertAllClosed(t, p)
}

func TestRead_EarlyStopClosesAllCursors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := parcelsProvider()
	s, err := newReader(t, p).Read(context.Background(), query.FeatureQuery{Type: "parcels"})
	require.NoError(t, err)

	for r, err := range s.All() {
		require.NoError(t, err)
		assert.True(t, r.IsMeta)
		break
	}

	names := map[string]bool{}
	for _, c := range p.Cursors() {
		names[c.Name()] = true
	}
	assert.Equal(t, map[string]bool{testutil.MetaCursor: true, "parcels": true, "addresses": true}, names)
	assertAllClosed(t, p)

	addresses, ok := p.Cursor("addresses")
	require.True(t, ok)
	assert.LessOrEqual(t, addresses.Pulled(), 1)
}

func TestRead_Cancellation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := parcelsProvider()
	s, err := newReader(t, p).Read(ctx, query.FeatureQuery{Type: "parcels"})
	require.NoError(t, err)

	var got []row.Row
	var gotErr error
	for r, err := range s.All() {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, r)
		cancel()
	}

	require.ErrorIs(t, gotErr, context.Canceled)
	assert.Equal(t, []string{"meta"}, labels(got))
	assertAllClosed(t, p)
}

func TestRead_MetaCursorClosedBeforeValueCursorsOpen(t *testing.T) {
	p := parcelsProvider()
	s, err := newReader(t, p).Read(context.Background(), query.FeatureQuery{Type: "parcels"})
	require.NoError(t, err)
	defer s.Close()

	meta, ok := p.Cursor(testutil.MetaCursor)
	require.True(t, ok)
	require.True(t, meta.Closed())
	for _, name := range []string{"parcels", "addresses"} {
		c, ok := p.Cursor(name)
		require.True(t, ok)
		assert.Greater(t, c.OpenedAt(), meta.ClosedAt(), name)
		assert.False(t, c.Closed(), name)
	}
}

func TestRead_PageRestriction(t *testing.T) {
	tests := []struct {
		name       string
		provider   func() *testutil.MemoryProvider
		query      query.FeatureQuery
		wantMeta   int
		wantBounds bool
		wantLimit  int
		wantOffset int
		wantIDs    int
	}{
		{
			name:       "meta bounds",
			provider:   parcelsProvider,
			query:      query.FeatureQuery{Type: "parcels", Limit: 2, Offset: 4},
			wantMeta:   1,
			wantBounds: true,
		},
		{
			name: "meta failed falls back to limit and offset",
			provider: func() *testutil.MemoryProvider {
				return parcelsProvider().WithOpenError(testutil.MetaCursor, errors.New("meta down"))
			},
			query:      query.FeatureQuery{Type: "parcels", Limit: 2, Offset: 4},
			wantMeta:   1,
			wantLimit:  2,
			wantOffset: 4,
		},
		{
			name: "empty result has no bounds",
			provider: func() *testutil.MemoryProvider {
				return parcelsProvider().WithRecords(testutil.MetaCursor, testutil.MetaRec(nil, nil, 0, 0))
			},
			query:      query.FeatureQuery{Type: "parcels", Limit: 2},
			wantMeta:   1,
			wantLimit:  2,
			wantOffset: 0,
		},
		{
			name:       "custom sort ignores bounds",
			provider:   parcelsProvider,
			query:      query.FeatureQuery{Type: "parcels", Limit: 3, SortBy: []query.SortBy{{Column: "name"}}},
			wantMeta:   1,
			wantLimit:  3,
			wantOffset: 0,
		},
		{
			name:     "ids skip meta",
			provider: parcelsProvider,
			query:    query.FeatureQuery{Type: "parcels", Limit: 2, IDs: []ir.Value{ir.Int(1), ir.Int(2)}},
			wantMeta: 0,
			wantIDs:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.provider()
			s, err := newReader(t, p).Read(context.Background(), tt.query)
			require.NoError(t, err)
			require.NoError(t, s.Close())

			assert.Equal(t, tt.wantMeta, metaQueries(p))
			for _, name := range []string{"parcels", "addresses"} {
				q := valueQuery(t, p, name)
				require.NoError(t, query.Validate(q))
				assert.Equal(t, tt.wantBounds, q.Bounded(), name)
				assert.Equal(t, tt.wantLimit, q.Limit, name)
				assert.Equal(t, tt.wantOffset, q.Offset, name)
				assert.Len(t, q.IDs, tt.wantIDs, name)
				if tt.wantBounds {
					assert.Equal(t, ir.Int(1), q.MinKey)
					assert.Equal(t, ir.Int(2), q.MaxKey)
				}
			}
		})
	}
}

func TestRead_MetaRecovery(t *testing.T) {
	tests := []struct {
		name     string
		provider *testutil.MemoryProvider
	}{
		{"open error", parcelsProvider().WithOpenError(testutil.MetaCursor, errors.New("meta down"))},
		{"cursor error", parcelsProvider().WithFailure(testutil.MetaCursor, 0, errors.New("meta broke"))},
		{"no record", parcelsProvider().WithRecords(testutil.MetaCursor)},
		{"malformed record", parcelsProvider().WithRecords(testutil.MetaCursor, reader.Record{Values: []any{1}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newReader(t, tt.provider).Read(context.Background(), query.FeatureQuery{Type: "parcels", ComputeNumberMatched: true})
			require.NoError(t, err)

			rows, err := reader.Collect(s)
			require.NoError(t, err)
			require.Len(t, rows, 6)

			info, ok := rows[0].Meta()
			require.True(t, ok)
			assert.Equal(t, row.ZeroMeta(), info)
			assert.False(t, info.HasBounds())
			assertAllClosed(t, tt.provider)
		})
	}
}

func TestRead_NumberMatchedNotRequested(t *testing.T) {
	p := parcelsProvider()
	s, err := newReader(t, p).Read(context.Background(), query.FeatureQuery{Type: "parcels"})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int64(-1), s.Meta().NumberMatched)
	assert.Equal(t, int64(2), s.Meta().NumberReturned)
}

func TestRead_OpenFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("table missing")
	p := parcelsProvider().WithOpenError("addresses", boom)

	s, err := newReader(t, p).Read(context.Background(), query.FeatureQuery{Type: "parcels"})
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, reader.ErrCodeOpenFailed, reader.Code(err))

	var re *reader.ReadError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "addresses", re.Container)
	assertAllClosed(t, p)
}

func TestRead_CursorFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("connection reset")
	p := parcelsProvider().WithFailure("addresses", 1, boom)

	s, err := newReader(t, p).Read(context.Background(), query.FeatureQuery{Type: "parcels"})
	require.NoError(t, err)

	rows, err := reader.Collect(s)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, reader.ErrCodeCursorFailed, reader.Code(err))
	assert.NotEmpty(t, rows)
	assert.LessOrEqual(t, len(rows), 3)
	assertAllClosed(t, p)
}

func TestRead_SortKeyArity(t *testing.T) {
	p := parcelsProvider().WithRecords("addresses", testutil.Rec(1))

	s, err := newReader(t, p).Read(context.Background(), query.FeatureQuery{Type: "parcels"})
	require.NoError(t, err)

	_, err = reader.Collect(s)
	require.Error(t, err)
	assert.Equal(t, reader.ErrCodeKeyArity, reader.Code(err))
	assertAllClosed(t, p)
}

func TestRead_SortKeyType(t *testing.T) {
	p := parcelsProvider().WithRecords("addresses", testutil.Rec("1", 10))

	s, err := newReader(t, p).Read(context.Background(), query.FeatureQuery{Type: "parcels"})
	require.NoError(t, err)

	_, err = reader.Collect(s)
	require.Error(t, err)
	assert.Equal(t, reader.ErrCodeKeyType, reader.Code(err))

	var keyErr *row.KeyTypeError
	require.ErrorAs(t, err, &keyErr)
	assert.Equal(t, "parcels.id", keyErr.Name)
}

func TestRead_InvalidQuery(t *testing.T) {
	tests := []struct {
		name  string
		query query.FeatureQuery
	}{
		{"negative limit", query.FeatureQuery{Type: "parcels", Limit: -1}},
		{"unknown sort column", query.FeatureQuery{Type: "parcels", SortBy: []query.SortBy{{Column: "area"}}}},
		{"unknown queryable", query.FeatureQuery{Type: "parcels", Filter: query.Equals{Field: "street", Value: ir.String("x")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := parcelsProvider()
			_, err := newReader(t, p).Read(context.Background(), tt.query)
			require.Error(t, err)
			assert.Equal(t, reader.ErrCodeInvalidQuery, reader.Code(err))

			var ve *query.ValidationError
			assert.ErrorAs(t, err, &ve)
			assert.Empty(t, p.Queries())
		})
	}
}

func TestRead_FilterResolvedToColumns(t *testing.T) {
	p := parcelsProvider()
	fq := query.FeatureQuery{Type: "parcels", Filter: query.Equals{Field: "title", Value: ir.String("Lot 7")}}

	s, err := newReader(t, p).Read(context.Background(), fq)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	want := query.Equals{Field: "name", Value: ir.String("Lot 7")}
	assert.Equal(t, want, valueQuery(t, p, "addresses").Filter)
	for _, q := range p.Queries() {
		if mq, ok := q.(query.MetaQuery); ok {
			assert.Equal(t, want, mq.Filter)
		}
	}
}

func TestRead_CustomSortKeys(t *testing.T) {
	p := testutil.NewMemoryProvider().
		WithRecords(testutil.MetaCursor, testutil.MetaRec(int64(1), int64(2), 2, -1)).
		WithRecords("parcels", testutil.Rec("b", 1), testutil.Rec("a", 2)).
		WithRecords("addresses", testutil.Rec("b", 1, 10), testutil.Rec("a", 2, 20))

	fq := query.FeatureQuery{Type: "parcels", SortBy: []query.SortBy{{Column: "name", Descending: true}}}
	s, err := newReader(t, p).Read(context.Background(), fq)
	require.NoError(t, err)

	rows, err := reader.Collect(s)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"meta",
		`parcels["b" 1]`,
		`addresses["b" 1 10]`,
		`parcels["a" 2]`,
		`addresses["a" 2 20]`,
	}, labels(rows))

	q := valueQuery(t, p, "addresses")
	require.Len(t, q.SortKeys, 3)
	assert.Equal(t, schema.SortKey{Name: "sort:parcels.name", Table: "parcels", Column: "name", Descending: true}, q.SortKeys[0])
	assert.Equal(t, []row.Direction{row.Descending, row.Ascending, row.Ascending}, rows[2].SortKeyDirections)
}

func TestStream_SecondIterationFails(t *testing.T) {
	p := parcelsProvider()
	s, err := newReader(t, p).Read(context.Background(), query.FeatureQuery{Type: "parcels"})
	require.NoError(t, err)

	_, err = reader.Collect(s)
	require.NoError(t, err)

	_, err = reader.Collect(s)
	assert.ErrorIs(t, err, reader.ErrStreamConsumed)
}

func TestStream_CloseWithoutIterating(t *testing.T) {
	p := parcelsProvider()
	s, err := newReader(t, p).Read(context.Background(), query.FeatureQuery{Type: "parcels"})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assertAllClosed(t, p)

	_, err = reader.Collect(s)
	assert.ErrorIs(t, err, reader.ErrStreamConsumed)
	// Read consumes the meta record and closes its cursor before opening
	// the value cursors; nothing else is pulled.
	meta, ok := p.Cursor(testutil.MetaCursor)
	require.True(t, ok)
	assert.Equal(t, 1, meta.Pulled())
	for _, c := range p.Cursors() {
		if c.Name() == testutil.MetaCursor {
			continue
		}
		assert.Zero(t, c.Pulled(), c.Name())
		assert.Greater(t, c.OpenedAt(), meta.ClosedAt(), c.Name())
	}
}

func TestRead_LogsExecutionID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	r := reader.NewReader(parcelsProvider(), parcelsSchema(t),
		reader.WithLogger(logger),
		reader.WithIDGenerator(testutil.NewFixedIDGenerator("exec-1")),
	)
	s, err := r.Read(context.Background(), query.FeatureQuery{Type: "parcels"})
	require.NoError(t, err)
	_, err = reader.Collect(s)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `msg="read started"`)
	assert.Contains(t, out, `msg="read finished"`)
	assert.Contains(t, out, "execution_id=exec-1")
	assert.Contains(t, out, "rows=6")
}

func TestPlan(t *testing.T) {
	p := testutil.NewMemoryProvider()
	r := newReader(t, p)

	t.Run("page", func(t *testing.T) {
		mq, vqs, err := r.Plan(query.FeatureQuery{
			Type:   "parcels",
			Limit:  5,
			Offset: 10,
			Filter: query.Equals{Field: "title", Value: ir.String("Lot A")},
		})
		require.NoError(t, err)
		require.NotNil(t, mq)
		assert.Equal(t, 5, mq.Limit)
		assert.Equal(t, query.Equals{Field: "name", Value: ir.String("Lot A")}, mq.Filter)

		require.Len(t, vqs, 2)
		assert.Equal(t, "parcels", vqs[0].Container.Name)
		assert.Equal(t, "addresses", vqs[1].Container.Name)
		for _, vq := range vqs {
			assert.Equal(t, 5, vq.Limit)
			assert.Equal(t, 10, vq.Offset)
			assert.False(t, vq.Bounded())
		}
	})

	t.Run("ids disable meta", func(t *testing.T) {
		mq, vqs, err := r.Plan(query.FeatureQuery{Type: "parcels", IDs: []ir.Value{ir.Int(1)}})
		require.NoError(t, err)
		assert.Nil(t, mq)
		assert.Equal(t, []ir.Value{ir.Int(1)}, vqs[1].IDs)
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err := r.Plan(query.FeatureQuery{Type: "parcels", SortBy: []query.SortBy{{Column: "area"}}})
		require.Error(t, err)
		assert.Equal(t, reader.ErrCodeInvalidQuery, reader.Code(err))
	})

	assert.Empty(t, p.Queries())
}
