package reader

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/merge"
	"github.com/roach88/featurestream/internal/query"
	"github.com/roach88/featurestream/internal/row"
	"github.com/roach88/featurestream/internal/schema"
)

// Record is one fetched record: the sort-key values in the order of the
// query's SortKeys, then the attribute values in the container's attribute
// order.
//
// A meta record carries no sort keys; its Values are
// [minKey, maxKey, numberReturned, numberMatched].
type Record struct {
	SortKeys []ir.Value
	Values   []any
}

// Cursor is an opened, ordered sequence of records. Close must be safe to
// call whether or not All was iterated.
type Cursor interface {
	All() iter.Seq2[Record, error]
	Close() error
}

// Provider opens cursors for MetaQuery and ValueQuery requests. Value
// cursors must yield records sorted by the query's SortKeys.
type Provider interface {
	Open(ctx context.Context, q query.Query) (Cursor, error)
}

// Reader executes feature queries against one compiled feature type.
// A Reader is safe for concurrent use; every Read owns its own cursors.
type Reader struct {
	provider Provider
	instance *schema.InstanceContainer
	logger   *slog.Logger
	ids      IDGenerator
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithIDGenerator sets the execution id generator. Default: UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(r *Reader) {
		r.ids = ids
	}
}

// NewReader creates a Reader for the given feature type.
func NewReader(p Provider, ic *schema.InstanceContainer, opts ...Option) *Reader {
	r := &Reader{
		provider: p,
		instance: ic,
		logger:   slog.Default(),
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Instance returns the compiled feature type.
func (r *Reader) Instance() *schema.InstanceContainer {
	return r.instance
}

// Read starts one query execution. The meta cursor has been read and closed
// and every value cursor opened when Read returns; rows are produced lazily
// by the returned Stream.
func (r *Reader) Read(ctx context.Context, fq query.FeatureQuery) (*Stream, error) {
	fq, err := query.Resolve(fq, r.instance)
	if err != nil {
		return nil, &ReadError{Code: ErrCodeInvalidQuery, Err: err}
	}

	log := r.logger.With("execution_id", r.ids.Generate(), "type", fq.Type)
	containers := r.instance.All()
	log.Info("read started",
		"containers", len(containers),
		"limit", fq.Limit,
		"offset", fq.Offset,
		"ids", len(fq.IDs),
	)

	meta, metaOK := row.ZeroMeta(), false
	if len(fq.IDs) == 0 {
		meta, metaOK = r.readMeta(ctx, fq, log)
	}

	queries := r.valueQueries(fq, containers, meta, metaOK)
	cursors, err := r.open(ctx, queries, log)
	if err != nil {
		return nil, err
	}

	seqs := make([]iter.Seq2[row.Row, error], 0, len(cursors)+1)
	seqs = append(seqs, merge.FromSlice([]row.Row{row.NewMeta(meta)}))
	for i, c := range cursors {
		seqs = append(seqs, rows(c, containers[i], queries[i].SortKeys))
	}

	return &Stream{
		ctx:     ctx,
		merged:  merge.AllChecked(row.CompareChecked, seqs...),
		cursors: cursors,
		meta:    meta,
		log:     log,
	}, nil
}

// Plan returns the queries a Read of fq would hand to the provider when no
// meta bounds are known: the meta query (nil when ids disable it) and one
// value query per container in priority order.
func (r *Reader) Plan(fq query.FeatureQuery) (*query.MetaQuery, []query.ValueQuery, error) {
	fq, err := query.Resolve(fq, r.instance)
	if err != nil {
		return nil, nil, &ReadError{Code: ErrCodeInvalidQuery, Err: err}
	}

	var mq *query.MetaQuery
	if len(fq.IDs) == 0 {
		q := r.metaQuery(fq)
		mq = &q
	}
	return mq, r.valueQueries(fq, r.instance.All(), row.ZeroMeta(), false), nil
}

func (r *Reader) metaQuery(fq query.FeatureQuery) query.MetaQuery {
	return query.MetaQuery{
		Main:                 r.instance.Main(),
		Limit:                fq.Limit,
		Offset:               fq.Offset,
		SortBy:               fq.SortBy,
		Filter:               fq.Filter,
		ComputeNumberMatched: fq.ComputeNumberMatched,
	}
}

// readMeta reads the single meta record. Any failure is logged and recovered
// with zero counters.
func (r *Reader) readMeta(ctx context.Context, fq query.FeatureQuery, log *slog.Logger) (row.MetaInfo, bool) {
	c, err := r.provider.Open(ctx, r.metaQuery(fq))
	if err != nil {
		log.Warn("meta query failed, using zero counters", "error", err)
		return row.ZeroMeta(), false
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("closing meta cursor failed", "error", err)
		}
	}()

	for rec, err := range c.All() {
		if err != nil {
			log.Warn("meta cursor failed, using zero counters", "error", err)
			return row.ZeroMeta(), false
		}
		info, err := decodeMeta(rec)
		if err != nil {
			log.Warn("invalid meta record, using zero counters", "error", err)
			return row.ZeroMeta(), false
		}
		if !fq.ComputeNumberMatched {
			info.NumberMatched = -1
		}
		log.Debug("meta read",
			"min_key", info.MinKey.String(),
			"max_key", info.MaxKey.String(),
			"number_returned", info.NumberReturned,
			"number_matched", info.NumberMatched,
		)
		return info, true
	}

	log.Warn("meta cursor returned no record, using zero counters")
	return row.ZeroMeta(), false
}

func decodeMeta(rec Record) (row.MetaInfo, error) {
	if len(rec.Values) != 4 {
		return row.MetaInfo{}, fmt.Errorf("meta record has %d values, want 4", len(rec.Values))
	}
	minKey, err := ir.FromAny(rec.Values[0])
	if err != nil {
		return row.MetaInfo{}, fmt.Errorf("min key: %w", err)
	}
	maxKey, err := ir.FromAny(rec.Values[1])
	if err != nil {
		return row.MetaInfo{}, fmt.Errorf("max key: %w", err)
	}
	returned, err := toInt64(rec.Values[2])
	if err != nil {
		return row.MetaInfo{}, fmt.Errorf("number returned: %w", err)
	}
	matched, err := toInt64(rec.Values[3])
	if err != nil {
		return row.MetaInfo{}, fmt.Errorf("number matched: %w", err)
	}
	return row.MetaInfo{
		MinKey:         minKey,
		MaxKey:         maxKey,
		NumberReturned: returned,
		NumberMatched:  matched,
	}, nil
}

func toInt64(v any) (int64, error) {
	val, err := ir.FromAny(v)
	if err != nil {
		return 0, err
	}
	switch n := val.(type) {
	case ir.Int:
		return int64(n), nil
	case ir.Null:
		return 0, nil
	default:
		return 0, fmt.Errorf("not an integer: %s", val.Kind())
	}
}

// valueQueries builds one ValueQuery per container. The page is restricted
// by ids when given, else by the meta key bounds when known, else by
// limit/offset over the main table.
func (r *Reader) valueQueries(fq query.FeatureQuery, containers []schema.AttributesContainer, meta row.MetaInfo, metaOK bool) []query.ValueQuery {
	main := r.instance.Main()
	custom := customSortKeys(main, fq.SortBy)
	bounded := metaOK && meta.HasBounds() && len(fq.SortBy) == 0

	queries := make([]query.ValueQuery, len(containers))
	for i, c := range containers {
		q := query.ValueQuery{
			Container: c,
			Main:      main,
			SortKeys:  append(append([]schema.SortKey{}, custom...), c.SortKeys...),
			SortBy:    fq.SortBy,
			Filter:    fq.Filter,
		}
		switch {
		case len(fq.IDs) > 0:
			q.IDs = fq.IDs
		case bounded:
			q.MinKey, q.MaxKey = meta.MinKey, meta.MaxKey
		default:
			q.Limit, q.Offset = fq.Limit, fq.Offset
		}
		queries[i] = q
	}
	return queries
}

// customSortKeys turns requested sort columns into sort keys of the main
// table, prepended to every container's own keys.
func customSortKeys(main schema.AttributesContainer, sortBy []query.SortBy) []schema.SortKey {
	keys := make([]schema.SortKey, len(sortBy))
	for i, s := range sortBy {
		keys[i] = schema.SortKey{
			Name:       "sort:" + main.Name + "." + s.Column,
			Table:      main.Name,
			Column:     s.Column,
			Segment:    0,
			Descending: s.Descending,
		}
	}
	return keys
}

// open opens all value cursors in parallel. If any open fails, the cursors
// already opened are closed and the first error is returned.
func (r *Reader) open(ctx context.Context, queries []query.ValueQuery, log *slog.Logger) ([]Cursor, error) {
	cursors := make([]Cursor, len(queries))

	// Cursors outlive this call, so they are opened with ctx, not an
	// errgroup-derived context that is cancelled by Wait.
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			c, err := r.provider.Open(ctx, q)
			if err != nil {
				return &ReadError{Code: ErrCodeOpenFailed, Container: q.Container.Name, Err: err}
			}
			cursors[i] = c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("opening value cursors failed", "error", err)
		for _, c := range cursors {
			if c == nil {
				continue
			}
			if cerr := c.Close(); cerr != nil {
				log.Warn("closing cursor failed", "error", cerr)
			}
		}
		return nil, err
	}

	log.Debug("value cursors opened", "count", len(cursors))
	return cursors, nil
}

// rows maps a cursor's records to rows of container c.
func rows(cur Cursor, c schema.AttributesContainer, keys []schema.SortKey) iter.Seq2[row.Row, error] {
	names := make([]string, len(keys))
	directions := make([]row.Direction, len(keys))
	for i, k := range keys {
		names[i] = k.Name
		if k.Descending {
			directions[i] = row.Descending
		}
	}

	return func(yield func(row.Row, error) bool) {
		for rec, err := range cur.All() {
			if err != nil {
				yield(row.Row{}, &ReadError{Code: ErrCodeCursorFailed, Container: c.Name, Err: err})
				return
			}
			if len(rec.SortKeys) != len(keys) {
				yield(row.Row{}, &ReadError{
					Code:      ErrCodeKeyArity,
					Container: c.Name,
					Err:       fmt.Errorf("record has %d sort keys, want %d", len(rec.SortKeys), len(keys)),
				})
				return
			}
			r := row.Row{
				Name:              c.Name,
				Path:              c.Path,
				SortKeyNames:      names,
				SortKeyValues:     rec.SortKeys,
				SortKeyDirections: directions,
				Priority:          c.PriorityRank,
				Values:            rec.Values,
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}
