package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"slices"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/featurestream/internal/query"
	"github.com/roach88/featurestream/internal/querysql"
	"github.com/roach88/featurestream/internal/reader"
)

// Store provides feature cursors over a SQLite database.
type Store struct {
	db       *sql.DB
	compiler *querysql.Compiler
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*options)

type options struct {
	maxOpenConns int
	logger       *slog.Logger
}

// WithMaxOpenConns caps the connection pool. Every open cursor holds a
// connection, so the cap must be at least the number of containers of the
// largest feature type read concurrently. Default: 0 (unlimited).
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		o.maxOpenConns = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open creates or opens a SQLite database at the given path.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(2)

	return &Store{db: db, compiler: querysql.NewCompiler(), logger: o.logger}, nil
}

// dsn appends the connection pragmas to path.
func dsn(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	return "file:" + path + "?" + params.Encode()
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Exec runs statements that return no rows, in order. Used to create
// fixture tables.
func (s *Store) Exec(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// Insert writes one row. Columns are written in name order.
func (s *Store) Insert(ctx context.Context, table string, row map[string]any) error {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	slices.Sort(cols)

	vals := make([]any, len(cols))
	for i, col := range cols {
		vals[i] = row[col]
	}

	stmt, args, err := sq.Insert(table).Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// Open executes a MetaQuery or ValueQuery and returns a cursor over its rows.
// Implements reader.Provider.
func (s *Store) Open(ctx context.Context, q query.Query) (reader.Cursor, error) {
	stmt, args, err := s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	keys := 0
	name := "meta"
	if vq, ok := q.(query.ValueQuery); ok {
		keys = len(vq.SortKeys)
		name = vq.Container.Name
	}
	s.logger.Debug("opening cursor", "container", name, "sql", stmt, "args", len(args))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	return &cursor{rows: rows, keys: keys}, nil
}

var _ reader.Provider = (*Store)(nil)

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
