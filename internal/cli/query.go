package cli

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/featurestream/internal/config"
	"github.com/roach88/featurestream/internal/ir"
	"github.com/roach88/featurestream/internal/query"
	"github.com/roach88/featurestream/internal/reader"
	"github.com/roach88/featurestream/internal/row"
	"github.com/roach88/featurestream/internal/store"
)

// QueryOptions holds flags for the query and explain commands.
type QueryOptions struct {
	*RootOptions
	Database      string
	FeatureTypes  string
	Limit         int
	Offset        int
	IDs           []string
	Sort          []string
	Filter        map[string]string
	NumberMatched bool
}

// RowOutput is one row in JSON output.
type RowOutput struct {
	Container string `json:"container"`
	Keys      []any  `json:"keys"`
	Values    []any  `json:"values"`
}

// MetaOutput holds the counters of one read in JSON output.
type MetaOutput struct {
	MinKey         any   `json:"min_key"`
	MaxKey         any   `json:"max_key"`
	NumberReturned int64 `json:"number_returned"`
	NumberMatched  int64 `json:"number_matched"`
}

// QueryResult is the JSON output of the query command.
type QueryResult struct {
	Type string      `json:"type"`
	Meta MetaOutput  `json:"meta"`
	Rows []RowOutput `json:"rows"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <type>",
		Short: "Read one page of features as merged rows",
		Long: `Read one page of features of a feature type from the database and
print the merged rows: the meta row first, then every feature row followed
by the rows of its related tables.

Examples:
  featurestream query parcels --db parcels.db --limit 10
  featurestream query parcels --id 3 --id 7
  featurestream query parcels --sort name:desc --filter title="Lot A"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	addQueryFlags(cmd, opts)
	return cmd
}

func addQueryFlags(cmd *cobra.Command, opts *QueryOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "database file (default: database.path setting)")
	cmd.Flags().StringVar(&opts.FeatureTypes, "types", "", "feature types directory (default: feature_types setting)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of features (default: query.limit setting)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of features to skip")
	cmd.Flags().StringSliceVar(&opts.IDs, "id", nil, "restrict to feature ids (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Sort, "sort", nil, "sort by main table column, column[:desc] (repeatable)")
	cmd.Flags().StringToStringVar(&opts.Filter, "filter", nil, "queryable=value equality filter (repeatable)")
	cmd.Flags().BoolVar(&opts.NumberMatched, "number-matched", false, "compute the number of matching features (default: query.compute_number_matched setting)")
}

// featureQuery builds the feature query from flags, falling back to the
// query settings for flags not given.
func (o *QueryOptions) featureQuery(cmd *cobra.Command, typ string, settings config.QuerySettings) (query.FeatureQuery, error) {
	fq := query.FeatureQuery{
		Type:                 typ,
		Limit:                settings.Limit,
		Offset:               o.Offset,
		ComputeNumberMatched: settings.ComputeNumberMatched,
	}
	if cmd.Flags().Changed("limit") {
		fq.Limit = o.Limit
	}
	if cmd.Flags().Changed("number-matched") {
		fq.ComputeNumberMatched = o.NumberMatched
	}

	for _, id := range o.IDs {
		fq.IDs = append(fq.IDs, parseLiteral(id))
	}

	for _, s := range o.Sort {
		column, dir, _ := strings.Cut(s, ":")
		switch strings.ToLower(dir) {
		case "", "asc":
			fq.SortBy = append(fq.SortBy, query.SortBy{Column: column})
		case "desc":
			fq.SortBy = append(fq.SortBy, query.SortBy{Column: column, Descending: true})
		default:
			return fq, &config.LoadError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("--sort %s: direction must be asc or desc", s)}
		}
	}

	fields := make([]string, 0, len(o.Filter))
	for field := range o.Filter {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	var preds []query.Predicate
	for _, field := range fields {
		preds = append(preds, query.Equals{Field: field, Value: parseLiteral(o.Filter[field])})
	}
	switch len(preds) {
	case 0:
	case 1:
		fq.Filter = preds[0]
	default:
		fq.Filter = query.And{Predicates: preds}
	}
	return fq, nil
}

// parseLiteral reads an integer when s is one, else a string.
func parseLiteral(s string) ir.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ir.Int(n)
	}
	return ir.String(s)
}

// openReader builds the reader for typ from settings and flags.
func (o *QueryOptions) openReader(env *Environment, typ string) (*reader.Reader, *store.Store, error) {
	dir := o.FeatureTypes
	if dir == "" {
		dir = env.Settings.FeatureTypes
	}
	ic, err := CompileFeatureType(env, dir, typ)
	if err != nil {
		return nil, nil, err
	}

	path := o.Database
	if path == "" {
		path = env.Settings.Database.Path
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil, &config.LoadError{Code: ErrCodeDatabase, Message: fmt.Sprintf("database not found: %s", path)}
	}
	st, err := store.Open(path,
		store.WithMaxOpenConns(env.Settings.Database.MaxOpenConns),
		store.WithLogger(env.Logger),
	)
	if err != nil {
		return nil, nil, &config.LoadError{Code: ErrCodeDatabase, Message: err.Error()}
	}

	return reader.NewReader(st, ic, reader.WithLogger(env.Logger)), st, nil
}

func runQuery(opts *QueryOptions, typ string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	env, err := LoadEnvironment(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	fq, err := opts.featureQuery(cmd, typ, env.Settings.Query)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	r, st, err := opts.openReader(env, typ)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	defer st.Close()

	stream, err := r.Read(cmd.Context(), fq)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}

	result := QueryResult{Type: typ, Rows: []RowOutput{}}
	for rw, err := range stream.All() {
		if err != nil {
			return formatter.Fail(ExitFailure, err)
		}
		if info, ok := rw.Meta(); ok {
			result.Meta = metaOutput(info)
			if formatter.Format != "json" {
				fmt.Fprintf(formatter.Writer, "meta min=%s max=%s returned=%d matched=%d\n",
					info.MinKey, info.MaxKey, info.NumberReturned, info.NumberMatched)
			}
			continue
		}
		if formatter.Format == "json" {
			result.Rows = append(result.Rows, rowOutput(rw))
			continue
		}
		fmt.Fprintln(formatter.Writer, formatRow(rw))
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return nil
}

func metaOutput(info row.MetaInfo) MetaOutput {
	return MetaOutput{
		MinKey:         info.MinKey.Any(),
		MaxKey:         info.MaxKey.Any(),
		NumberReturned: info.NumberReturned,
		NumberMatched:  info.NumberMatched,
	}
}

func rowOutput(rw row.Row) RowOutput {
	keys := make([]any, len(rw.SortKeyValues))
	for i, k := range rw.SortKeyValues {
		keys[i] = k.Any()
	}
	values := rw.Values
	if values == nil {
		values = []any{}
	}
	return RowOutput{Container: rw.Name, Keys: keys, Values: values}
}

// formatRow renders a row as its label followed by its values.
func formatRow(rw row.Row) string {
	var b strings.Builder
	b.WriteString(rw.String())
	for _, v := range rw.Values {
		b.WriteByte(' ')
		if val, err := ir.FromAny(v); err == nil {
			b.WriteString(val.String())
		} else {
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}
