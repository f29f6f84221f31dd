package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/featurestream/internal/query"
	"github.com/roach88/featurestream/internal/querysql"
	"github.com/roach88/featurestream/internal/reader"
)

// Statement is one compiled SQL statement of a read.
type Statement struct {
	Container string `json:"container"`
	SQL       string `json:"sql"`
	Args      []any  `json:"args"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <type>",
		Short: "Print the SQL a query would run",
		Long: `Print the statements a query of a feature type would run: the meta
statement, then one statement per container in priority order.

Value statements are shown restricted by limit and offset; at read time the
meta row's key bounds replace them when available.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	addQueryFlags(cmd, opts)
	return cmd
}

func runExplain(opts *QueryOptions, typ string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	env, err := LoadEnvironment(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	fq, err := opts.featureQuery(cmd, typ, env.Settings.Query)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	dir := opts.FeatureTypes
	if dir == "" {
		dir = env.Settings.FeatureTypes
	}
	ic, err := CompileFeatureType(env, dir, typ)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	mq, vqs, err := reader.NewReader(nil, ic, reader.WithLogger(env.Logger)).Plan(fq)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}

	statements, err := compileStatements(mq, vqs)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(statements)
	}
	for _, s := range statements {
		fmt.Fprintf(formatter.Writer, "-- %s\n%s;\n", s.Container, s.SQL)
		if len(s.Args) > 0 {
			fmt.Fprintf(formatter.Writer, "-- args: %v\n", s.Args)
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}

func compileStatements(mq *query.MetaQuery, vqs []query.ValueQuery) ([]Statement, error) {
	c := querysql.NewCompiler()
	var out []Statement

	if mq != nil {
		sql, args, err := c.Compile(*mq)
		if err != nil {
			return nil, fmt.Errorf("meta: %w", err)
		}
		out = append(out, Statement{Container: "meta", SQL: sql, Args: nonNil(args)})
	}
	for _, vq := range vqs {
		sql, args, err := c.Compile(vq)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", vq.Container.Name, err)
		}
		out = append(out, Statement{Container: vq.Container.Name, SQL: sql, Args: nonNil(args)})
	}
	return out, nil
}

func nonNil(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}
