package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/featurestream/internal/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// TypeInfo describes one compiled feature type.
type TypeInfo struct {
	Name        string          `json:"name"`
	Fingerprint string          `json:"fingerprint"`
	MainOffset  int             `json:"main_offset"`
	Containers  []ContainerInfo `json:"containers"`
}

// ContainerInfo describes one container in priority order.
type ContainerInfo struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Type       string   `json:"type"`
	Priority   int      `json:"priority"`
	Repeats    bool     `json:"repeats"`
	Trail      []string `json:"trail"`
	SortKeys   []string `json:"sort_keys"`
	Attributes []string `json:"attributes"`
	Queryables []string `json:"queryables,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [feature-types-dir]",
		Short: "Compile feature types into containers",
		Long: `Compile the CUE feature types of a directory and print the containers
of each: table, relationship, sort key chain and attributes.

The directory defaults to the feature_types setting.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled types as JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	env, err := LoadEnvironment(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	dir := typesDir(env, args)
	compiled, err := CompileFeatureTypes(env, dir)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	infos := make([]TypeInfo, 0, len(compiled))
	for _, ct := range compiled {
		if ct.Err != nil {
			return formatter.Fail(ExitFailure, ct.Err)
		}
		info, err := describe(ct.Name, ct.Instance)
		if err != nil {
			return formatter.Fail(ExitFailure, err)
		}
		formatter.VerboseLog("Compiled %s: %d container(s)", ct.Name, len(info.Containers))
		infos = append(infos, info)
	}

	if opts.Output != "" {
		if err := writeTypesToFile(infos, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(infos)
	}
	printTypes(formatter.Writer, infos)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compiled types to %s\n", opts.Output)
	}
	return nil
}

// describe summarizes a compiled feature type.
func describe(name string, ic *schema.InstanceContainer) (TypeInfo, error) {
	fingerprint, err := ic.Tree().Fingerprint()
	if err != nil {
		return TypeInfo{}, err
	}

	info := TypeInfo{Name: name, Fingerprint: fingerprint, MainOffset: ic.MainOffset()}
	for _, c := range ic.All() {
		trail, err := tableTrail(ic.Tree(), c.Path)
		if err != nil {
			return TypeInfo{}, err
		}
		ci := ContainerInfo{
			Name:     c.Name,
			Path:     c.TablePath,
			Type:     c.Type.String(),
			Priority: c.PriorityRank,
			Repeats:  c.Type.Repeats(),
			Trail:    trail,
			SortKeys: c.SortKeyNames(),
		}
		for _, a := range c.Attributes {
			ci.Attributes = append(ci.Attributes, a.Name)
			if a.Queryable != "" {
				ci.Queryables = append(ci.Queryables, a.Queryable)
			}
		}
		info.Containers = append(info.Containers, ci)
	}
	return info, nil
}

// tableTrail returns the table names from the root down to the container at
// path.
func tableTrail(tree *schema.TableTree, path string) ([]string, error) {
	nodes, ok := tree.FindTrail(path)
	if !ok {
		return nil, fmt.Errorf("container %s not found in table tree", path)
	}
	trail := make([]string, len(nodes))
	for i, n := range nodes {
		trail[i] = tree.Node(n).Table
	}
	return trail, nil
}

func printTypes(w io.Writer, infos []TypeInfo) {
	fmt.Fprintf(w, "✓ Compiled %d feature type(s)\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(w, "\n%s (main offset %d)\n", info.Name, info.MainOffset)
		for _, c := range info.Containers {
			repeats := ""
			if c.Repeats {
				repeats = " (repeats)"
			}
			fmt.Fprintf(w, "  %d %s [%s] %s%s\n", c.Priority, c.Name, c.Type, c.Path, repeats)
			fmt.Fprintf(w, "    trail: %s\n", strings.Join(c.Trail, " > "))
			fmt.Fprintf(w, "    sort keys: %s\n", strings.Join(c.SortKeys, ", "))
			fmt.Fprintf(w, "    attributes: %s\n", strings.Join(c.Attributes, ", "))
		}
	}
}

// writeTypesToFile writes the compiled types as indented JSON.
func writeTypesToFile(infos []TypeInfo, filename string) error {
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, append(data, '\n'), 0644)
}
