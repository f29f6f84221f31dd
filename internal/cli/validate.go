package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Types  []string          `json:"types"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is the failure of one feature type.
type ValidationError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [feature-types-dir]",
		Short: "Check that every feature type compiles",
		Long: `Compile every feature type of a directory and report all failures
instead of stopping at the first one. Nothing is printed for valid types
unless --verbose is set.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	env, err := LoadEnvironment(opts, cmd.ErrOrStderr())
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	compiled, err := CompileFeatureTypes(env, typesDir(env, args))
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	result := ValidationResult{Valid: true, Types: make([]string, 0, len(compiled))}
	for _, ct := range compiled {
		result.Types = append(result.Types, ct.Name)
		if ct.Err == nil {
			formatter.VerboseLog("✓ %s", ct.Name)
			continue
		}
		code, message := errorCode(ct.Err)
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Type: ct.Name, Code: code, Message: message})
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(formatter.Writer, "✓ %d feature type(s) valid\n", len(result.Types))
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %d of %d feature type(s) invalid\n", len(result.Errors), len(result.Types))
		for _, e := range result.Errors {
			fmt.Fprintf(formatter.Writer, "  %s: [%s] %s\n", e.Type, e.Code, e.Message)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d feature type(s) invalid", len(result.Errors)))
	}
	return nil
}
