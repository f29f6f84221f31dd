package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/featurestream/internal/config"
	"github.com/roach88/featurestream/internal/pathsyntax"
	"github.com/roach88/featurestream/internal/reader"
	"github.com/roach88/featurestream/internal/schema"
)

// Error codes reported by the CLI besides the feature type load codes of
// package config and the compile codes of package schema.
const (
	ErrCodeGeneric         = config.ErrCodeGeneric
	ErrCodeSettings        = "E101" // Settings file or environment invalid
	ErrCodeDatabase        = "E102" // Database could not be opened
	ErrCodeUnknownType     = "E103" // Feature type not declared
	ErrCodeWriteFailed     = "E104" // Output file could not be written
	ErrCodeInvalidArgument = "E105" // Flag value could not be parsed
)

// Environment is what every command needs: settings, logger and grammar.
type Environment struct {
	Settings *config.Settings
	Logger   *slog.Logger
	Syntax   pathsyntax.SyntaxConfig
}

// LoadEnvironment reads the settings and builds the logger. Logs go to w;
// --verbose lowers the level to debug.
func LoadEnvironment(opts *RootOptions, w io.Writer) (*Environment, error) {
	settings, err := config.LoadSettings(opts.Config)
	if err != nil {
		return nil, &config.LoadError{Code: ErrCodeSettings, Message: err.Error()}
	}
	syntax, err := settings.Syntax.Config()
	if err != nil {
		return nil, &config.LoadError{Code: ErrCodeSettings, Message: err.Error()}
	}

	logSettings := settings.Log
	if opts.Verbose {
		logSettings.Level = "debug"
	}
	return &Environment{
		Settings: settings,
		Logger:   logSettings.Logger(w),
		Syntax:   syntax,
	}, nil
}

// CompiledType is a feature type with its compiled instance container, or
// the error that prevented compilation.
type CompiledType struct {
	Name     string
	Instance *schema.InstanceContainer
	Err      error
}

// CompileFeatureTypes loads every feature type of dir and compiles each.
// Load errors are returned as err; compile errors are collected per type.
func CompileFeatureTypes(env *Environment, dir string) ([]CompiledType, error) {
	types, err := config.LoadFeatureTypes(dir)
	if err != nil {
		return nil, err
	}

	out := make([]CompiledType, len(types))
	for i, ft := range types {
		ic, err := ft.Compile(env.Syntax, env.Logger)
		out[i] = CompiledType{Name: ft.Name, Instance: ic, Err: err}
	}
	return out, nil
}

// CompileFeatureType loads dir and compiles the feature type called name.
func CompileFeatureType(env *Environment, dir, name string) (*schema.InstanceContainer, error) {
	types, err := config.LoadFeatureTypes(dir)
	if err != nil {
		return nil, err
	}
	for _, ft := range types {
		if ft.Name == name {
			return ft.Compile(env.Syntax, env.Logger)
		}
	}
	return nil, &config.LoadError{Code: ErrCodeUnknownType, Message: fmt.Sprintf("feature type %s not declared in %s", name, dir)}
}

// errorCode extracts the code and message of the error types the commands
// can run into.
func errorCode(err error) (string, string) {
	var loadErr *config.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Error()
	}
	var compileErr *schema.CompileError
	if errors.As(err, &compileErr) {
		return string(compileErr.Code), compileErr.Error()
	}
	var readErr *reader.ReadError
	if errors.As(err, &readErr) {
		return string(readErr.Code), readErr.Error()
	}
	return ErrCodeGeneric, err.Error()
}

// typesDir returns the feature types directory: the first argument when
// given, else the configured directory.
func typesDir(env *Environment, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return env.Settings.FeatureTypes
}
