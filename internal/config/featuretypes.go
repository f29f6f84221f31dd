package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/featurestream/internal/pathsyntax"
	"github.com/roach88/featurestream/internal/schema"
)

// Error code constants for feature type loading.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeInvalidType   = "E301" // Malformed feature type
	ErrCodeInvalidEntry  = "E302" // Malformed path entry
	ErrCodeNoFeatureType = "E303" // No feature types declared
)

// LoadError represents an error that occurred while loading feature types.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FeatureType is the mapping of one feature type: its name and annotated
// paths in declaration order.
type FeatureType struct {
	Name    string
	Entries []schema.Entry
}

// Compile builds the instance container of the feature type.
func (ft FeatureType) Compile(syntax pathsyntax.SyntaxConfig, logger *slog.Logger) (*schema.InstanceContainer, error) {
	ic, err := schema.Compile(ft.Entries, schema.WithSyntax(syntax), schema.WithLogger(logger.With("type", ft.Name)))
	if err != nil {
		return nil, fmt.Errorf("feature type %s: %w", ft.Name, err)
	}
	return ic, nil
}

// LoadFeatureTypes loads every feature type declared in the CUE files of dir.
//
// Feature types live under the top-level featureType field. Paths are either
// plain strings or structs with path, priority and identity:
//
//	featureType: parcels: paths: [
//		"/parcels/id{oid}",
//		{path: "/parcels/name", priority: 1},
//	]
func LoadFeatureTypes(dir string) ([]FeatureType, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("feature types directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing feature types directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	return ParseFeatureTypes(value)
}

// ParseFeatureTypes extracts feature types from a built CUE value.
func ParseFeatureTypes(v cue.Value) ([]FeatureType, error) {
	typesVal := v.LookupPath(cue.ParsePath("featureType"))
	if !typesVal.Exists() {
		return nil, &LoadError{Code: ErrCodeNoFeatureType, Message: "no featureType declared", Pos: v.Pos()}
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err, ErrCodeInvalidType)
	}

	var types []FeatureType
	for iter.Next() {
		ft, err := parseFeatureType(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		types = append(types, ft)
	}
	if len(types) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFeatureType, Message: "featureType is empty", Pos: typesVal.Pos()}
	}
	return types, nil
}

func parseFeatureType(name string, v cue.Value) (FeatureType, error) {
	ft := FeatureType{Name: name}

	pathsVal := v.LookupPath(cue.ParsePath("paths"))
	if !pathsVal.Exists() {
		return ft, &LoadError{Code: ErrCodeInvalidType, Message: fmt.Sprintf("featureType.%s: paths is required", name), Pos: v.Pos()}
	}
	list, err := pathsVal.List()
	if err != nil {
		return ft, formatCUEError(err, ErrCodeInvalidType)
	}

	for list.Next() {
		entry, err := parseEntry(list.Value())
		if err != nil {
			return ft, err
		}
		ft.Entries = append(ft.Entries, entry)
	}
	if len(ft.Entries) == 0 {
		return ft, &LoadError{Code: ErrCodeInvalidType, Message: fmt.Sprintf("featureType.%s: at least one path is required", name), Pos: pathsVal.Pos()}
	}
	return ft, nil
}

// parseEntry accepts a path string or a {path, priority?, identity?} struct.
func parseEntry(v cue.Value) (schema.Entry, error) {
	if s, err := v.String(); err == nil {
		return schema.Entry{Path: s}, nil
	}

	if v.Kind() != cue.StructKind {
		return schema.Entry{}, &LoadError{Code: ErrCodeInvalidEntry, Message: "path entry must be a string or a struct", Pos: v.Pos()}
	}

	pathVal := v.LookupPath(cue.ParsePath("path"))
	if !pathVal.Exists() {
		return schema.Entry{}, &LoadError{Code: ErrCodeInvalidEntry, Message: "path is required", Pos: v.Pos()}
	}
	path, err := pathVal.String()
	if err != nil {
		return schema.Entry{}, formatCUEError(err, ErrCodeInvalidEntry)
	}
	entry := schema.Entry{Path: path}

	if p := v.LookupPath(cue.ParsePath("priority")); p.Exists() {
		n, err := p.Int64()
		if err != nil {
			return schema.Entry{}, formatCUEError(err, ErrCodeInvalidEntry)
		}
		priority := int(n)
		entry.SortPriority = &priority
	}

	if id := v.LookupPath(cue.ParsePath("identity")); id.Exists() {
		b, err := id.Bool()
		if err != nil {
			return schema.Entry{}, formatCUEError(err, ErrCodeInvalidEntry)
		}
		entry.IsIdentity = b
	}

	return entry, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error, code string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}

	first := errs[0]
	loadErr := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}
