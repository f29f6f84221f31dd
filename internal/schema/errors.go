package schema

import (
	"errors"
	"fmt"
	"strings"
)

// CompileError represents an error detected while compiling a feature type's
// annotated paths into a table tree.
//
// Compile errors are fatal: a misconfigured feature type must fail at
// startup, before it serves any query.
type CompileError struct {
	// Code identifies the error category.
	Code CompileErrorCode

	// Message is a human-readable description.
	Message string

	// Paths lists the offending table paths, if any.
	Paths []string
}

// CompileErrorCode categorizes compile errors.
type CompileErrorCode string

const (
	// ErrCodeNoRootFound indicates no table node survived parsing.
	ErrCodeNoRootFound CompileErrorCode = "E201_NO_ROOT_FOUND"

	// ErrCodeMultipleRoots indicates more than one parentless table node.
	ErrCodeMultipleRoots CompileErrorCode = "E202_MULTIPLE_ROOTS"
)

// Error implements the error interface.
func (e *CompileError) Error() string {
	if len(e.Paths) > 0 {
		return fmt.Sprintf("%s: %s (paths=%s)", e.Code, e.Message, strings.Join(e.Paths, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNoRootFound returns true if err is a NoRootFound compile error.
// Uses errors.As to handle wrapped errors.
func IsNoRootFound(err error) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeNoRootFound
	}
	return false
}

// IsMultipleRoots returns true if err is a MultipleRoots compile error.
// Uses errors.As to handle wrapped errors.
func IsMultipleRoots(err error) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeMultipleRoots
	}
	return false
}
