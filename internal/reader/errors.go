package reader

import (
	"errors"
	"fmt"
)

// ErrStreamConsumed is yielded when a Stream is iterated a second time.
var ErrStreamConsumed = errors.New("stream already consumed")

// ReadError represents a failure of one read execution.
type ReadError struct {
	// Code identifies the error category.
	Code ReadErrorCode

	// Container is the affected container, if any.
	Container string

	// Err is the underlying cause.
	Err error
}

// ReadErrorCode categorizes read errors.
type ReadErrorCode string

const (
	// ErrCodeInvalidQuery indicates the feature query does not fit the schema.
	ErrCodeInvalidQuery ReadErrorCode = "INVALID_QUERY"

	// ErrCodeOpenFailed indicates a value cursor could not be opened.
	ErrCodeOpenFailed ReadErrorCode = "CURSOR_OPEN_FAILED"

	// ErrCodeCursorFailed indicates a value cursor failed mid-stream.
	ErrCodeCursorFailed ReadErrorCode = "CURSOR_FAILED"

	// ErrCodeKeyArity indicates a record with the wrong number of sort keys.
	ErrCodeKeyArity ReadErrorCode = "SORT_KEY_ARITY"

	// ErrCodeKeyType indicates two containers disagree on a sort key's type.
	ErrCodeKeyType ReadErrorCode = "SORT_KEY_TYPE"
)

// Error implements the error interface.
func (e *ReadError) Error() string {
	if e.Container != "" {
		return fmt.Sprintf("%s (container=%s): %v", e.Code, e.Container, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// Code returns the ReadErrorCode of err, or "" if err is not a ReadError.
// Uses errors.As to handle wrapped errors.
func Code(err error) ReadErrorCode {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
