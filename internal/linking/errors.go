package linking

import (
	"errors"
	"fmt"

	"github.com/roach88/idlink/internal/identity"
)

// ErrorCode categorizes linking failures.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a referenced record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeAlreadyMerged marks a secondary that was already inert. It is
	// reported on successful no-op merges, never as an error.
	ErrCodeAlreadyMerged ErrorCode = "ALREADY_MERGED"

	// ErrCodeAmbiguousMatch indicates a candidate that needs explicit
	// confirmation because no exact identifier matched.
	ErrCodeAmbiguousMatch ErrorCode = "AMBIGUOUS_MATCH"

	// ErrCodeStoreFailure indicates the store failed to read or write.
	ErrCodeStoreFailure ErrorCode = "STORE_FAILURE"

	// ErrCodeInvalidRequest indicates arguments that can never succeed.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeConflict indicates a concurrent modification that persisted
	// after re-reading.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeCycleDetected indicates mergedInto pointers that loop or chain
	// too deep to resolve.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
)

// LinkError is the error type returned by Service operations.
type LinkError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RecordID identifies the record involved, when there is one.
	RecordID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *LinkError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RecordID != "" {
		msg += fmt.Sprintf(" (record=%s)", e.RecordID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of a LinkError in err's chain, or "" if there is
// none.
func CodeOf(err error) ErrorCode {
	var le *LinkError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsStoreFailure reports whether err is a store failure.
func IsStoreFailure(err error) bool {
	return CodeOf(err) == ErrCodeStoreFailure
}

// IsConflict reports whether err is an unresolved concurrent modification.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

// IsInvalidRequest reports whether err is an invalid request.
func IsInvalidRequest(err error) bool {
	return CodeOf(err) == ErrCodeInvalidRequest
}

// NewNotFoundError creates a LinkError for a missing record.
func NewNotFoundError(id string) *LinkError {
	return &LinkError{
		Code:     ErrCodeNotFound,
		Message:  "record does not exist",
		RecordID: id,
	}
}

func newInvalidRequest(id, format string, args ...any) *LinkError {
	return &LinkError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf(format, args...),
		RecordID: id,
	}
}

// classify wraps a store error. identity.ErrNotFound and ErrConflict keep
// their meaning; anything else is a store failure.
func classify(op string, err error) *LinkError {
	var le *LinkError
	if errors.As(err, &le) {
		return le
	}
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return &LinkError{Code: ErrCodeNotFound, Message: op, Err: err}
	case errors.Is(err, identity.ErrConflict):
		return &LinkError{Code: ErrCodeConflict, Message: op, Err: err}
	default:
		return &LinkError{Code: ErrCodeStoreFailure, Message: op, Err: err}
	}
}
