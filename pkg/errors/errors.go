// Package errors defines the coded error types used across the
// reconciliation engine.
//
// The taxonomy mirrors how failures are handled: configuration errors are
// recovered locally (window fallback) and never fail a batch; data-access
// errors are fatal to the current execution; invariant errors indicate a
// programming defect in the matching engine and must fail the batch rather
// than emit wrong counters; not-found and execution-conflict errors are
// distinct caller-visible outcomes, not failures.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryDataAccess    ErrorCategory = "data_access"
	CategoryInvariant     ErrorCategory = "invariant"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryExecution     ErrorCategory = "execution"
	CategoryValidation    ErrorCategory = "validation"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeInvalidWindow ErrorCode = "invalid_window"

	// Data-access errors
	CodeStoreUnavailable ErrorCode = "store_unavailable"
	CodeQueryFailed      ErrorCode = "query_failed"
	CodeWriteFailed      ErrorCode = "write_failed"

	// Invariant errors
	CodeRecordDoubleUse ErrorCode = "record_double_use"
	CodeRecordDropped   ErrorCode = "record_dropped"
	CodeCounterMismatch ErrorCode = "counter_mismatch"

	// Not-found errors
	CodeBatchNotFound ErrorCode = "batch_not_found"

	// Execution errors
	CodeExecutionInFlight ErrorCode = "execution_in_flight"
	CodeBatchTerminal     ErrorCode = "batch_terminal"
	CodeBatchNotRunnable  ErrorCode = "batch_not_runnable"

	// Validation errors
	CodeInvalidRecord ErrorCode = "invalid_record"
	CodeMissingField  ErrorCode = "missing_field"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconError is the base error type for all engine errors
type ReconError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ReconError) WithContext(key string, value interface{}) *ReconError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a new ReconError
func New(category ErrorCategory, code ErrorCode, message string) *ReconError {
	return &ReconError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconError {
	if err == nil {
		return nil
	}

	return &ReconError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// Specific error constructors

// DataAccessError creates a store-related error. These are fatal to the
// current batch execution.
func DataAccessError(code ErrorCode, operation string, err error) *ReconError {
	result := Wrap(err, CategoryDataAccess, code, fmt.Sprintf("store %s failed", operation))
	if result == nil {
		result = New(CategoryDataAccess, code, fmt.Sprintf("store %s failed", operation))
	}
	return result.WithContext("operation", operation)
}

// InvariantError reports a matching invariant violation. These indicate a
// defect and fail the batch instead of emitting incorrect counters.
func InvariantError(code ErrorCode, detail string) *ReconError {
	return New(CategoryInvariant, code,
		fmt.Sprintf("matching invariant violated: %s", detail))
}

// NotFoundError reports an unknown batch identifier. Callers must be able to
// distinguish this from a failed batch.
func NotFoundError(batchID string) *ReconError {
	return New(CategoryNotFound, CodeBatchNotFound,
		fmt.Sprintf("batch not found: %s", batchID)).
		WithContext("batch_id", batchID)
}

// ExecutionError reports a rejected execute call (duplicate trigger or
// terminal batch).
func ExecutionError(code ErrorCode, batchID string, detail string) *ReconError {
	return New(CategoryExecution, code,
		fmt.Sprintf("cannot execute batch %s: %s", batchID, detail)).
		WithContext("batch_id", batchID)
}

// ValidationError creates a record or request validation error
func ValidationError(code ErrorCode, field string, err error) *ReconError {
	msg := fmt.Sprintf("validation failed for '%s'", field)
	result := Wrap(err, CategoryValidation, code, msg)
	if result == nil {
		result = New(CategoryValidation, code, msg)
	}
	return result.WithContext("field", field)
}

// Utility functions

// IsCategory reports whether err carries the given category anywhere in its chain.
func IsCategory(err error, category ErrorCategory) bool {
	re, ok := AsReconError(err)
	return ok && re.Category == category
}

// IsNotFound reports whether err is a not-found outcome.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// AsReconError extracts a ReconError from an error chain
func AsReconError(err error) (*ReconError, bool) {
	var re *ReconError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
