package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// --- Constructors ---

// InvalidArgument creates an error for a rejected argument.
func InvalidArgument(field, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]any{"field": field},
	}
}

// InvalidFactor creates an error for a non-positive concurrency factor.
func InvalidFactor(factor int) *AppError {
	return InvalidArgument("factor", "must be strictly positive").WithDetail("value", factor)
}

// Interrupted creates an error for a blocking wait that was cancelled.
// The context error is kept as the cause.
func Interrupted(cause error) *AppError {
	return &AppError{Code: ErrCodeInterrupted, Message: "interrupted while waiting", Cause: cause}
}

// ItemFailed creates an error for the item at index whose computation returned cause.
func ItemFailed(index int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeItemFailed, Message: fmt.Sprintf("item %d failed", index),
		Details: map[string]any{"index": index}, Cause: cause,
	}
}

// Panicked creates an error for the item at index whose computation panicked.
func Panicked(index int, value any) *AppError {
	return &AppError{
		Code: ErrCodePanic, Message: fmt.Sprintf("item %d panicked: %v", index, value),
		Details: map[string]any{"index": index, "panic": value},
	}
}

// SourceFailed creates an error for a source that failed while producing the item at index.
func SourceFailed(index int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSourceFailed, Message: fmt.Sprintf("source failed at item %d", index),
		Details: map[string]any{"index": index}, Cause: cause,
	}
}

// ExecutorShutdown creates an error for a submission rejected by a stopped executor.
func ExecutorShutdown(cause error) *AppError {
	return &AppError{Code: ErrCodeExecutorShutdown, Message: "executor is shut down", Cause: cause}
}

// Internal creates an error for an unexpected internal failure.
func Internal(cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: "unexpected internal error", Cause: cause}
}

// --- Inspection ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsInterrupted reports whether err is an interruption.
func IsInterrupted(err error) bool {
	return IsCode(err, ErrCodeInterrupted)
}

// ItemIndex returns the source position of a positional error.
func ItemIndex(err error) (int, bool) {
	appErr, ok := AsAppError(err)
	if !ok || !IsPositionalCode(appErr.Code) {
		return 0, false
	}
	idx, ok := appErr.Details["index"].(int)
	return idx, ok
}
