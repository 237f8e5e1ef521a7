package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Configuration errors, raised synchronously at call time.
const (
	// ErrCodeInvalidArgument indicates a precondition violation such as a non-positive factor.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Per-item errors, raised at the position of the failing item.
const (
	// ErrCodeItemFailed indicates the mapping or predicate returned an error.
	ErrCodeItemFailed ErrorCode = "ITEM_FAILED"
	// ErrCodePanic indicates the mapping or predicate panicked.
	ErrCodePanic ErrorCode = "PANIC"
	// ErrCodeSourceFailed indicates the source iterator returned an error.
	ErrCodeSourceFailed ErrorCode = "SOURCE_FAILED"
)

// Lifecycle errors
const (
	// ErrCodeInterrupted indicates a blocking wait was cancelled.
	ErrCodeInterrupted ErrorCode = "INTERRUPTED"
	// ErrCodeExecutorShutdown indicates work was submitted to an executor that no longer accepts it.
	ErrCodeExecutorShutdown ErrorCode = "EXECUTOR_SHUTDOWN"
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// positional codes carry an "index" detail.
var positionalCodes = map[ErrorCode]bool{
	ErrCodeItemFailed:   true,
	ErrCodePanic:        true,
	ErrCodeSourceFailed: true,
}

// IsPositionalCode returns true if errors with this code are tied to a source position.
func IsPositionalCode(code ErrorCode) bool {
	return positionalCodes[code]
}
