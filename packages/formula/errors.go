package formula

import "errors"

// AppErrorCode represents gRPC-style error codes for host-level errors.
// we skip codes that don't make sense for an in-process engine, like
// unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates the caller passed a malformed address or
	// value.
	InvalidArgument AppErrorCode = 3

	// NotFound means a requested sheet or cell was not found.
	NotFound AppErrorCode = 5

	// AlreadyExists means an attempt to create a sheet failed because one
	// already exists.
	AlreadyExists AppErrorCode = 6

	// FailedPrecondition indicates the operation was rejected because the
	// engine is not in a state required for it, e.g. a circular formula.
	FailedPrecondition AppErrorCode = 9

	// Internal errors. some invariant of the engine has been broken.
	Internal AppErrorCode = 13
)

// AppError represents errors at the application level (not formula errors,
// which are values)
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// ErrCircularReference is returned (wrapped) by the dependency graph when a
// formula would close a cycle.
var ErrCircularReference = errors.New("circular reference")
