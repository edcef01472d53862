package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the chain.
// If err is nil, Wrap returns nil. If err is already a structured Error,
// its code and category are preserved. Context errors map to collaborator
// timeout/cancellation codes.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var fkErr *Error
	if errors.As(err, &fkErr) {
		wrapped := &Error{
			code:     fkErr.code,
			category: fkErr.category,
			message:  message,
			cause:    err,
			nodeID:   fkErr.nodeID,
			metadata: fkErr.Metadata(),
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeCollaboratorTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var fkErr *Error
	if errors.As(err, &fkErr) {
		return fkErr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var fkErr *Error
	if errors.As(err, &fkErr) {
		return fkErr.category == category
	}
	return false
}

// IsValidation checks if the error is a validation rejection.
func IsValidation(err error) bool {
	return IsCategory(err, CategoryValidation)
}

// IsStaleness checks if the error is a staleness rejection.
func IsStaleness(err error) bool {
	return IsCategory(err, CategoryStaleness)
}

// IsCollaborator checks if the error came from an external collaborator.
func IsCollaborator(err error) bool {
	return IsCategory(err, CategoryCollaborator)
}

// IsConfig checks if the error is a fatal configuration error.
func IsConfig(err error) bool {
	return IsCategory(err, CategoryConfig)
}

// Code extracts the error code from an error, if available.
// Returns empty string if err is not a structured Error.
func Code(err error) ErrorCode {
	var fkErr *Error
	if errors.As(err, &fkErr) {
		return fkErr.code
	}
	return ""
}

// Category extracts the error category from an error, if available.
func Category(err error) ErrorCategory {
	var fkErr *Error
	if errors.As(err, &fkErr) {
		return fkErr.category
	}
	return ""
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}
