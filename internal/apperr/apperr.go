// Package apperr defines the error kinds every repository and service returns.
//
// Callers classify failures with errors.Is against these sentinels; the
// concrete error usually wraps one of them together with its cause.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflicting concurrent update")
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrStorage       = errors.New("storage failure")
	ErrInternal      = errors.New("internal error")
)

// Validationf returns an ErrValidation carrying a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Storage wraps err as an ErrStorage, keeping err reachable through errors.Is.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Internal wraps a server-side failure that is not a storage error, such as a
// hashing or signing failure.
func Internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
