// Package exitcode defines exit codes for the CLI.
package exitcode

import (
	"errors"

	"gtodo/internal/service"
)

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, rejected text, unknown
	// or already completed item).
	UserError = 1

	// AuthError indicates an auth/config error.
	AuthError = 2

	// BackendError indicates a transport, protocol or server error.
	BackendError = 3
)

// For maps a service error to an exit code.
func For(err error) int {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrAlreadyCompleted):
		return UserError
	case errors.Is(err, service.ErrAuth):
		return AuthError
	default:
		return BackendError
	}
}
