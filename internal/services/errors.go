package services

import (
	"database/sql"
	"errors"
	"fmt"
)

// Error taxonomy shared by every service. Handlers map these to HTTP
// statuses; anything else is treated as a storage failure.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// notFoundOr translates sql.ErrNoRows into ErrNotFound for what and wraps
// any other error.
func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// PublicMessage returns the part of err that is safe to show to a client.
// Only taxonomy errors carry a message; everything else is opaque.
func PublicMessage(err error) (string, bool) {
	for _, sentinel := range []error{ErrValidation, ErrNotFound, ErrForbidden, ErrConflict} {
		if errors.Is(err, sentinel) {
			return err.Error(), true
		}
	}
	return "", false
}
