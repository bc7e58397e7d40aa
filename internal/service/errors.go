package service

import (
	"errors"
	"fmt"

	"github.com/tablefront/pos/internal/store"
)

// Error kinds returned by the engines. Callers classify with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrConstraint        = errors.New("constraint violation")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrCollaborator      = errors.New("collaborator error")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func constraintf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConstraint, fmt.Sprintf(format, args...))
}

func transitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// persistErr classifies a repository failure. Only uniqueness and reference
// conflicts are surfaced as constraint violations; everything else is the
// backing store failing.
func persistErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %s: %w", ErrConstraint, op, err)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrCollaborator, op, err)
	}
}
