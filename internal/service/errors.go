package service

import (
	"errors"
	"fmt"
)

// Error kinds returned by the services. Callers match them with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrConcurrencyConflict = errors.New("concurrent update in progress")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid order state transition")
	ErrPersistence         = errors.New("persistence failure")
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func isInsufficient(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
