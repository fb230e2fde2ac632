// Package apperr holds the error taxonomy shared by stores, dispatchers and handlers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a malformed body or a missing required field.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an entity absent at a point lookup or a partial product resolution.
	ErrNotFound = errors.New("not found")
	// ErrConditionFailed marks a conditional write whose existence check failed at write time.
	ErrConditionFailed = errors.New("condition failed")
	// ErrDispatch marks a failed event publish on a path that depends on it.
	ErrDispatch = errors.New("event dispatch failed")
)

// Validation wraps ErrValidation with a human readable reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing entity description.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Dispatch wraps a transport error as ErrDispatch, keeping the cause reachable.
func Dispatch(cause error) error {
	return fmt.Errorf("%w: %w", ErrDispatch, cause)
}
