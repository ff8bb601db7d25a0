package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches every *ValidationError
	ErrValidation = errors.New("context validation failed")
	// ErrNotFound matches every *NotFoundError
	ErrNotFound = errors.New("context entry not found")

	ErrInvalidContextType = errors.New("invalid context type")
	ErrEmptySubject       = errors.New("subject id is required")
	ErrEmptyKey           = errors.New("cache key is required")
)

// ValidationError is returned when a payload fails post-sanitization validation.
// The entry is never stored.
type ValidationError struct {
	Key    string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("context entry %q failed validation: %s", e.Key, strings.Join(e.Issues, "; "))
}

// Is lets errors.Is(err, ErrValidation) match
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError is returned by Update when the key does not exist
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("context entry %q not found", e.Key)
}

// Is lets errors.Is(err, ErrNotFound) match
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
