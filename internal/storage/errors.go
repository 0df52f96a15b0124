package storage

import (
	"errors"
	"fmt"
)

// Domain-level storage error sentinels.
var (
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrValidation       = errors.New("validation failed")
)

// NotFoundError reports a missing record, pattern, template or contact.
type NotFoundError struct {
	Kind string // "draft", "pattern", "template", "contact"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UnavailableError reports a repository I/O failure.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store unavailable (%s)", e.Op)
	}
	return fmt.Sprintf("store unavailable (%s): %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStoreUnavailable) hold.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// ValidationError reports malformed input, such as a missing required field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func notFound(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}
