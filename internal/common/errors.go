// Package common defines the error taxonomy and small helpers shared by the
// vault core. Callers should use errors.Is to match the sentinel values and
// errors.As to extract details from the typed errors.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Input errors. Nothing is mutated when these are returned.
	ErrValidation = errors.New("validation error")

	// Authentication and session lifecycle.
	ErrAuthentication = errors.New("invalid credentials")
	ErrAccountLocked  = errors.New("account locked")
	ErrSessionExpired = errors.New("session expired")

	// Access to stored secrets.
	ErrOwnership        = errors.New("access denied")
	ErrDecryption       = errors.New("cannot decrypt")
	ErrPermissionDenied = errors.New("permission denied")
	ErrRateLimited      = errors.New("too many requests")

	// Backend failures surfaced opaquely.
	ErrStorage = errors.New("storage unavailable")
)

// ValidationError describes malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError is a shorthand for &ValidationError{...}.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AccountLockedError is returned while an account lockout is active.
type AccountLockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

func (e *AccountLockedError) Is(target error) bool { return target == ErrAccountLocked }

// RateLimitError is returned when a caller exceeded an attempt ceiling.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// StorageError wraps an unexpected backend failure. The message shown to
// users is generic; Unwrap keeps the cause for logs.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrStorage)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError unless it is nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
