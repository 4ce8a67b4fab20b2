// Package common defines shared constants and sentinel errors used across
// the account service. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Request validation errors.
	ErrMissingInput  = errors.New("missing input")
	ErrInvalidFormat = errors.New("validation error")

	// Authentication errors.
	ErrUnauthorized    = errors.New("unauthorized")
	ErrLoginFailed     = errors.New("incorrect e-mail or password")
	ErrAccountInactive = errors.New("account inactive")
	ErrInvalidPassword = errors.New("incorrect password")
	ErrInvalidCode     = errors.New("invalid verification code")
	ErrInvalid2FA      = errors.New("invalid 2fa code")

	// State conflicts.
	ErrConflict         = errors.New("already exists")
	ErrAlreadySatisfied = errors.New("nothing changed")
)

// FieldError attaches the offending request field to a validation sentinel,
// so transport layers can report which field was missing or malformed while
// errors.Is still matches the underlying sentinel.
type FieldError struct {
	Err   error
	Field string
}

func (e *FieldError) Error() string { return fmt.Sprintf("%v: %s", e.Err, e.Field) }

func (e *FieldError) Unwrap() error { return e.Err }

// MissingField reports an absent required request field.
func MissingField(field string) error {
	return &FieldError{Err: ErrMissingInput, Field: field}
}

// InvalidField reports a malformed request field.
func InvalidField(field string) error {
	return &FieldError{Err: ErrInvalidFormat, Field: field}
}
