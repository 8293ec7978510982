package models

import (
	"errors"
	"strings"
)

// Error kinds shared by services and handlers. Handlers map them to HTTP
// status codes with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("too many requests")
)

// Error carries a user-facing message alongside one of the error kinds above.
type Error struct {
	Kind    error
	Message string
	Fields  []string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// NewValidationError reports invalid caller input. Offending fields, when
// given, are appended to the message.
func NewValidationError(message string, fields ...string) *Error {
	if len(fields) > 0 {
		message = message + ": " + strings.Join(fields, ", ")
	}
	return &Error{Kind: ErrValidation, Message: message, Fields: fields}
}

func NewNotFoundError(message string) *Error {
	return &Error{Kind: ErrNotFound, Message: message}
}

func NewUnauthorizedError(message string) *Error {
	return &Error{Kind: ErrUnauthorized, Message: message}
}

func NewForbiddenError(message string) *Error {
	return &Error{Kind: ErrForbidden, Message: message}
}

func NewConflictError(message string) *Error {
	return &Error{Kind: ErrConflict, Message: message}
}

func NewRateLimitedError(message string) *Error {
	return &Error{Kind: ErrRateLimited, Message: message}
}
