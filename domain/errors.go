package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across layers.
type ErrorCode string

const (
	ErrCodeStorage      ErrorCode = "STORAGE"
	ErrCodeTransient    ErrorCode = "TRANSIENT"
	ErrCodePermanent    ErrorCode = "PERMANENT"
	ErrCodeResync       ErrorCode = "RESYNC"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches domain errors by code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrRecordNotFound   = NewError(ErrCodeNotFound, "record not found")
	ErrSessionNotFound  = NewError(ErrCodeNotFound, "session not found")
	ErrUnauthorized     = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidPayload   = NewError(ErrCodeInvalid, "invalid payload")
	ErrRevisionMismatch = NewError(ErrCodeConflict, "revision mismatch")
	ErrStoreClosed      = NewError(ErrCodeStorage, "local store is closed")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// StorageError classifies a local persistence failure.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err, ErrCodeStorage) {
		return err
	}
	return WrapError(ErrCodeStorage, "local store: "+op, err)
}

// TransientError classifies a retryable remote failure.
func TransientError(message string, err error) error {
	return WrapError(ErrCodeTransient, message, err)
}

// PermanentError classifies a non-retryable remote failure.
func PermanentError(message string, err error) error {
	return WrapError(ErrCodePermanent, message, err)
}
