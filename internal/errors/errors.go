// Package errors provides the error taxonomy for the beacon application.
//
// This package provides:
// - Stable machine-readable error codes surfaced to API clients
// - Category sentinel errors for errors.Is checks
// - Constructors for each category
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Stable error codes - surfaced in API responses
// ============================================================================

const (
	CodeInvalidBody      = "INVALID_BODY"
	CodeNoURL            = "NO_URL"
	CodeNoMessage        = "NO_MESSAGE"
	CodeNoMessageOrLevel = "NO_MESSAGE_OR_LEVEL"
	CodeNoName           = "NO_NAME"
	CodeNoCredentials    = "NO_CREDENTIALS"
	CodeInvalidValue     = "INVALID_VALUE"
	CodeAppNotFound      = "APP_NOT_FOUND"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeNotFound         = "NOT_FOUND"
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeNotAuthorized    = "NOT_AUTHORIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeStorageError     = "STORAGE_ERROR"
	CodeAppError         = "APP_ERROR"
)

// ============================================================================
// Category sentinels
// ============================================================================

var (
	// ErrValidation marks missing or malformed required fields.
	// Rejected at the boundary before any engine computation runs.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks unknown apps, users or grantees.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks missing or invalid write keys and missing
	// login sessions.
	ErrUnauthorized = errors.New("not authenticated")

	// ErrForbidden marks authenticated callers lacking required
	// permission bits.
	ErrForbidden = errors.New("not authorized")

	// ErrStorageUnavailable marks handle open or query failures.
	// Logged, never retried automatically.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrRateLimited marks requests rejected by a rate gate.
	ErrRateLimited = errors.New("rate limited")
)

// ============================================================================
// Error type
// ============================================================================

// Error is an error with a stable code, a client-facing message and a
// category sentinel. It unwraps to both the category and any wrapped cause,
// so errors.Is works against the sentinels above.
type Error struct {
	Code     string
	Message  string
	category error
	cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the category sentinel and the wrapped cause.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.category, e.cause}
	}
	return []error{e.category}
}

// WithCause attaches an underlying cause to the error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, category: e.category, cause: err}
}

// ============================================================================
// Constructors
// ============================================================================

// Validation creates a validation error with the given code and message.
func Validation(code, message string) *Error {
	return &Error{Code: code, Message: message, category: ErrValidation}
}

// NotFound creates a not-found error with the given code and message.
func NotFound(code, message string) *Error {
	return &Error{Code: code, Message: message, category: ErrNotFound}
}

// Unauthorized creates an authentication error.
func Unauthorized(message string) *Error {
	return &Error{Code: CodeNotAuthenticated, Message: message, category: ErrUnauthorized}
}

// Forbidden creates an authorization error.
func Forbidden(message string) *Error {
	return &Error{Code: CodeNotAuthorized, Message: message, category: ErrForbidden}
}

// StorageUnavailable wraps a storage open or query failure.
func StorageUnavailable(err error) *Error {
	return &Error{
		Code:     CodeStorageError,
		Message:  "Storage is temporarily unavailable, please try again",
		category: ErrStorageUnavailable,
		cause:    err,
	}
}

// RateLimited creates a rate gate rejection.
func RateLimited() *Error {
	return &Error{
		Code:     CodeRateLimited,
		Message:  "Too many requests, slow down",
		category: ErrRateLimited,
	}
}

// ============================================================================
// Category checks
// ============================================================================

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnauthorized reports whether err is an authentication error.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsForbidden reports whether err is an authorization error.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsStorageUnavailable reports whether err is a storage failure.
func IsStorageUnavailable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }

// IsRateLimited reports whether err is a rate gate rejection.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// ============================================================================
// Utilities
// ============================================================================

// CodeOf returns the stable code of an error, or CodeAppError for
// unexpected internal errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeAppError
}

// MessageOf returns the client-facing message of an error. Unexpected
// internal errors yield a generic message; detail stays server-side.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "An error occurred while processing your request"
}

// As is a convenience re-export of errors.As.
func As(err error, target any) bool { return errors.As(err, target) }

// Is is a convenience re-export of errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }
