package polar

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies a sync failure. The classification drives retry and
// escalation policy, so every failure crossing the sync boundary carries one.
type ErrorType string

const (
	ErrTokenExpired    ErrorType = "TOKEN_EXPIRED"
	ErrTokenInvalid    ErrorType = "TOKEN_INVALID"
	ErrTokenRevoked    ErrorType = "TOKEN_REVOKED"
	ErrRateLimited15m  ErrorType = "RATE_LIMITED_15M"
	ErrRateLimited24h  ErrorType = "RATE_LIMITED_24H"
	ErrAPIUnavailable  ErrorType = "API_UNAVAILABLE"
	ErrAPITimeout      ErrorType = "API_TIMEOUT"
	ErrAPIError        ErrorType = "API_ERROR"
	ErrInvalidResponse ErrorType = "INVALID_RESPONSE"
	ErrTransform       ErrorType = "TRANSFORM_ERROR"
	ErrDatabase        ErrorType = "DATABASE_ERROR"
	ErrInternal        ErrorType = "INTERNAL_ERROR"
)

// Error is a classified upstream or sync failure
type Error struct {
	Type       ErrorType
	Message    string
	RetryAfter time.Duration // nonzero only for rate limit denials
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a classified error
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// WrapError classifies an underlying error
func WrapError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// Classify extracts the classification from any error, mapping unclassified
// errors to INTERNAL_ERROR
func Classify(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Type: ErrInternal, Message: err.Error(), Cause: err}
}

// IsAuthError reports whether the error is a token problem requiring
// re-authentication rather than a retry
func IsAuthError(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Type {
	case ErrTokenExpired, ErrTokenInvalid, ErrTokenRevoked:
		return true
	}
	return false
}

// IsRateLimited reports whether the error is a rate limit denial,
// retried automatically on the next scheduled pass
func IsRateLimited(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Type == ErrRateLimited15m || pe.Type == ErrRateLimited24h
}

// IsTransient reports whether the error is an upstream availability problem
// eligible for retry on the next cycle
func IsTransient(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Type == ErrAPIUnavailable || pe.Type == ErrAPITimeout
}

// Guidance returns an actionable message for a classified error,
// suitable for surfacing to the triggering caller
func Guidance(t ErrorType) string {
	switch t {
	case ErrTokenExpired:
		return "access token expired, re-authenticate to resume syncing"
	case ErrTokenInvalid:
		return "access token rejected, re-authenticate to resume syncing"
	case ErrTokenRevoked:
		return "access revoked for this data type, re-grant consent to resume"
	case ErrRateLimited15m:
		return "short-window rate limit reached, retried automatically next cycle"
	case ErrRateLimited24h:
		return "daily rate limit reached, retried automatically after the window resets"
	case ErrAPIUnavailable:
		return "upstream service unavailable, retried automatically next cycle"
	case ErrAPITimeout:
		return "upstream request timed out, retried automatically next cycle"
	case ErrInvalidResponse, ErrTransform:
		return "upstream response could not be processed, needs investigation"
	case ErrDatabase:
		return "local storage failure, needs investigation"
	default:
		return "unexpected error, needs investigation"
	}
}
