// Package apperror defines the structured failures returned by the key service.
// Every failure carries a Kind and a human message; transports map the Kind to
// a status code and never treat a failure as fatal.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the class of a failure.
type Kind string

const (
	KindUnknownReseller     Kind = "unknown_reseller"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindInvalidToken        Kind = "invalid_token"
	KindUsernameTaken       Kind = "username_taken"
	KindInvalidKey          Kind = "invalid_key"
	KindKeyExpired          Kind = "key_expired"
	KindKeyInUse            Kind = "key_in_use"
	KindKeyValueTaken       Kind = "key_value_taken"
	KindInvalidCredentials  Kind = "invalid_credentials"
	KindValidation          Kind = "validation_error"
	KindStorageFailure      Kind = "storage_failure"
)

// Error is a failure with a kind and a message safe to show to callers.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports a match when target is an *Error of the same kind, so the
// package sentinels can be used with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrUnknownReseller     = New(KindUnknownReseller, "reseller not found")
	ErrInsufficientCredits = New(KindInsufficientCredits, "Insufficient credits")
	ErrInvalidToken        = New(KindInvalidToken, "Invalid referral token")
	ErrUsernameTaken       = New(KindUsernameTaken, "Username already exists")
	ErrInvalidKey          = New(KindInvalidKey, "Invalid key")
	ErrKeyExpired          = New(KindKeyExpired, "Key expired")
	ErrKeyInUse            = New(KindKeyInUse, "Key already in use")
	ErrKeyValueTaken       = New(KindKeyValueTaken, "Key value already exists for this game")
	ErrInvalidCredentials  = New(KindInvalidCredentials, "Invalid username or password")
	ErrValidation          = New(KindValidation, "invalid request")
	ErrStorageFailure      = New(KindStorageFailure, "storage failure")
)

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation creates a validation error with a specific message.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Storage wraps a store fault. Nil in, nil out.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Kind: KindStorageFailure, Message: op + " failed", cause: err}
}

// From extracts the *Error from err. Anything that is not an *Error is
// reported as a storage failure, the only kind of fault not raised by
// business rules.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindStorageFailure, Message: "internal failure", cause: err}
}

// HTTPStatus maps a kind to the status code used by the HTTP transport.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInvalidToken, KindInsufficientCredits:
		return http.StatusBadRequest
	case KindUnknownReseller, KindInvalidKey:
		return http.StatusNotFound
	case KindUsernameTaken, KindKeyValueTaken:
		return http.StatusConflict
	case KindKeyExpired, KindKeyInUse:
		return http.StatusForbidden
	case KindInvalidCredentials:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
