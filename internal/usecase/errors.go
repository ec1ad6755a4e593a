package usecase

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so transports can pick a status code.
type ErrorKind string

const (
	KindBadRequest      ErrorKind = "bad_request"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindForbidden       ErrorKind = "forbidden"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindTooManyRequests ErrorKind = "too_many_requests"
	KindInternal        ErrorKind = "internal"
)

// Error is returned by services for every failure a client may see. Message is safe to
// expose; Err carries the cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind and, when set on the target, by message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func badRequest(message string) *Error { return newError(KindBadRequest, message, nil) }

func notFound(message string) *Error { return newError(KindNotFound, message, nil) }

func conflict(message string) *Error { return newError(KindConflict, message, nil) }

func internal(message string, cause error) *Error {
	return newError(KindInternal, message, cause)
}

// KindOf reports the kind of err, treating anything that is not an *Error as internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrInvalidCredentials  = &Error{Kind: KindUnauthorized, Message: "invalid email or password"}
	ErrInvalidRefreshToken = &Error{Kind: KindUnauthorized, Message: "invalid or expired refresh token"}
	ErrEmailRegistered     = &Error{Kind: KindConflict, Message: "email already registered"}
	ErrAccountNotFound     = &Error{Kind: KindNotFound, Message: "account not found"}
	ErrAlreadyVerified     = &Error{Kind: KindBadRequest, Message: "account already verified"}
	ErrInvalidOTP          = &Error{Kind: KindBadRequest, Message: "invalid OTP code"}
	ErrExpiredOTP          = &Error{Kind: KindBadRequest, Message: "OTP code has expired"}
	ErrFederatedAccount    = &Error{Kind: KindBadRequest, Message: "this account signs in with Google and has no password to reset"}
	ErrProviderCollision   = &Error{Kind: KindConflict, Message: "email already registered with a different sign-in method"}
	ErrFederatedAuthFailed = &Error{Kind: KindUnauthorized, Message: "google authentication failed"}
	ErrFederationDisabled  = &Error{Kind: KindNotFound, Message: "google sign-in is not enabled"}
	ErrInsufficientRole    = &Error{Kind: KindForbidden, Message: "insufficient permissions"}
)
