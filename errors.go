package lmsauth

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the stable classification of an [AuthError].
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindUserNotFound       ErrorKind = "user_not_found"
	KindUserAlreadyExists  ErrorKind = "user_already_exists"
	KindUserNotActive      ErrorKind = "user_not_active"
	KindTokenExpired       ErrorKind = "token_expired"
	KindInvalidToken       ErrorKind = "invalid_token"
	KindPasswordPolicy     ErrorKind = "password_policy"
	KindRateLimited        ErrorKind = "rate_limited"
	KindInternal           ErrorKind = "internal_error"
)

// AuthError is the typed failure returned by every Engine and FederationEngine
// operation. Message and Status are stable per Kind unless noted; Details
// carries structured context such as the current user status or the list of
// password policy violations.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Status  int
	Details map[string]any

	cause error
}

func (e *AuthError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any. Causes are never rendered to
// clients.
func (e *AuthError) Unwrap() error {
	return e.cause
}

// Is matches any AuthError of the same kind, so errors.Is(err, ErrTokenExpired)
// holds for every expired-token failure regardless of message or details.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrInvalidCredentials is returned for both an unknown email and a wrong
	// password; the two cases are indistinguishable.
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials, Message: "Invalid email or password", Status: http.StatusUnauthorized}
	ErrUserNotFound       = &AuthError{Kind: KindUserNotFound, Message: "User not found", Status: http.StatusNotFound}
	ErrUserAlreadyExists  = &AuthError{Kind: KindUserAlreadyExists, Message: "User already exists", Status: http.StatusConflict}
	ErrUserNotActive      = &AuthError{Kind: KindUserNotActive, Message: "User account is not active", Status: http.StatusForbidden}
	ErrTokenExpired       = &AuthError{Kind: KindTokenExpired, Message: "Token has expired", Status: http.StatusUnauthorized}
	ErrInvalidToken       = &AuthError{Kind: KindInvalidToken, Message: "Invalid token", Status: http.StatusUnauthorized}
	ErrPasswordPolicy     = &AuthError{Kind: KindPasswordPolicy, Message: "Password does not meet requirements", Status: http.StatusBadRequest}
	ErrRateLimited        = &AuthError{Kind: KindRateLimited, Message: "Too many requests", Status: http.StatusTooManyRequests}
	ErrInternal           = &AuthError{Kind: KindInternal, Message: "Internal server error", Status: http.StatusInternalServerError}
)

func userNotActiveError(status UserStatus) *AuthError {
	return &AuthError{
		Kind:    KindUserNotActive,
		Message: fmt.Sprintf("User account is %s", status),
		Status:  http.StatusForbidden,
		Details: map[string]any{"status": string(status)},
	}
}

func passwordPolicyError(violations []string) *AuthError {
	return &AuthError{
		Kind:    KindPasswordPolicy,
		Message: ErrPasswordPolicy.Message,
		Status:  http.StatusBadRequest,
		Details: map[string]any{"validation_errors": violations},
	}
}

func userExistsError(field string) *AuthError {
	msg := "User with this email already exists"
	if field == "username" {
		msg = "Username already taken"
	}
	return &AuthError{
		Kind:    KindUserAlreadyExists,
		Message: msg,
		Status:  http.StatusConflict,
		Details: map[string]any{"field": field},
	}
}

func invalidRequestError(field string) *AuthError {
	return &AuthError{
		Kind:    KindPasswordPolicy,
		Message: "Invalid request",
		Status:  http.StatusBadRequest,
		Details: map[string]any{"validation_errors": []string{field + " is invalid"}},
	}
}

// withCause copies a sentinel and attaches cause for logging and errors.As.
func withCause(base *AuthError, cause error) *AuthError {
	out := *base
	out.cause = cause
	return &out
}

// AsAuthError extracts the AuthError from err. Any other non-nil error is
// reported as KindInternal.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return withCause(ErrInternal, err)
}
