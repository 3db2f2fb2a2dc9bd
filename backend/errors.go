package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes reported by the auth service.
const (
	CodeInvalidCredentials   = "invalid_credentials"
	CodeEmailNotConfirmed    = "email_not_confirmed"
	CodeUserAlreadyExists    = "user_already_exists"
	CodeSessionNotFound      = "session_not_found"
	CodeRefreshTokenNotFound = "refresh_token_not_found"
	CodeValidationFailed     = "validation_failed"
	CodeUnexpectedFailure    = "unexpected_failure"
)

// Messages the service uses for its well known failures.
const (
	MessageInvalidCredentials = "Invalid login credentials"
	MessageEmailNotConfirmed  = "Email not confirmed"
)

// AuthError is a failure reported by the auth service.
type AuthError struct {
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// NewAuthError builds an AuthError.
func NewAuthError(status int, code, message string) *AuthError {
	return &AuthError{Status: status, Code: code, Message: message}
}

// ErrInvalidCredentials returns the error for a wrong email or password.
func ErrInvalidCredentials() *AuthError {
	return NewAuthError(http.StatusBadRequest, CodeInvalidCredentials, MessageInvalidCredentials)
}

// ErrEmailNotConfirmed returns the error for a user who has not confirmed their email.
func ErrEmailNotConfirmed() *AuthError {
	return NewAuthError(http.StatusBadRequest, CodeEmailNotConfirmed, MessageEmailNotConfirmed)
}

// AsAuthError extracts an *AuthError from err's chain.
func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// IsEmailNotConfirmed reports whether err says the user's email is unconfirmed.
// Older services only send the message, so both are checked.
func IsEmailNotConfirmed(err error) bool {
	authErr, ok := AsAuthError(err)
	if !ok {
		return false
	}
	return authErr.Code == CodeEmailNotConfirmed || authErr.Message == MessageEmailNotConfirmed
}

// Message returns the user presentable text of a backend failure.
func Message(err error) string {
	if authErr, ok := AsAuthError(err); ok {
		return authErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
