package auth

import (
	"context"
	"errors"
	"net"

	"github.com/jrsteele09/campus-auth/backend"
)

// Kinds of failure a login attempt is converted into before reaching the caller.
var (
	ErrCredentials       = errors.New("invalid credentials")
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	ErrAuthorization     = errors.New("admin privileges required")
	ErrProfileLookup     = errors.New("profile lookup failed")
	ErrNetwork           = errors.New("auth backend unreachable")
	ErrValidation        = errors.New("invalid input")
	ErrLocalState        = errors.New("local session not cleared")
)

// kindError pairs a failure kind with its cause and a user presentable message.
type kindError struct {
	kind    error
	message string
	cause   error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return e.kind.Error() + ": " + e.cause.Error()
	}
	return e.kind.Error() + ": " + e.message
}

// Is matches the failure kind.
func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}

func newKindError(kind error, message string, cause error) error {
	return &kindError{kind: kind, message: message, cause: cause}
}

// classify converts a backend failure into one of the kinds above.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if backend.IsEmailNotConfirmed(err) {
		return newKindError(ErrEmailNotConfirmed, backend.MessageEmailNotConfirmed, err)
	}
	if authErr, ok := backend.AsAuthError(err); ok {
		if authErr.Status >= 500 {
			return newKindError(ErrNetwork, authErr.Message, err)
		}
		return newKindError(ErrCredentials, authErr.Message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newKindError(ErrNetwork, "The authentication service could not be reached", err)
	}
	return newKindError(ErrNetwork, "An error occurred", err)
}

// UserMessage returns the text to show for an error produced by this package.
func UserMessage(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.message
	}
	if err == nil {
		return ""
	}
	return "An error occurred"
}
