package errors

import "errors"

// Sentinel errors shared across the campus auth packages.
var (
	// Account errors
	ErrUserNotFound = errors.New("user not found")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidToken    = errors.New("invalid token")

	// Profile errors
	ErrProfileNotFound = errors.New("profile not found")

	// Artifact store errors
	ErrArtifactNotFound = errors.New("artifact not found")
)
