package sessions

import (
	"time"

	"github.com/jrsteele09/campus-auth/users"
)

// Session is the backend issued proof of authentication bound to a user.
// A session held by the Store always carries a non-nil User.
type Session struct {
	AccessToken  string      `json:"access_token"`            // Opaque bearer token issued by the backend
	RefreshToken string      `json:"refresh_token,omitempty"` // Used to renew an expired access token
	TokenType    string      `json:"token_type,omitempty"`    // Normally "bearer"
	ExpiresAt    time.Time   `json:"expires_at"`              // When the access token expires
	User         *users.User `json:"user"`                    // Identity the session is bound to
}

// UserID returns the bound user's id, or "" for a nil session or identity.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// Valid reports whether the session carries both a token and an identity.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.User != nil && s.User.ID != ""
}

// Expired reports whether the access token has expired at now.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Equal reports whether two sessions are the same observable session:
// same access token bound to an identical user.
func (s *Session) Equal(other *Session) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	if s.AccessToken != other.AccessToken {
		return false
	}
	if s.User == nil || other.User == nil {
		return s.User == nil && other.User == nil
	}
	return *s.User == *other.User
}

// Clone returns a copy that shares nothing with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	return &c
}
