// Package backend defines the contract of the remote authentication service the
// core talks to, together with the pieces shared by its implementations.
package backend

import (
	"context"

	"github.com/jrsteele09/campus-auth/sessions"
	"github.com/jrsteele09/campus-auth/users"
)

// ChangeEvent names the kind of session change a listener is told about.
type ChangeEvent string

const (
	EventInitialSession ChangeEvent = "INITIAL_SESSION"
	EventSignedIn       ChangeEvent = "SIGNED_IN"
	EventSignedOut      ChangeEvent = "SIGNED_OUT"
	EventTokenRefreshed ChangeEvent = "TOKEN_REFRESHED"
	EventUserUpdated    ChangeEvent = "USER_UPDATED"
)

// SignOutScope selects which sessions a sign out terminates.
type SignOutScope string

const (
	ScopeLocal  SignOutScope = "local"  // Only this client's session
	ScopeGlobal SignOutScope = "global" // Every session of the user
	ScopeOthers SignOutScope = "others" // Every session except this one
)

// ChangeListener receives the event and the new session, nil when signed out.
type ChangeListener func(event ChangeEvent, session *sessions.Session)

// Subscription is a standing listener registration.
type Subscription interface {
	Unsubscribe()
}

// SignInResult is returned by a successful credential exchange.
type SignInResult struct {
	Session *sessions.Session
	User    *users.User
}

// AuthBackend is the remote authentication service.
type AuthBackend interface {
	// SignInWithPassword exchanges credentials for a session.
	// Failures are returned as *AuthError.
	SignInWithPassword(ctx context.Context, email, password string) (*SignInResult, error)

	// SignUp registers a new, unconfirmed user.
	SignUp(ctx context.Context, email, password string, metadata users.Metadata) (*users.User, error)

	// SignOut ends sessions in the given scope and forgets the local one.
	SignOut(ctx context.Context, scope SignOutScope) error

	// ResendConfirmation sends the sign up confirmation email again.
	ResendConfirmation(ctx context.Context, email string) error

	// GetCurrentSession returns the persisted session, or nil when there is none.
	GetCurrentSession(ctx context.Context) (*sessions.Session, error)

	// OnSessionChange registers a listener for future session changes.
	OnSessionChange(listener ChangeListener) Subscription
}
