// Package backendfake is a scriptable AuthBackend for tests.
package backendfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/campus-auth/backend"
	"github.com/jrsteele09/campus-auth/sessions"
	"github.com/jrsteele09/campus-auth/users"
)

var _ backend.AuthBackend = (*FakeBackend)(nil)

// FakeBackend records every call and answers from its exported fields.
// Nil funcs fall back to an invalid credentials failure.
type FakeBackend struct {
	SignInFunc  func(ctx context.Context, email, password string) (*backend.SignInResult, error)
	SignUpFunc  func(ctx context.Context, email, password string, metadata users.Metadata) (*users.User, error)
	SignOutErr  error
	ResendErr   error
	Session     *sessions.Session // Returned by GetCurrentSession
	SessionErr  error
	BootstrapCh chan struct{} // When set, GetCurrentSession waits for it to be closed

	mu        sync.Mutex
	calls     []string
	resends   []string
	listeners *backend.Listeners
}

// NewFakeBackend returns a fake with no session.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{listeners: backend.NewListeners()}
}

func (f *FakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

// Calls returns the names of the methods invoked so far, in order.
func (f *FakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Resends returns the addresses a confirmation was resent to.
func (f *FakeBackend) Resends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resends...)
}

// Listeners returns the number of active subscriptions.
func (f *FakeBackend) Listeners() int {
	return f.listeners.Len()
}

// Emit delivers a change to every listener on the calling goroutine.
func (f *FakeBackend) Emit(event backend.ChangeEvent, session *sessions.Session) {
	f.listeners.Notify(event, session)
}

func (f *FakeBackend) SignInWithPassword(ctx context.Context, email, password string) (*backend.SignInResult, error) {
	f.record("SignInWithPassword")
	if f.SignInFunc == nil {
		return nil, backend.ErrInvalidCredentials()
	}
	return f.SignInFunc(ctx, email, password)
}

func (f *FakeBackend) SignUp(ctx context.Context, email, password string, metadata users.Metadata) (*users.User, error) {
	f.record("SignUp")
	if f.SignUpFunc == nil {
		return nil, backend.ErrInvalidCredentials()
	}
	return f.SignUpFunc(ctx, email, password, metadata)
}

func (f *FakeBackend) SignOut(_ context.Context, _ backend.SignOutScope) error {
	f.record("SignOut")
	return f.SignOutErr
}

func (f *FakeBackend) ResendConfirmation(_ context.Context, email string) error {
	f.record("ResendConfirmation")
	f.mu.Lock()
	f.resends = append(f.resends, email)
	f.mu.Unlock()
	return f.ResendErr
}

func (f *FakeBackend) GetCurrentSession(ctx context.Context) (*sessions.Session, error) {
	f.record("GetCurrentSession")
	if f.BootstrapCh != nil {
		select {
		case <-f.BootstrapCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Session.Clone(), f.SessionErr
}

func (f *FakeBackend) OnSessionChange(listener backend.ChangeListener) backend.Subscription {
	f.record("OnSessionChange")
	return f.listeners.Add(listener)
}

// SetSession replaces the session GetCurrentSession returns.
func (f *FakeBackend) SetSession(session *sessions.Session, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Session = session
	f.SessionErr = err
}
