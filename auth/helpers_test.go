package auth_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/campus-auth/artifacts"
	"github.com/jrsteele09/campus-auth/auth"
	"github.com/jrsteele09/campus-auth/sessions"
	"github.com/jrsteele09/campus-auth/users"
)

const (
	testAdminEmail   = "admin@aimsr.edu.in"
	testAdminPass    = "123456"
	testStudentEmail = "student@aimsr.edu.in"
	testStudentPass  = "student-pass"
	waitTimeout      = 2 * time.Second
)

func newTestSession(userID, email, token string) *sessions.Session {
	return &sessions.Session{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         &users.User{ID: userID, Email: email, EmailConfirmed: true},
	}
}

// recordingMetrics counts everything reported to it.
type recordingMetrics struct {
	lock           sync.Mutex
	outcomes       map[string]int
	applies        map[string]int
	lookupFailures int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: make(map[string]int), applies: make(map[string]int)}
}

func (m *recordingMetrics) RecordLoginOutcome(state string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.outcomes[state]++
}

func (m *recordingMetrics) RecordSessionApply(source string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.applies[source]++
}

func (m *recordingMetrics) RecordRoleLookupFailure() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.lookupFailures++
}

func (m *recordingMetrics) applyCount(source string) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.applies[source]
}

func (m *recordingMetrics) outcomeCount(state auth.LoginState) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.outcomes[string(state)]
}

func (m *recordingMetrics) failures() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.lookupFailures
}

// recordingNavigator keeps every destination navigated to.
type recordingNavigator struct {
	lock         sync.Mutex
	destinations []auth.Destination
}

func (n *recordingNavigator) Navigate(_ context.Context, destination auth.Destination) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.destinations = append(n.destinations, destination)
	return nil
}

func (n *recordingNavigator) visited() []auth.Destination {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]auth.Destination(nil), n.destinations...)
}

func waitCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), waitTimeout)
}

// brokenStore is a memory store whose Keys or Remove can be made to fail.
type brokenStore struct {
	*artifacts.MemoryStore
	keysErr   error
	removeErr error
}

var errStorageUnavailable = errors.New("storage unavailable")

func (b *brokenStore) Keys(ctx context.Context) ([]string, error) {
	if b.keysErr != nil {
		return nil, b.keysErr
	}
	return b.MemoryStore.Keys(ctx)
}

func (b *brokenStore) Remove(ctx context.Context, key string) error {
	if b.removeErr != nil {
		return b.removeErr
	}
	return b.MemoryStore.Remove(ctx, key)
}
