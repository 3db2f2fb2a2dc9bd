package sessions

import (
	"context"
	"sync"

	"github.com/jrsteele09/campus-auth/users"
)

// State is a snapshot of the store as seen by observers.
type State struct {
	Session   *Session
	User      *users.User
	IsAdmin   bool
	IsLoading bool
}

// UserID returns the id of the snapshot's user, or "".
func (st State) UserID() string {
	if st.User == nil {
		return ""
	}
	return st.User.ID
}

// Store holds the process wide authentication session and its derived identity.
//
// Every apply (Set or Clear) bumps a generation counter. Admin flags computed
// asynchronously for an earlier generation are discarded, so the last applied
// session always wins. IsLoading flips to false exactly once.
type Store struct {
	mu          sync.RWMutex
	session     *Session
	isAdmin     bool
	generation  uint64
	loaded      chan struct{}
	loadOnce    sync.Once
	subscribers map[uint64]func(State)
	nextSubID   uint64
}

// NewStore returns an empty store in the loading state.
func NewStore() *Store {
	return &Store{
		loaded:      make(chan struct{}),
		subscribers: make(map[uint64]func(State)),
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Generation returns the number of applies so far.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Set replaces the session and user in one step and returns the apply generation.
// A nil session, or one without an identity, is stored as none.
// Re-applying an equal session leaves observable state untouched.
func (s *Store) Set(session *Session) uint64 {
	if session == nil || session.User == nil {
		return s.Clear()
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.session.Equal(session) {
		s.mu.Unlock()
		return gen
	}
	if s.session.UserID() != session.UserID() {
		// New identity: not an admin until the resolver says so.
		s.isAdmin = false
	}
	s.session = session.Clone()
	state := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return gen
}

// Clear removes the session, user and admin flag.
func (s *Store) Clear() uint64 {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.session == nil && !s.isAdmin {
		s.mu.Unlock()
		return gen
	}
	s.session = nil
	s.isAdmin = false
	state := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return gen
}

// SetAdmin records the admin flag computed for the given apply generation.
// It returns false, changing nothing, when a later apply has superseded it.
func (s *Store) SetAdmin(generation uint64, isAdmin bool) bool {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return false
	}
	if s.session == nil {
		isAdmin = false
	}
	if s.isAdmin == isAdmin {
		s.mu.Unlock()
		return true
	}
	s.isAdmin = isAdmin
	state := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return true
}

// MarkLoaded ends the loading state. Only the first call has any effect;
// it reports whether this call was the one that flipped the latch.
func (s *Store) MarkLoaded() bool {
	flipped := false
	s.loadOnce.Do(func() {
		s.mu.Lock()
		close(s.loaded)
		state := s.snapshotLocked()
		subs := s.subscribersLocked()
		s.mu.Unlock()

		flipped = true
		notify(subs, state)
	})
	return flipped
}

// Loaded returns a channel closed once the first authoritative state is applied.
func (s *Store) Loaded() <-chan struct{} {
	return s.loaded
}

// WaitLoaded blocks until the store has left the loading state or ctx is done.
func (s *Store) WaitLoaded(ctx context.Context) error {
	select {
	case <-s.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForUser blocks until the store holds a session for userID or ctx is done.
func (s *Store) WaitForUser(ctx context.Context, userID string) error {
	seen := make(chan struct{}, 1)
	unsubscribe := s.Subscribe(func(st State) {
		if st.UserID() == userID {
			select {
			case seen <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if s.State().UserID() == userID {
		return nil
	}
	select {
	case <-seen:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn to receive a snapshot after every observable change.
// Callbacks run on the goroutine that made the change and must not block.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// Close drops every subscriber.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = make(map[uint64]func(State))
}

func (s *Store) isLoadingLocked() bool {
	select {
	case <-s.loaded:
		return false
	default:
		return true
	}
}

func (s *Store) snapshotLocked() State {
	session := s.session.Clone()
	var user *users.User
	if session != nil {
		user = session.User
	}
	return State{
		Session:   session,
		User:      user,
		IsAdmin:   s.isAdmin,
		IsLoading: s.isLoadingLocked(),
	}
}

func (s *Store) subscribersLocked() []func(State) {
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(State), state State) {
	for _, fn := range subs {
		fn(state)
	}
}
