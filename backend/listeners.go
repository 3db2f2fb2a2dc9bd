package backend

import (
	"sort"
	"sync"

	"github.com/jrsteele09/campus-auth/sessions"
)

// Listeners is a registry of ChangeListeners shared by backend implementations.
// Notify calls listeners synchronously, in registration order, on the caller's
// goroutine, so consecutive changes are delivered in the order they happened.
type Listeners struct {
	mu        sync.RWMutex
	listeners map[uint64]ChangeListener
	nextID    uint64
}

// NewListeners returns an empty registry.
func NewListeners() *Listeners {
	return &Listeners{listeners: make(map[uint64]ChangeListener)}
}

// Add registers a listener and returns its subscription.
func (l *Listeners) Add(listener ChangeListener) Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = listener
	return &subscription{id: id, owner: l}
}

// Len returns the number of active registrations.
func (l *Listeners) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.listeners)
}

// Notify delivers the event to every registered listener.
func (l *Listeners) Notify(event ChangeEvent, session *sessions.Session) {
	l.mu.RLock()
	ids := make([]uint64, 0, len(l.listeners))
	for id := range l.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ordered := make([]ChangeListener, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, l.listeners[id])
	}
	l.mu.RUnlock()

	for _, listener := range ordered {
		listener(event, session.Clone())
	}
}

func (l *Listeners) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.listeners, id)
}

type subscription struct {
	id    uint64
	owner *Listeners
	once  sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.owner.remove(s.id)
	})
}
