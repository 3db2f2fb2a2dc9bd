package artifacts

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/campus-auth/internal/errors"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store, the equivalent of the browser's session storage.
type MemoryStore struct {
	values map[string]string
	lock   sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", apperrors.ErrArtifactNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.values, key)
	return nil
}
