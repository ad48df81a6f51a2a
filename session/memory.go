package session

import (
	"context"
	"sync"
)

// MemoryStore keeps the session entries in process memory. The zero value
// is an empty store ready to use.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[Key]string
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Key]string, len(Keys))}
}

// Get implements [Store].
func (m *MemoryStore) Get(_ context.Context, key Key) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements [Store].
func (m *MemoryStore) Set(_ context.Context, key Key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[Key]string, len(Keys))
	}
	m.values[key] = value
	return nil
}

// Remove implements [Store].
func (m *MemoryStore) Remove(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Apply implements [BatchStore].
func (m *MemoryStore) Apply(_ context.Context, set map[Key]string, remove []Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyLocked(set, remove)
	return nil
}

// ApplyIf implements [CompareStore].
func (m *MemoryStore) ApplyIf(_ context.Context, guard Key, expect string, set map[Key]string, remove []Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[guard]; !ok || v != expect {
		return ErrSessionChanged
	}
	m.applyLocked(set, remove)
	return nil
}

func (m *MemoryStore) applyLocked(set map[Key]string, remove []Key) {
	if m.values == nil {
		m.values = make(map[Key]string, len(Keys))
	}
	for _, key := range remove {
		delete(m.values, key)
	}
	for key, v := range set {
		m.values[key] = v
	}
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
