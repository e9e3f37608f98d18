package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps values in a map. It is the fallback when the configured
// backend cannot be opened, and the backend used by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	// failPut, when set, is returned by every Put.
	failPut error
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// SetFailPut makes subsequent Puts fail with err, or succeed again when err is nil.
func (m *MemoryStore) SetFailPut(err error) {
	m.mu.Lock()
	m.failPut = err
	m.mu.Unlock()
}
