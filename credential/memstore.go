package credential

import "sync"

// MemStore keeps credentials in memory only. It backs tests and is the
// fallback a FileStore degrades to when its directory is not writable.
type MemStore struct {
	mu    sync.RWMutex
	creds Credentials
	held  bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Get implements Store.
func (m *MemStore) Get() (Credentials, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds, m.held
}

// Set implements Store.
func (m *MemStore) Set(c Credentials) error {
	if !c.valid() || c.IsZero() {
		return ErrHalfSet
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = c
	m.held = true
	return nil
}

// Clear implements Store.
func (m *MemStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = Credentials{}
	m.held = false
	return nil
}
