package session

import "sync"

// MemStore is the in-process Store implementation, grounded on
// session_storage.h's InMemoryStorage: a hash table guarded by a mutex, no
// persistence across restarts.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]*Session)}
}

var _ Store = (*MemStore)(nil)

// Store saves or overwrites a session.
func (m *MemStore) Store(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	return nil
}

// Load returns the session for id, or nil if absent.
func (m *MemStore) Load(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id], nil
}

// Remove deletes a session; removing an absent id is not an error.
func (m *MemStore) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// ClearExpired sweeps every session whose expiry time has passed.
func (m *MemStore) ClearExpired() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.Expired() {
			delete(m.sessions, id)
		}
	}
	return nil
}
