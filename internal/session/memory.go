package session

import (
	"context"
	"sync"
)

// MemoryStore keeps every browser session in process memory; a restart
// forgets all of them.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]map[string]string)}
}

func (s *MemoryStore) Scope(sessionID string) Holder {
	return &memoryHolder{store: s, sessionID: sessionID}
}

type memoryHolder struct {
	store     *MemoryStore
	sessionID string
}

func (h *memoryHolder) Put(_ context.Context, key, value string) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	values, ok := h.store.sessions[h.sessionID]
	if !ok {
		values = make(map[string]string)
		h.store.sessions[h.sessionID] = values
	}
	values[key] = value
	return nil
}

func (h *memoryHolder) Get(_ context.Context, key string) (string, bool, error) {
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	value, ok := h.store.sessions[h.sessionID][key]
	return value, ok, nil
}

func (h *memoryHolder) Remove(_ context.Context, key string) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	values, ok := h.store.sessions[h.sessionID]
	if !ok {
		return nil
	}
	delete(values, key)
	if len(values) == 0 {
		delete(h.store.sessions, h.sessionID)
	}
	return nil
}
