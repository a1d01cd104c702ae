package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in an in-process map. It is the default
// backend: nothing survives a restart, which matches how the cache is
// meant to be used (short TTLs over a slow upstream API).
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get returns the payload for key if present and not expired. Expired
// entries are evicted on the spot.
func (s *MemoryStore) Get(key string, now time.Time) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.After(now) {
		s.mu.Lock()
		// Re-check under the write lock: a Set may have raced in.
		if cur, ok := s.entries[key]; ok && !cur.expiresAt.After(now) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.payload, true, nil
}

// Set stores payload under key until expiresAt.
func (s *MemoryStore) Set(key string, payload []byte, expiresAt time.Time) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{payload: payload, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

// Delete removes key if present.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

// Sweep removes every entry expired as of now and reports the count.
func (s *MemoryStore) Sweep(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len counts the entries still live as of now.
func (s *MemoryStore) Len(now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if e.expiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error {
	return nil
}
