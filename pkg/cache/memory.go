package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a small in-process TTL cache for the single-process tier of
// state that does not need to survive a restart or be shared across
// instances (e.g. dialog context when Redis is absent). Grounded on the
// lazy double-checked-lock expiry pattern of the teacher's runbook cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
}

// NewMemory creates an in-memory cache with a fixed entry TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
	}
}

// Get returns the cached value for key, or ("", false) if absent or expired.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		if e, stillThere := m.entries[key]; stillThere && time.Now().After(e.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false
	}
	return entry.value, true
}

// Set stores value under key with the cache's configured TTL.
func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &memoryEntry{value: value, expiresAt: time.Now().Add(m.ttl)}
}

// Delete removes key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}
