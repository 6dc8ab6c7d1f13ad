// Package cache provides the key/value store adapters use for read-through
// caching of playlist metadata, track listings and search results.
//
// The contract is deliberately narrow: get, set with optional TTL, delete.
// No transactional guarantees; a write is create-or-replace and the last
// writer wins.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
)

// TTLs used by the adapters. Metadata and track listings stay warm for
// hours and are explicitly invalidated on reload; search results churn
// faster and expire on their own.
const (
	MetadataTTL = 6 * time.Hour
	TracksTTL   = 6 * time.Hour
	SearchTTL   = 30 * time.Minute
)

// Store is the key/value contract consumed by adapters and the reload guard.
type Store interface {
	// Get returns the value for key, or ok=false when absent or expired.
	Get(key string) (value []byte, ok bool, err error)

	// Set writes key to value. A zero ttl means no expiry.
	Set(key string, value []byte, ttl time.Duration) error

	// Del removes key. Deleting an absent key is not an error.
	Del(key string) error
}

// Key builds a namespaced cache key: <service>_<operation>_<id>[_<params>].
func Key(service models.ServiceType, operation, resourceID string, params ...string) string {
	parts := append([]string{string(service), operation, resourceID}, params...)
	return strings.Join(parts, "_")
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-process Store. Used in tests and as the fallback when no
// cache file is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(m.now()) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Del(key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
