package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type memoryCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryCache returns a process-local Cache with per-key TTL. Expired keys are invisible to reads
// and are purged before every mutation.
func NewMemoryCache(now func() time.Time) Cache {
	if now == nil {
		now = time.Now
	}
	return &memoryCache{
		now:     now,
		entries: make(map[string]memoryEntry),
	}
}

func (m *memoryCache) purgeLocked(now time.Time) {
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
		}
	}
}

func (m *memoryCache) entry(now time.Time, value string, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	return e
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.purgeLocked(now)
	m.entries[key] = m.entry(now, data, ttl)
	return nil
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.expired(m.now()) {
		return "", fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	}
	return e.value, nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(m.now())
	delete(m.entries, key)
	return nil
}

func (m *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	return ok && !e.expired(m.now()), nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := encodeValue(value)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.purgeLocked(now)
	if _, ok := m.entries[key]; ok {
		return false, nil
	}
	m.entries[key] = m.entry(now, data, ttl)
	return true, nil
}

func (m *memoryCache) Close() error                 { return nil }
func (m *memoryCache) Ping(_ context.Context) error { return nil }
