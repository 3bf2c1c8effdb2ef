package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is a process-local Store backed by go-cache. Expired entries
// are hidden on read and evicted by go-cache's janitor.
type MemoryStore struct {
	items *gocache.Cache
}

// NewMemoryStore evicts expired entries every cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// expiry maps a Store ttl onto go-cache, where zero means the default.
func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return "", ErrMiss
	}
	s, _ := v.(string)
	return s, nil
}

func (m *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	_, ok := m.items.Get(key)
	return ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	m.items.Set(key, value, expiry(ttl))
	return nil
}

// SetNX relies on go-cache's Add, which fails while an unexpired item exists.
func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	return m.items.Add(key, value, expiry(ttl)) == nil, nil
}

func (m *MemoryStore) Forget(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Len counts entries including expired ones not yet evicted.
func (m *MemoryStore) Len() int {
	return m.items.ItemCount()
}

// Close drops every entry.
func (m *MemoryStore) Close() {
	m.items.Flush()
}
