package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

const memoryBackend = "memory"

// DefaultMemoryMaxSize bounds the number of entries held by a MemoryStore
// opened through a memory:// URL.
const DefaultMemoryMaxSize = 10_000

// memoryCeiling is the expiry otter itself enforces. Per-entry TTLs are
// checked against the store's clock and are always shorter in practice.
const memoryCeiling = 24 * time.Hour

// entry wraps a cached value with its expiration time.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store backed by otter.
type MemoryStore struct {
	cache *otter.Cache[string, entry]
	now   func() time.Time
}

// NewMemoryStore creates an in-memory store holding at most maxSize entries.
func NewMemoryStore(maxSize int) (*MemoryStore, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](memoryCeiling),
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &MemoryStore{cache: c, now: time.Now}, nil
}

// SetClock replaces the clock used for TTL checks (for testing).
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.now = now
}

// Get retrieves a value if present and not expired.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		CacheMisses.WithLabelValues(memoryBackend).Inc()
		return nil, ErrCacheMiss
	}
	if !m.now().Before(e.expiresAt) {
		m.cache.Invalidate(key)
		CacheMisses.WithLabelValues(memoryBackend).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(memoryBackend).Inc()
	return e.data, nil
}

// Set stores a value with a per-entry TTL.
func (m *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.cache.Set(key, entry{
		data:      val,
		expiresAt: m.now().Add(ttl),
	})
	CacheWrittenBytes.WithLabelValues(memoryBackend).Add(float64(len(val)))
	return nil
}

// SetMulti stores items with one shared expiration time.
func (m *MemoryStore) SetMulti(_ context.Context, items []Item, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	expiresAt := m.now().Add(ttl)
	for _, it := range items {
		m.cache.Set(it.Key, entry{data: it.Value, expiresAt: expiresAt})
		CacheWrittenBytes.WithLabelValues(memoryBackend).Add(float64(len(it.Value)))
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close drops all entries.
func (m *MemoryStore) Close() error {
	m.cache.InvalidateAll()
	return nil
}
