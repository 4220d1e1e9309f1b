package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/aozorahack/pubserver2/pkg/cache"
)

type fakeEntry struct {
	data      []byte
	expiresAt time.Time
}

// FakeStore is a synchronous in-memory cache.Store for testing.
type FakeStore struct {
	mu      sync.Mutex
	entries map[string]fakeEntry
	now     time.Time

	// Fault injection
	GetErr error
	SetErr error

	gets   int
	sets   int
	writes []string
}

// NewFakeStore returns an empty FakeStore whose clock starts at a fixed time.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		entries: make(map[string]fakeEntry),
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Advance moves the store's clock forward.
func (s *FakeStore) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// Get returns the stored bytes or cache.ErrCacheMiss.
func (s *FakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	e, ok := s.entries[key]
	if !ok || !s.now.Before(e.expiresAt) {
		return nil, cache.ErrCacheMiss
	}
	return e.data, nil
}

// Set stores val for ttl.
func (s *FakeStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	s.writes = append(s.writes, key)
	if s.SetErr != nil {
		return s.SetErr
	}
	s.entries[key] = fakeEntry{data: val, expiresAt: s.now.Add(ttl)}
	return nil
}

// SetMulti stores items with one shared expiry. It counts as a single Set
// call; with SetErr set nothing is stored.
func (s *FakeStore) SetMulti(_ context.Context, items []cache.Item, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	for _, it := range items {
		s.writes = append(s.writes, it.Key)
	}
	if s.SetErr != nil {
		return s.SetErr
	}
	expiresAt := s.now.Add(ttl)
	for _, it := range items {
		s.entries[it.Key] = fakeEntry{data: it.Value, expiresAt: expiresAt}
	}
	return nil
}

// Ping always succeeds.
func (s *FakeStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *FakeStore) Close() error { return nil }

// Raw returns the bytes stored under key regardless of expiry.
func (s *FakeStore) Raw(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e.data, ok
}

// TTL returns the remaining lifetime of key.
func (s *FakeStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return 0
	}
	return e.expiresAt.Sub(s.now)
}

// Keys returns the number of stored keys.
func (s *FakeStore) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sets returns the number of Set calls.
func (s *FakeStore) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

// Writes returns the keys passed to Set, in call order.
func (s *FakeStore) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

var _ cache.Store = (*FakeStore)(nil)
