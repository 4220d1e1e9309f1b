package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable indicates the backing store could not be reached.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// Item is one key/value pair written by SetMulti.
type Item struct {
	Key   string
	Value []byte
}

// Store is a TTL-bounded raw byte store keyed by opaque strings.
type Store interface {
	// Get returns the stored bytes, or ErrCacheMiss if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores val under key for ttl. The TTL is fixed at write time.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// SetMulti stores items in order as one unit: either every item is
	// written or none is, and all of them share the same expiry.
	SetMulti(ctx context.Context, items []Item, ttl time.Duration) error
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	// Close releases the store's connections.
	Close() error
}

// Open creates a Store from a connection URL.
//
// Supported schemes:
//
//	redis://[user:pass@]host:port/db
//	rediss://[user:pass@]host:port/db
//	memory://
func Open(ctx context.Context, rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse cache url: %w", err)
	}

	switch u.Scheme {
	case "redis", "rediss":
		s, err := OpenRedis(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		s, err := NewMemoryStore(DefaultMemoryMaxSize)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported cache url scheme %q", u.Scheme)
	}
}
