// Package cache provides the TTL-bounded byte store behind the content pipeline.
//
// A Store is a raw key/value store: it never interprets the bytes it holds
// and never refreshes an entry's TTL on read. Two backends are available:
//
//   - RedisStore, backed by github.com/redis/go-redis/v9 (production)
//   - MemoryStore, backed by github.com/maypok86/otter/v2 (single process, tests)
//
// # Basic Usage
//
//	store, err := cache.Open(ctx, "redis://127.0.0.1:6379/0")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	key := cache.ContentKey{Variant: "txt", BookID: 123}
//
//	digest, err := store.Get(ctx, key.DigestKey())
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - fetch, transform, then SetMulti payload and digest
//	}
//
// # Key Scheme
//
// Each logical entry is stored as two keys sharing one TTL:
//
//   - "{variant}{bookId}"   - the digest (ETag) of the stored payload
//   - "{variant}{bookId}:d" - the compressed payload
//
// Both keys are written with a single SetMulti call, payload first. The
// pair is stored as one unit with one expiry, so presence of the digest
// implies presence of the payload. Absence of the digest key is the only
// miss signal.
//
// # Metrics
//
//   - pubserver_cache_hits_total{backend} - Cache hits
//   - pubserver_cache_misses_total{backend} - Cache misses
//   - pubserver_cache_written_bytes_total{backend} - Bytes written
//   - pubserver_cache_errors_total{backend,operation} - Cache operation errors
package cache
