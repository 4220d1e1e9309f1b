package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisBackend = "redis"

// RedisStore is a Store backed by Redis.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
	}
}

// OpenRedis connects to the Redis server described by rawURL and verifies
// the connection with a ping.
func OpenRedis(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	s := NewRedisStore(redis.NewClient(opts))
	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Get retrieves the bytes stored under key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(redisBackend).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(redisBackend, "get").Inc()
		return nil, fmt.Errorf("%w: redis get: %v", ErrCacheUnavailable, err)
	}

	CacheHits.WithLabelValues(redisBackend).Inc()
	return data, nil
}

// Set stores val under key. Redis removes the key once ttl elapses.
func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	if err := s.redis.Set(ctx, key, val, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues(redisBackend, "set").Inc()
		return fmt.Errorf("%w: redis set: %v", ErrCacheUnavailable, err)
	}

	CacheWrittenBytes.WithLabelValues(redisBackend).Add(float64(len(val)))
	return nil
}

// SetMulti writes items inside one MULTI/EXEC transaction. Redis runs the
// whole transaction against a single clock reading, so every key expires
// at the same instant.
func (s *RedisStore) SetMulti(ctx context.Context, items []Item, ttl time.Duration) error {
	if ttl <= 0 || len(items) == 0 {
		return nil
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, it := range items {
			pipe.Set(ctx, it.Key, it.Value, ttl)
		}
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues(redisBackend, "set").Inc()
		return fmt.Errorf("%w: redis multi set: %v", ErrCacheUnavailable, err)
	}

	for _, it := range items {
		CacheWrittenBytes.WithLabelValues(redisBackend).Add(float64(len(it.Value)))
	}
	return nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		CacheErrors.WithLabelValues(redisBackend, "ping").Inc()
		return fmt.Errorf("%w: redis ping: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
