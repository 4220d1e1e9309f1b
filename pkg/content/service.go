package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/aozorahack/pubserver2/pkg/cache"
	"github.com/aozorahack/pubserver2/pkg/catalog"
	"github.com/aozorahack/pubserver2/pkg/etag"
	"github.com/aozorahack/pubserver2/pkg/fetch"
	"github.com/aozorahack/pubserver2/pkg/logging"
	"github.com/aozorahack/pubserver2/pkg/telemetry"
	"github.com/aozorahack/pubserver2/pkg/transform"
)

// DefaultTTL is how long a retrieved variant stays cached.
const DefaultTTL = 3600 * time.Second

// BookLocator resolves a book to its content locations.
type BookLocator interface {
	BookSource(ctx context.Context, bookID int) (*catalog.BookSource, error)
}

// Fetcher retrieves upstream resources.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Result is the outcome of a retrieval. Payload is always the plain
// transformed bytes; Digest is computed over the stored artifact.
type Result struct {
	Payload []byte
	Digest  string
}

// Config holds Service configuration.
type Config struct {
	// TTL applies to both entries of a cached variant. Zero means DefaultTTL.
	TTL time.Duration
}

// Service serves book content through the cache.
type Service struct {
	store       cache.Store
	books       BookLocator
	fetcher     Fetcher
	transformer *transform.Transformer
	ttl         time.Duration

	group  singleflight.Group
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewService creates a content service.
func NewService(store cache.Store, books BookLocator, fetcher Fetcher, transformer *transform.Transformer, cfg Config) *Service {
	if store == nil {
		panic("content: store must not be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if transformer == nil {
		transformer = transform.New(transform.DefaultSiteRoot)
	}
	return &Service{
		store:       store,
		books:       books,
		fetcher:     fetcher,
		transformer: transformer,
		ttl:         cfg.TTL,
		logger:      logging.NewLogger("content"),
		tracer:      telemetry.Tracer("github.com/aozorahack/pubserver2/pkg/content"),
	}
}

// TTL returns the configured cache lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Retrieve returns the payload and digest of one variant of a book, from
// the cache when the digest entry is present, otherwise from upstream.
//
// Concurrent misses for the same variant share a single upstream fetch.
func (s *Service) Retrieve(ctx context.Context, bookID int, v Variant) (*Result, error) {
	key := cache.ContentKey{Variant: v.String(), BookID: bookID}

	ctx, span := s.tracer.Start(ctx, "content.Retrieve", trace.WithAttributes(
		attribute.Int("book_id", bookID),
		attribute.String("variant", v.String()),
	))
	defer span.End()

	start := time.Now()
	if res, ok := s.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		Retrievals.WithLabelValues(v.String(), "hit").Inc()
		RetrievalDuration.WithLabelValues(v.String(), "cache").Observe(time.Since(start).Seconds())
		return res, nil
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	// The shared fill outlives any single caller; the fetcher's timeout
	// bounds it instead.
	fillCtx := context.WithoutCancel(ctx)
	val, err, shared := s.group.Do(key.DigestKey(), func() (any, error) {
		return s.fill(fillCtx, key, bookID, v)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		Retrievals.WithLabelValues(v.String(), "error").Inc()
		return nil, err
	}

	outcome := "miss"
	if shared {
		outcome = "shared"
	}
	Retrievals.WithLabelValues(v.String(), outcome).Inc()
	RetrievalDuration.WithLabelValues(v.String(), "upstream").Observe(time.Since(start).Seconds())
	return val.(*Result), nil
}

// lookup reads a cached variant. Any failure along the way is a miss.
func (s *Service) lookup(ctx context.Context, key cache.ContentKey) (*Result, bool) {
	digest, err := s.store.Get(ctx, key.DigestKey())
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("key", key.DigestKey()).Msg("Cache read failed, treating as miss")
		} else {
			s.logger.Debug().Str("key", key.DigestKey()).Msg("Cache miss")
		}
		return nil, false
	}

	if len(digest) != etag.Size {
		s.logger.Warn().Str("key", key.DigestKey()).Msg("Cached digest malformed, treating as miss")
		return nil, false
	}

	stored, err := s.store.Get(ctx, key.PayloadKey())
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key.PayloadKey()).Msg("Cached payload missing, treating as miss")
		return nil, false
	}

	payload, err := decompress(stored)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key.PayloadKey()).Msg("Cached payload corrupt, treating as miss")
		return nil, false
	}

	s.logger.Debug().Str("key", key.DigestKey()).Msg("Cache hit")
	return &Result{Payload: payload, Digest: string(digest)}, true
}

// fill fetches, transforms and stores one variant.
func (s *Service) fill(ctx context.Context, key cache.ContentKey, bookID int, v Variant) (*Result, error) {
	fail := func(class ErrorClass, err error) error {
		return &RetrievalError{Class: class, BookID: bookID, Variant: v, Err: err}
	}

	src, err := s.books.BookSource(ctx, bookID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fail(ErrorClassUnavailable, err)
		}
		return nil, fail(ErrorClassInternal, err)
	}

	url := v.SourceURL(src)
	if url == "" {
		return nil, fail(ErrorClassUnavailable, fmt.Errorf("no %s source url", v))
	}

	raw, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fail(ErrorClassUnavailable, err)
	}

	payload, err := s.transform(raw, v, src)
	if err != nil {
		if errors.Is(err, transform.ErrEncoding) {
			return nil, fail(ErrorClassEncoding, err)
		}
		return nil, fail(ErrorClassUnavailable, err)
	}
	PayloadBytes.WithLabelValues(v.String(), "plain").Observe(float64(len(payload)))

	stored, err := compress(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key.DigestKey()).Msg("Compression failed, serving uncached")
		return &Result{Payload: payload, Digest: etag.Digest(payload)}, nil
	}
	PayloadBytes.WithLabelValues(v.String(), "stored").Observe(float64(len(stored)))

	res := &Result{Payload: payload, Digest: etag.Digest(stored)}
	s.save(ctx, key, stored, res.Digest)
	return res, nil
}

// save writes the payload and digest entries as one unit, payload first,
// so a visible digest always has its payload with the same expiry.
func (s *Service) save(ctx context.Context, key cache.ContentKey, stored []byte, digest string) {
	items := []cache.Item{
		{Key: key.PayloadKey(), Value: stored},
		{Key: key.DigestKey(), Value: []byte(digest)},
	}
	if err := s.store.SetMulti(ctx, items, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key.DigestKey()).Msg("Cache write failed")
		return
	}
	s.logger.Debug().
		Str("key", key.DigestKey()).
		Dur("ttl", s.ttl).
		Int("bytes", len(stored)).
		Msg("Cached content")
}

func (s *Service) transform(raw []byte, v Variant, src *catalog.BookSource) ([]byte, error) {
	if v == Text {
		return fetch.ExtractSingle(raw)
	}
	return s.transformer.HTML(raw, v.charset(), v.rewrite(), previewOf(src))
}

func previewOf(src *catalog.BookSource) transform.Preview {
	p := transform.Preview{Title: src.Title}
	if len(src.Authors) > 0 {
		p.Author = src.Authors[0].FullName()
	}
	return p
}
