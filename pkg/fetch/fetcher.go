// Package fetch retrieves upstream book artifacts over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/dnscache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrUnavailable is returned when an upstream artifact cannot be retrieved
// or unpacked.
var ErrUnavailable = errors.New("content unavailable")

// DefaultUserAgent identifies us as a regular browser. The upstream host
// rejects requests without a browser-like User-Agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Prometheus metrics for upstream fetches.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pubserver_upstream_requests_total",
		Help: "Total upstream fetches by host and status",
	}, []string{"host", "status"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pubserver_upstream_request_duration_seconds",
		Help:    "Upstream fetch duration in seconds by host",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"host"})
)

// Config holds the fetcher configuration.
type Config struct {
	// UserAgent header sent with every request
	UserAgent string

	// Accept header sent with every request
	Accept string

	// Timeout bounds a single fetch including the body read (0 = no limit)
	Timeout time.Duration

	// MaxBodySize bounds the number of bytes read from a response
	MaxBodySize int64

	// Resolver caches DNS lookups for upstream hosts (nil = system resolver)
	Resolver *dnscache.Resolver
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:   DefaultUserAgent,
		Accept:      "*/*",
		Timeout:     30 * time.Second,
		MaxBodySize: 32 << 20,
	}
}

// Fetcher downloads upstream artifacts. It never retries.
type Fetcher struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Accept == "" {
		cfg.Accept = "*/*"
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	return &Fetcher{
		httpClient: &http.Client{
			Transport: NewTransport(cfg.Resolver),
			Timeout:   cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch retrieves the resource at rawURL and returns its body.
// Every failure is reported as ErrUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: source url is empty", ErrUnavailable)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %v", ErrUnavailable, err)
	}

	startTime := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(u.Host).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", f.config.Accept)

	f.logger.Debug().Str("url", rawURL).Msg("Fetching upstream resource")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		fetchRequestsTotal.WithLabelValues(u.Host, "network_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(u.Host, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: upstream %s returned %s", ErrUnavailable, u.Host, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if int64(len(body)) > f.config.MaxBodySize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrUnavailable, f.config.MaxBodySize)
	}

	f.logger.Debug().
		Str("url", rawURL).
		Int("size", len(body)).
		Dur("duration", time.Since(startTime)).
		Msg("Fetched upstream resource")

	return body, nil
}
