// Package metrics holds the HTTP-level Prometheus metrics and serves the
// registry on a dedicated listener. Domain metrics are defined in their
// respective packages (cache, fetch, content) and registered via promauto.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the Prometheus registerer all pubserver metrics use.
var Registry = prometheus.DefaultRegisterer

var (
	// RequestsTotal counts HTTP requests by method, route and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubserver_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks HTTP request latency by method and route.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pubserver_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ActiveRequests tracks in-flight HTTP requests.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pubserver_http_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)

	// NotModified counts 304 responses by kind (json, content).
	NotModified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubserver_http_not_modified_total",
			Help: "Total number of 304 Not Modified responses",
		},
		[]string{"kind"},
	)
)

// Handler returns the handler exposing the registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics on listenAddr until ctx is canceled.
func Server(ctx context.Context, listenAddr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Msgf("Serving metrics on %s", listenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("Finished listening for metrics")
	return nil
}

// Metrics Documentation
//
// HTTP Metrics (pkg/metrics):
//   - pubserver_http_requests_total{method, route, status} (Counter)
//   - pubserver_http_request_duration_seconds{method, route} (Histogram)
//   - pubserver_http_active_requests (Gauge)
//   - pubserver_http_not_modified_total{kind} (Counter)
//
// Cache Metrics (pkg/cache):
//   - pubserver_cache_hits_total{backend} (Counter)
//   - pubserver_cache_misses_total{backend} (Counter)
//   - pubserver_cache_errors_total{backend, operation} (Counter)
//   - pubserver_cache_written_bytes_total{backend} (Counter)
//
// Upstream Metrics (pkg/fetch):
//   - pubserver_upstream_requests_total{host, status} (Counter)
//   - pubserver_upstream_request_duration_seconds{host} (Histogram)
//
// Content Metrics (pkg/content):
//   - pubserver_content_retrievals_total{variant, outcome} (Counter)
//   - pubserver_content_retrieval_duration_seconds{variant, source} (Histogram)
//   - pubserver_content_payload_bytes{variant, stage} (Histogram)
//
// Example Prometheus Queries:
//
//   # Content cache hit rate
//   sum(rate(pubserver_content_retrievals_total{outcome="hit"}[5m])) /
//   sum(rate(pubserver_content_retrievals_total[5m]))
//
//   # Upstream error rate
//   sum(rate(pubserver_upstream_requests_total{status!~"2.."}[5m]))
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(pubserver_http_request_duration_seconds_bucket[5m]))
//
//   # 304 response rate
//   sum(rate(pubserver_http_not_modified_total[5m])) / sum(rate(pubserver_http_requests_total[5m]))
