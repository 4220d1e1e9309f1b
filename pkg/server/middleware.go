package server

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aozorahack/pubserver2/pkg/logging"
	"github.com/aozorahack/pubserver2/pkg/metrics"
)

// statusWriterPool avoids one allocation per request. Fields are reset on
// Get; ResponseWriter is cleared on Put.
var statusWriterPool = sync.Pool{
	New: func() any { return &statusWriter{} },
}

// recovery catches panics and returns 500.
func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.FromContext(r.Context()).Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("Panic recovered")
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

const requestIDHeader = "X-Request-Id"

// requestID adds a UUID v7 request id to the response and the request logger.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logging.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusText maps HTTP status codes to pre-allocated label values.
var statusText [600]string

func init() {
	for i := range statusText {
		statusText[i] = strconv.Itoa(i)
	}
}

// metrics records request duration, status and in-flight count.
func (s *server) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.ActiveRequests.Inc()
		defer metrics.ActiveRequests.Dec()
		start := time.Now()

		sw := statusWriterPool.Get().(*statusWriter)
		sw.ResponseWriter = w
		sw.status = http.StatusOK
		sw.wroteHeader = false

		next.ServeHTTP(sw, r)

		status := sw.status
		sw.ResponseWriter = nil
		statusWriterPool.Put(sw)

		pattern := routePattern(r)
		label := "other"
		if status > 0 && status < len(statusText) {
			label = statusText[status]
		}
		metrics.RequestsTotal.WithLabelValues(r.Method, pattern, label).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the chi route pattern for bounded cardinality.
// Unrouted requests (static files, 404s) share one label.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}

// accessLog writes one line per request, at a level chosen by status.
func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			return
		}

		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		logger := logging.FromContext(r.Context())
		event := logger.Info()
		switch {
		case sw.status >= 500:
			event = logger.Error()
		case sw.status >= 400:
			event = logger.Warn()
		}
		event.Str("logger", "access").
			Str("method", r.Method).
			Str("path", path).
			Dur("resp_time", time.Since(start)).
			Int("status", sw.status).
			Str("client_ip", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("Request")
	})
}

// weakETagWhenEncoded marks the ETag weak on responses that leave with a
// Content-Encoding. The tag names the identity bytes, which an encoded body
// no longer is byte for byte. etag.Match ignores the weak prefix, so
// revalidation still yields 304.
func weakETagWhenEncoded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&encodedETagWriter{ResponseWriter: w}, r)
	})
}

type encodedETagWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (ew *encodedETagWriter) WriteHeader(code int) {
	if !ew.wroteHeader {
		ew.wroteHeader = true
		h := ew.Header()
		if tag := h.Get("ETag"); tag != "" && h.Get("Content-Encoding") != "" && !strings.HasPrefix(tag, "W/") {
			h.Set("ETag", "W/"+tag)
		}
	}
	ew.ResponseWriter.WriteHeader(code)
}

func (ew *encodedETagWriter) Write(b []byte) (int, error) {
	if !ew.wroteHeader {
		ew.WriteHeader(http.StatusOK)
	}
	return ew.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (ew *encodedETagWriter) Unwrap() http.ResponseWriter {
	return ew.ResponseWriter
}

// statusWriter wraps ResponseWriter to capture the HTTP status code.
// Only the first WriteHeader is recorded, matching net/http semantics.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
