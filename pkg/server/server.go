// Package server implements the HTTP surface of pubserver.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/aozorahack/pubserver2/pkg/catalog"
	"github.com/aozorahack/pubserver2/pkg/content"
	"github.com/aozorahack/pubserver2/pkg/logging"
)

// APIPrefix is the mount point of the catalog API.
const APIPrefix = "/api/v0.1"

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// ContentRetriever returns one variant of a book's content.
type ContentRetriever interface {
	Retrieve(ctx context.Context, bookID int, v content.Variant) (*content.Result, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Catalog    catalog.Catalog
	Content    ContentRetriever
	ReadyCheck ReadyChecker // nil = always ready
	PublicDir  string       // "" = no static files
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps, logger: logging.NewLogger("server")}

	r := chi.NewRouter()

	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.metrics)
	r.Use(s.accessLog)
	r.Use(middleware.GetHead)
	r.Use(weakETagWhenEncoded)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/books", s.handleBooks)
		r.Get("/books/{id}", s.handleBook)
		r.Get("/books/{id}/card", s.handleBookCard)
		r.Get("/books/{id}/content", s.handleBookContent)

		r.Get("/persons", s.handlePersons)
		r.Get("/persons/{id}", s.handlePerson)

		r.Get("/workers", s.handleWorkers)
		r.Get("/workers/{id}", s.handleWorker)

		r.Get("/ranking/{type}/{year}/{month}", s.handleRanking)
	})

	if deps.PublicDir != "" {
		r.NotFound(http.FileServer(http.Dir(deps.PublicDir)).ServeHTTP)
	}

	return r
}

type server struct {
	deps   Deps
	logger zerolog.Logger
}
