package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aozorahack/pubserver2/pkg/catalog"
)

func (s *server) handleBooks(w http.ResponseWriter, r *http.Request) {
	q, err := parseBookQuery(r.URL.Query())
	if err != nil {
		catalogError(w, r, err)
		return
	}

	docs, err := s.deps.Catalog.Books(r.Context(), q)
	if err != nil {
		catalogError(w, r, err)
		return
	}
	writeJSON(w, r, docs)
}

func (s *server) handleBook(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		writeStatus(w, http.StatusNotFound)
		return
	}

	doc, err := s.deps.Catalog.Book(r.Context(), id, catalog.NormalizeFields(r.URL.Query()["fields"]))
	if err != nil {
		catalogError(w, r, err)
		return
	}
	writeJSON(w, r, doc)
}

func parseBookQuery(v url.Values) (catalog.BookQuery, error) {
	var q catalog.BookQuery
	var err error

	if title := v.Get("title"); title != "" {
		if q.Title, err = catalog.ParseMatch(title); err != nil {
			return q, err
		}
	}
	q.Author = v.Get("author")

	if after := v.Get("after"); after != "" {
		if q.After, err = parseDate(after); err != nil {
			return q, err
		}
	}

	q.Fields = catalog.NormalizeFields(v["fields"])
	if q.Sort, err = catalog.ParseSort(v.Get("sort")); err != nil {
		return q, err
	}
	if q.Limit, q.Skip, err = parsePage(v); err != nil {
		return q, err
	}
	return q, nil
}

func parsePage(v url.Values) (limit, skip int, err error) {
	if limit, err = optionalInt(v, "limit"); err != nil {
		return 0, 0, err
	}
	if skip, err = optionalInt(v, "skip"); err != nil {
		return 0, 0, err
	}
	return limit, skip, nil
}

func optionalInt(v url.Values, name string) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", catalog.ErrBadRequest, name)
	}
	return n, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", catalog.ErrBadRequest, s)
}

func intParam(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, false
	}
	return n, true
}
