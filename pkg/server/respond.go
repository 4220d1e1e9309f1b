package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aozorahack/pubserver2/pkg/catalog"
	"github.com/aozorahack/pubserver2/pkg/etag"
	"github.com/aozorahack/pubserver2/pkg/logging"
	"github.com/aozorahack/pubserver2/pkg/metrics"
)

const jsonContentType = "application/json; charset=utf-8"

// writeConditional answers with 304 and no body when the request's
// If-None-Match names digest, and with the full body otherwise. The ETag
// header is set in both cases.
func writeConditional(w http.ResponseWriter, r *http.Request, body []byte, digest, contentType, kind string) {
	w.Header().Set("ETag", etag.Quote(digest))

	if inm := r.Header.Get("If-None-Match"); etag.Match(inm, digest) {
		logging.FromContext(r.Context()).Debug().
			Str("etag", digest).
			Msg("Not modified")
		metrics.NotModified.WithLabelValues(kind).Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// writeJSON serializes v and answers conditionally; the digest is taken
// over the serialized body.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	body, err := marshalJSON(v)
	if err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("Encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeConditional(w, r, body, etag.Digest(body), jsonContentType, "json")
}

// marshalJSON encodes v without HTML escaping, so documents keep their
// original characters.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// writeStatus answers with an empty body.
func writeStatus(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

// catalogError maps catalog errors to a status and logs server faults.
func catalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeStatus(w, http.StatusNotFound)
	case errors.Is(err, catalog.ErrBadRequest):
		logging.FromContext(r.Context()).Debug().Err(err).Msg("Bad request")
		writeStatus(w, http.StatusBadRequest)
	default:
		logging.FromContext(r.Context()).Error().Err(err).Msg("Catalog query failed")
		writeStatus(w, http.StatusInternalServerError)
	}
}
