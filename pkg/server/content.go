package server

import (
	"net/http"

	"github.com/aozorahack/pubserver2/pkg/content"
	"github.com/aozorahack/pubserver2/pkg/logging"
)

func (s *server) handleBookCard(w http.ResponseWriter, r *http.Request) {
	s.serveContent(w, r, content.Card, content.ContentTypeCard)
}

func (s *server) handleBookContent(w http.ResponseWriter, r *http.Request) {
	v, contentType := content.ParseFormat(r.URL.Query().Get("format"))
	s.serveContent(w, r, v, contentType)
}

func (s *server) serveContent(w http.ResponseWriter, r *http.Request, v content.Variant, contentType string) {
	id, ok := intParam(r, "id")
	if !ok {
		writeStatus(w, http.StatusNotFound)
		return
	}

	res, err := s.deps.Content.Retrieve(r.Context(), id, v)
	if err != nil {
		logger := logging.FromContext(r.Context())
		switch content.Classify(err) {
		case content.ErrorClassUnavailable, content.ErrorClassEncoding:
			logger.Error().Err(err).Int("book_id", id).Stringer("variant", v).Msg("Content not served")
			writeStatus(w, http.StatusNotFound)
		default:
			logger.Error().Err(err).Int("book_id", id).Stringer("variant", v).Msg("Content retrieval failed")
			writeStatus(w, http.StatusInternalServerError)
		}
		return
	}

	writeConditional(w, r, res.Payload, res.Digest, contentType, "content")
}
