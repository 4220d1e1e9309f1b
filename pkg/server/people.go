package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aozorahack/pubserver2/pkg/catalog"
)

func (s *server) handlePersons(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()

	var q catalog.PersonQuery
	var err error
	if name := v.Get("name"); name != "" {
		if q.Name, err = catalog.ParseMatch(name); err != nil {
			catalogError(w, r, err)
			return
		}
	}
	q.Fields = catalog.NormalizeFields(v["fields"])
	if q.Limit, q.Skip, err = parsePage(v); err != nil {
		catalogError(w, r, err)
		return
	}

	docs, err := s.deps.Catalog.Persons(r.Context(), q)
	if err != nil {
		catalogError(w, r, err)
		return
	}
	writeJSON(w, r, docs)
}

func (s *server) handlePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		writeStatus(w, http.StatusNotFound)
		return
	}

	doc, err := s.deps.Catalog.Person(r.Context(), id, catalog.NormalizeFields(r.URL.Query()["fields"]))
	if err != nil {
		catalogError(w, r, err)
		return
	}
	writeJSON(w, r, doc)
}

func (s *server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()

	var q catalog.WorkerQuery
	var err error
	if name := v.Get("name"); name != "" {
		if q.Name, err = catalog.ParseMatch(name); err != nil {
			catalogError(w, r, err)
			return
		}
	}
	if q.Limit, q.Skip, err = parsePage(v); err != nil {
		catalogError(w, r, err)
		return
	}

	docs, err := s.deps.Catalog.Workers(r.Context(), q)
	if err != nil {
		catalogError(w, r, err)
		return
	}
	writeJSON(w, r, docs)
}

func (s *server) handleWorker(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		writeStatus(w, http.StatusNotFound)
		return
	}

	doc, err := s.deps.Catalog.Worker(r.Context(), id)
	if err != nil {
		catalogError(w, r, err)
		return
	}
	writeJSON(w, r, doc)
}

func (s *server) handleRanking(w http.ResponseWriter, r *http.Request) {
	year, okYear := intParam(r, "year")
	month, okMonth := intParam(r, "month")
	if !okYear || !okMonth {
		writeStatus(w, http.StatusNotFound)
		return
	}

	entries, err := s.deps.Catalog.Ranking(r.Context(), catalog.RankingKey{
		Kind:  chi.URLParam(r, "type"),
		Year:  year,
		Month: month,
	})
	if err != nil {
		catalogError(w, r, err)
		return
	}
	writeJSON(w, r, entries)
}
