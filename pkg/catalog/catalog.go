// Package catalog defines the read model of the book catalog: books,
// persons, workers and access rankings.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultLimit is the page size used when a query does not specify one.
const DefaultLimit = 100

// Sentinel errors for the catalog domain.
var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
)

// Author is a book author as embedded in book documents.
type Author struct {
	PersonID  int    `json:"person_id"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
}

// FullName returns the last name followed by the first name.
func (a Author) FullName() string {
	return a.LastName + a.FirstName
}

// BookSource is the projection of a book needed to retrieve its content.
type BookSource struct {
	BookID  int
	Title   string
	TextURL string
	CardURL string
	HTMLURL string
	Authors []Author
}

// SourceFromDocument extracts a BookSource from a book document.
func SourceFromDocument(doc []byte) *BookSource {
	r := gjson.ParseBytes(doc)
	src := &BookSource{
		BookID:  int(r.Get("book_id").Int()),
		Title:   r.Get("title").String(),
		TextURL: r.Get("text_url").String(),
		CardURL: r.Get("card_url").String(),
		HTMLURL: r.Get("html_url").String(),
	}
	r.Get("authors").ForEach(func(_, a gjson.Result) bool {
		src.Authors = append(src.Authors, Author{
			PersonID:  int(a.Get("person_id").Int()),
			LastName:  a.Get("last_name").String(),
			FirstName: a.Get("first_name").String(),
		})
		return true
	})
	return src
}

// Match is a string predicate: an exact value, or a regular expression
// when written as /pattern/.
type Match struct {
	Value  string
	Regexp bool
}

// ParseMatch parses a filter value. "/re/" yields a regexp match; anything
// else an exact match. Invalid patterns are rejected with ErrBadRequest.
func ParseMatch(s string) (Match, error) {
	if len(s) >= 2 && s[0] == '/' && s[len(s)-1] == '/' {
		pattern := s[1 : len(s)-1]
		if _, err := regexp.Compile(pattern); err != nil {
			return Match{}, fmt.Errorf("%w: invalid pattern %q: %v", ErrBadRequest, pattern, err)
		}
		return Match{Value: pattern, Regexp: true}, nil
	}
	return Match{Value: s}, nil
}

// IsZero reports whether no predicate was given.
func (m Match) IsZero() bool {
	return m.Value == "" && !m.Regexp
}

// SortField orders results by one document field.
type SortField struct {
	Field string
	Desc  bool
}

// ParseSort parses a JSON sort object such as {"release_date": 1}.
// Negative values sort descending. Keys keep their order of appearance.
func ParseSort(s string) ([]SortField, error) {
	if s == "" {
		return nil, nil
	}
	if !gjson.Valid(s) {
		return nil, fmt.Errorf("%w: sort is not valid JSON", ErrBadRequest)
	}
	r := gjson.Parse(s)
	if !r.IsObject() {
		return nil, fmt.Errorf("%w: sort must be an object", ErrBadRequest)
	}

	var out []SortField
	r.ForEach(func(k, v gjson.Result) bool {
		out = append(out, SortField{Field: k.String(), Desc: v.Int() < 0})
		return true
	})
	return out, nil
}

// BookQuery selects books.
type BookQuery struct {
	Title  Match
	Author string
	After  time.Time
	Fields []string
	Sort   []SortField
	Limit  int
	Skip   int
}

// PersonQuery selects persons.
type PersonQuery struct {
	Name   Match
	Fields []string
	Limit  int
	Skip   int
}

// WorkerQuery selects workers.
type WorkerQuery struct {
	Name  Match
	Limit int
	Skip  int
}

// RankingEntry is one row of an access ranking.
type RankingEntry struct {
	BookID  int      `json:"book_id"`
	Access  int      `json:"access"`
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
}

// RankingKey identifies one published ranking.
type RankingKey struct {
	Kind  string `json:"kind"`
	Year  int    `json:"year"`
	Month int    `json:"month"`
}

// Catalog is the read side of the catalog store.
type Catalog interface {
	BookSource(ctx context.Context, bookID int) (*BookSource, error)
	Book(ctx context.Context, bookID int, fields []string) (json.RawMessage, error)
	Books(ctx context.Context, q BookQuery) ([]json.RawMessage, error)
	Person(ctx context.Context, personID int, fields []string) (json.RawMessage, error)
	Persons(ctx context.Context, q PersonQuery) ([]json.RawMessage, error)
	Worker(ctx context.Context, workerID int) (json.RawMessage, error)
	Workers(ctx context.Context, q WorkerQuery) ([]json.RawMessage, error)
	Ranking(ctx context.Context, key RankingKey) ([]RankingEntry, error)
	Ping(ctx context.Context) error
}

// NormalizeFields splits comma-separated entries and drops empty ones.
func NormalizeFields(fields []string) []string {
	var out []string
	for _, f := range fields {
		for _, p := range strings.Split(f, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
