package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/japanese"

	"github.com/aozorahack/pubserver2/internal/testutil"
	"github.com/aozorahack/pubserver2/pkg/catalog"
	"github.com/aozorahack/pubserver2/pkg/catalog/sqlite"
	"github.com/aozorahack/pubserver2/pkg/content"
	"github.com/aozorahack/pubserver2/pkg/fetch"
	"github.com/aozorahack/pubserver2/pkg/transform"
)

const (
	textPath = "/cards/000879/files/42_ruby_1197.zip"
	cardPath = "/cards/000879/card42.html"
	htmlPath = "/cards/000879/files/42_15228.html"
)

var textBody = []byte("\x95\x40") // Shift_JIS "鼻"

type env struct {
	handler  http.Handler
	store    *sqlite.Store
	upstream *testutil.MockUpstream
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	upstream := testutil.NewMockUpstream()
	t.Cleanup(upstream.Close)
	upstream.SetResponse(textPath, testutil.NewArchiveResponse(
		testutil.BuildArchive(t, testutil.ArchiveEntry{Name: "hana.txt", Body: textBody}),
	))
	upstream.SetResponse(cardPath, testutil.NewHTMLResponse(
		[]byte(`<html><head><title>図書カード：鼻</title></head><body><a href="../../index.html">top</a></body></html>`),
		"utf-8",
	))
	doc, err := japanese.ShiftJIS.NewEncoder().String(`<html><head><title>鼻</title></head><body></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	upstream.SetResponse(htmlPath, testutil.NewHTMLResponse([]byte(doc), "shift_jis"))

	store, err := sqlite.New(t.TempDir() + "/catalog.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	akutagawa := catalog.Author{PersonID: 879, LastName: "芥川", FirstName: "竜之介"}
	person, _ := json.Marshal(akutagawa)
	if err := store.PutPerson(ctx, person); err != nil {
		t.Fatal(err)
	}
	books := []map[string]any{
		{
			"book_id":      42,
			"title":        "鼻",
			"release_date": "1999-01-26T00:00:00.000Z",
			"text_url":     upstream.URL() + textPath,
			"card_url":     upstream.URL() + cardPath,
			"html_url":     upstream.URL() + htmlPath,
			"authors":      []catalog.Author{akutagawa},
		},
		{
			"book_id":      92,
			"title":        "羅生門",
			"release_date": "1997-11-04T00:00:00.000Z",
			"authors":      []catalog.Author{akutagawa},
		},
	}
	for _, b := range books {
		raw, _ := json.Marshal(b)
		if err := store.PutBook(ctx, raw); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.PutWorker(ctx, []byte(`{"id":845,"name":"高柳典子"}`)); err != nil {
		t.Fatal(err)
	}
	err = store.PutRanking(ctx, catalog.RankingKey{Kind: "xhtml", Year: 2018, Month: 5},
		[]catalog.RankingEntry{{BookID: 42, Access: 321}})
	if err != nil {
		t.Fatal(err)
	}

	svc := content.NewService(
		testutil.NewFakeStore(),
		store,
		fetch.New(fetch.Config{Timeout: 5 * time.Second}),
		transform.New(""),
		content.Config{},
	)

	return &env{
		handler:  New(Deps{Catalog: store, Content: svc}),
		store:    store,
		upstream: upstream,
	}
}

func (e *env) get(t *testing.T, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := New(Deps{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name  string
		check ReadyChecker
		want  int
	}{
		{name: "no check", want: http.StatusOK},
		{name: "ready", check: func(context.Context) error { return nil }, want: http.StatusOK},
		{name: "not ready", check: func(context.Context) error { return errors.New("redis down") }, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(Deps{ReadyCheck: tt.check})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	e := newEnv(t)

	rec := e.get(t, "/healthz", nil)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id should be generated")
	}

	rec = e.get(t, "/healthz", map[string]string{"X-Request-Id": "abc-123"})
	if got := rec.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Errorf("X-Request-Id = %q, want propagated abc-123", got)
	}
}

func TestBooks(t *testing.T) {
	e := newEnv(t)

	rec := e.get(t, APIPrefix+"/books", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != jsonContentType {
		t.Errorf("Content-Type = %q, want %q", ct, jsonContentType)
	}
	if etag := rec.Header().Get("ETag"); len(etag) != 42 || etag[0] != '"' {
		t.Errorf("ETag = %q, want quoted SHA-1 hex", etag)
	}

	ids := gjson.Get(rec.Body.String(), "#.book_id").Array()
	if len(ids) != 2 || ids[0].Int() != 42 || ids[1].Int() != 92 {
		t.Errorf("book ids = %v, want [42 92]", ids)
	}
}

func TestBooksQueryParameters(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name   string
		query  string
		status int
		ids    []int64
	}{
		{name: "title", query: "title=羅生門", status: http.StatusOK, ids: []int64{92}},
		{name: "title regexp", query: "title=/門$/", status: http.StatusOK, ids: []int64{92}},
		{name: "author", query: "author=芥川竜之介", status: http.StatusOK, ids: []int64{42, 92}},
		{name: "after", query: "after=1998-01-01", status: http.StatusOK, ids: []int64{42}},
		{name: "limit", query: "limit=1", status: http.StatusOK, ids: []int64{42}},
		{name: "skip", query: "skip=1", status: http.StatusOK, ids: []int64{92}},
		{name: "sort", query: `sort={"release_date":1}`, status: http.StatusOK, ids: []int64{92, 42}},
		{name: "unknown author", query: "author=宮沢賢治", status: http.StatusNotFound},
		{name: "bad regexp", query: "title=/(/", status: http.StatusBadRequest},
		{name: "bad limit", query: "limit=-1", status: http.StatusBadRequest},
		{name: "bad after", query: "after=yesterday", status: http.StatusBadRequest},
		{name: "bad sort field", query: `sort={"doc":1}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, APIPrefix+"/books", nil)
			k, v, _ := strings.Cut(tt.query, "=")
			req.URL.RawQuery = k + "=" + url.QueryEscape(v)
			rec := httptest.NewRecorder()
			e.handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				if rec.Body.Len() != 0 {
					t.Errorf("error body = %q, want empty", rec.Body.String())
				}
				return
			}
			var got []int64
			for _, id := range gjson.Get(rec.Body.String(), "#.book_id").Array() {
				got = append(got, id.Int())
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.ids) {
				t.Errorf("book ids = %v, want %v", got, tt.ids)
			}
		})
	}
}

func TestBookFields(t *testing.T) {
	e := newEnv(t)

	rec := e.get(t, APIPrefix+"/books/42?fields=title", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got, want := rec.Body.String(), `{"book_id":42,"title":"鼻"}`; got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestBookNotFound(t *testing.T) {
	e := newEnv(t)

	for _, path := range []string{"/books/9999", "/books/abc", "/persons/1", "/workers/1", "/ranking/txt/2018/05"} {
		rec := e.get(t, APIPrefix+path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("GET %s body = %q, want empty", path, rec.Body.String())
		}
	}
}

func TestConditionalJSON(t *testing.T) {
	e := newEnv(t)

	first := e.get(t, APIPrefix+"/books/42", nil)
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("ETag missing on 200 response")
	}

	rec := e.get(t, APIPrefix+"/books/42", map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("304 body = %q, want empty", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "" {
		t.Errorf("304 Content-Type = %q, want none", ct)
	}

	rec = e.get(t, APIPrefix+"/books/42", map[string]string{"If-None-Match": `"0000"`})
	if rec.Code != http.StatusOK {
		t.Fatalf("mismatched validator status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != first.Body.String() {
		t.Error("mismatched validator should return the full body")
	}
}

func TestContent(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name        string
		path        string
		contentType string
	}{
		{name: "default format", path: "/books/42/content", contentType: content.ContentTypeText},
		{name: "txt", path: "/books/42/content?format=txt", contentType: content.ContentTypeText},
		{name: "html", path: "/books/42/content?format=html", contentType: content.ContentTypeHTML},
		{name: "unknown format", path: "/books/42/content?format=epub", contentType: content.ContentTypeBinary},
		{name: "card", path: "/books/42/card", contentType: content.ContentTypeCard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.get(t, APIPrefix+tt.path, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if rec.Header().Get("ETag") == "" {
				t.Error("ETag missing")
			}
			if rec.Body.Len() == 0 {
				t.Error("body is empty")
			}
		})
	}
}

func TestContentConditional(t *testing.T) {
	e := newEnv(t)

	first := e.get(t, APIPrefix+"/books/42/content", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", first.Code)
	}
	if first.Body.String() != string(textBody) {
		t.Errorf("body = %x, want %x", first.Body.Bytes(), textBody)
	}

	rec := e.get(t, APIPrefix+"/books/42/content", map[string]string{"If-None-Match": first.Header().Get("ETag")})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", rec.Code)
	}
	if rec.Body.Len() != 0 || rec.Header().Get("Content-Type") != "" {
		t.Errorf("304 should have no body and no Content-Type, got %q / %q", rec.Body.String(), rec.Header().Get("Content-Type"))
	}
	if got := e.upstream.PathCount(textPath); got != 1 {
		t.Errorf("upstream fetches = %d, want 1", got)
	}
}

func TestContentCompressedETag(t *testing.T) {
	e := newEnv(t)
	path := APIPrefix + "/books/42/card"

	plain := e.get(t, path, nil)
	if plain.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", plain.Code)
	}
	strong := plain.Header().Get("ETag")
	if strings.HasPrefix(strong, "W/") {
		t.Fatalf("identity ETag = %s, want strong", strong)
	}

	gz := e.get(t, path, map[string]string{"Accept-Encoding": "gzip"})
	if gz.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", gz.Code)
	}
	if ce := gz.Header().Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", ce)
	}
	weak := gz.Header().Get("ETag")
	if weak != "W/"+strong {
		t.Errorf("encoded ETag = %s, want W/%s", weak, strong)
	}

	rec := e.get(t, path, map[string]string{"Accept-Encoding": "gzip", "If-None-Match": weak})
	if rec.Code != http.StatusNotModified {
		t.Errorf("revalidation with weak tag: status = %d, want 304", rec.Code)
	}
}

func TestContentUnavailable(t *testing.T) {
	e := newEnv(t)

	// Book 92 has no content URLs.
	for _, path := range []string{"/books/92/card", "/books/92/content", "/books/9999/content", "/books/x/card"} {
		rec := e.get(t, APIPrefix+path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("GET %s body = %q, want empty", path, rec.Body.String())
		}
	}

	e.upstream.SetResponse(cardPath, testutil.NewServerErrorResponse())
	rec := e.get(t, APIPrefix+"/books/42/card", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("upstream failure status = %d, want 404", rec.Code)
	}
}

type failingRetriever struct{ err error }

func (f failingRetriever) Retrieve(context.Context, int, content.Variant) (*content.Result, error) {
	return nil, f.err
}

func TestContentErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "unavailable",
			err:  &content.RetrievalError{Class: content.ErrorClassUnavailable, Err: errors.New("503")},
			want: http.StatusNotFound,
		},
		{
			name: "encoding",
			err:  &content.RetrievalError{Class: content.ErrorClassEncoding, Err: errors.New("bad byte")},
			want: http.StatusNotFound,
		},
		{
			name: "internal",
			err:  &content.RetrievalError{Class: content.ErrorClassInternal, Err: errors.New("db locked")},
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(Deps{Content: failingRetriever{err: tt.err}})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, APIPrefix+"/books/1/card", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestPersonsAndWorkers(t *testing.T) {
	e := newEnv(t)

	rec := e.get(t, APIPrefix+"/persons?name="+url.QueryEscape("芥川竜之介"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("persons status = %d, want 200", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "0.person_id").Int(); got != 879 {
		t.Errorf("person_id = %d, want 879", got)
	}

	rec = e.get(t, APIPrefix+"/persons/879", nil)
	if got := gjson.Get(rec.Body.String(), "last_name").String(); got != "芥川" {
		t.Errorf("last_name = %q, want 芥川", got)
	}

	rec = e.get(t, APIPrefix+"/workers?name="+url.QueryEscape("/典子$/"), nil)
	if got := gjson.Get(rec.Body.String(), "0.id").Int(); got != 845 {
		t.Errorf("worker id = %d, want 845", got)
	}

	rec = e.get(t, APIPrefix+"/workers/845", nil)
	if got := gjson.Get(rec.Body.String(), "name").String(); got != "高柳典子" {
		t.Errorf("worker name = %q, want 高柳典子", got)
	}
}

func TestRanking(t *testing.T) {
	e := newEnv(t)

	rec := e.get(t, APIPrefix+"/ranking/xhtml/2018/05", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if got := gjson.Get(body, "0.book_id").Int(); got != 42 {
		t.Errorf("book_id = %d, want 42", got)
	}
	if got := gjson.Get(body, "0.access").Int(); got != 321 {
		t.Errorf("access = %d, want 321", got)
	}
	if got := gjson.Get(body, "0.authors.0").String(); got != "芥川 竜之介" {
		t.Errorf("authors[0] = %q, want 芥川 竜之介", got)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>pubserver</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := New(Deps{PublicDir: dir})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pubserver") {
		t.Errorf("body = %q, want index.html", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.css", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	h := New(Deps{Content: panickingRetriever{}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, APIPrefix+"/books/1/card", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

type panickingRetriever struct{}

func (panickingRetriever) Retrieve(context.Context, int, content.Variant) (*content.Result, error) {
	panic("boom")
}
