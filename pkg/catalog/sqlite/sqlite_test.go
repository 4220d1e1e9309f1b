package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"github.com/aozorahack/pubserver2/pkg/catalog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := t.TempDir() + "/catalog.db"
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func bookDoc(id int, title, release string, authors ...catalog.Author) []byte {
	doc := map[string]any{
		"book_id":      id,
		"title":        title,
		"release_date": release,
		"card_url":     fmt.Sprintf("https://www.aozora.gr.jp/cards/000879/card%d.html", id),
		"text_url":     fmt.Sprintf("https://www.aozora.gr.jp/cards/000879/files/%d_ruby.zip", id),
		"html_url":     fmt.Sprintf("https://www.aozora.gr.jp/cards/000879/files/%d.html", id),
		"authors":      authors,
	}
	b, _ := json.Marshal(doc)
	return b
}

var (
	akutagawa = catalog.Author{PersonID: 879, LastName: "芥川", FirstName: "竜之介"}
	natsume   = catalog.Author{PersonID: 148, LastName: "夏目", FirstName: "漱石"}
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	for _, a := range []catalog.Author{akutagawa, natsume} {
		b, _ := json.Marshal(a)
		if err := s.PutPerson(ctx, b); err != nil {
			t.Fatal("put person:", err)
		}
	}
	books := [][]byte{
		bookDoc(42, "鼻", "1999-01-26T00:00:00.000Z", akutagawa),
		bookDoc(92, "羅生門", "1997-11-04T00:00:00.000Z", akutagawa),
		bookDoc(789, "吾輩は猫である", "2002-04-05", natsume),
		bookDoc(773, "こころ", "1999-04-01T00:00:00.000Z", natsume),
	}
	for _, b := range books {
		if err := s.PutBook(ctx, b); err != nil {
			t.Fatal("put book:", err)
		}
	}
}

func ids(t *testing.T, docs []json.RawMessage, key string) []int64 {
	t.Helper()
	out := make([]int64, 0, len(docs))
	for _, d := range docs {
		out = append(out, gjson.GetBytes(d, key).Int())
	}
	return out
}

func TestBookRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	got, err := s.Book(ctx, 42, nil)
	if err != nil {
		t.Fatal(err)
	}
	if title := gjson.GetBytes(got, "title").String(); title != "鼻" {
		t.Errorf("title = %q, want 鼻", title)
	}

	src, err := s.BookSource(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if src.CardURL != "https://www.aozora.gr.jp/cards/000879/card42.html" {
		t.Errorf("card url = %q", src.CardURL)
	}
	if diff := cmp.Diff([]catalog.Author{akutagawa}, src.Authors); diff != "" {
		t.Errorf("authors mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.Book(ctx, 9999, nil); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("missing book err = %v, want ErrNotFound", err)
	}
	if _, err := s.BookSource(ctx, 9999); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("missing book source err = %v, want ErrNotFound", err)
	}
}

func TestPutBookReplaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	if err := s.PutBook(ctx, bookDoc(42, "鼻 改訂", "1999-01-26", natsume)); err != nil {
		t.Fatal(err)
	}
	src, err := s.BookSource(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if src.Title != "鼻 改訂" {
		t.Errorf("title = %q, want replaced title", src.Title)
	}

	docs, err := s.Books(ctx, catalog.BookQuery{Author: "芥川竜之介"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{92}, ids(t, docs, "book_id")); diff != "" {
		t.Errorf("author books mismatch (-want +got):\n%s", diff)
	}
}

func TestPutBookInvalid(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, doc := range []string{`{"title":"no id"}`, `{"book_id":`} {
		if err := s.PutBook(ctx, []byte(doc)); !errors.Is(err, catalog.ErrBadRequest) {
			t.Errorf("PutBook(%s) err = %v, want ErrBadRequest", doc, err)
		}
	}
}

func TestBooksQuery(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	after, _ := time.Parse(time.DateOnly, "1999-01-01")

	tests := []struct {
		name  string
		query catalog.BookQuery
		want  []int64
	}{
		{name: "default order newest first", query: catalog.BookQuery{}, want: []int64{789, 773, 42, 92}},
		{name: "exact title", query: catalog.BookQuery{Title: catalog.Match{Value: "羅生門"}}, want: []int64{92}},
		{name: "title regexp", query: catalog.BookQuery{Title: catalog.Match{Value: "^.{1,2}$", Regexp: true}}, want: []int64{42}},
		{name: "author full name", query: catalog.BookQuery{Author: "夏目漱石"}, want: []int64{789, 773}},
		{name: "author last name", query: catalog.BookQuery{Author: "芥川"}, want: []int64{42, 92}},
		{name: "after", query: catalog.BookQuery{After: after}, want: []int64{789, 773, 42}},
		{name: "limit", query: catalog.BookQuery{Limit: 2}, want: []int64{789, 773}},
		{name: "skip", query: catalog.BookQuery{Skip: 3}, want: []int64{92}},
		{
			name:  "sort ascending",
			query: catalog.BookQuery{Sort: []catalog.SortField{{Field: "release_date"}}},
			want:  []int64{92, 42, 773, 789},
		},
		{
			name:  "sort by id descending",
			query: catalog.BookQuery{Sort: []catalog.SortField{{Field: "book_id", Desc: true}}},
			want:  []int64{789, 773, 92, 42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Books(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, ids(t, docs, "book_id")); diff != "" {
				t.Errorf("book ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBooksQueryErrors(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	if _, err := s.Books(ctx, catalog.BookQuery{Author: "宮沢賢治"}); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("unknown author err = %v, want ErrNotFound", err)
	}
	_, err := s.Books(ctx, catalog.BookQuery{Sort: []catalog.SortField{{Field: "doc; DROP TABLE books"}}})
	if !errors.Is(err, catalog.ErrBadRequest) {
		t.Errorf("bad sort err = %v, want ErrBadRequest", err)
	}
}

func TestBooksFields(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seed(t, s)

	docs, err := s.Books(context.Background(), catalog.BookQuery{
		Title:  catalog.Match{Value: "こころ"},
		Fields: []string{"title", "release_date"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("count = %d, want 1", len(docs))
	}
	want := `{"book_id":773,"release_date":"1999-04-01T00:00:00.000Z","title":"こころ"}`
	if string(docs[0]) != want {
		t.Errorf("projected doc = %s, want %s", docs[0], want)
	}
}

func TestPersons(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	got, err := s.Person(ctx, 879, nil)
	if err != nil {
		t.Fatal(err)
	}
	if name := gjson.GetBytes(got, "last_name").String(); name != "芥川" {
		t.Errorf("last_name = %q, want 芥川", name)
	}
	if _, err := s.Person(ctx, 1, nil); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("missing person err = %v, want ErrNotFound", err)
	}

	docs, err := s.Persons(ctx, catalog.PersonQuery{Name: catalog.Match{Value: "夏目漱石"}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{148}, ids(t, docs, "person_id")); diff != "" {
		t.Errorf("persons mismatch (-want +got):\n%s", diff)
	}

	docs, err = s.Persons(ctx, catalog.PersonQuery{Name: catalog.Match{Value: "川", Regexp: true}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{879}, ids(t, docs, "person_id")); diff != "" {
		t.Errorf("regexp persons mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkers(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, doc := range []string{`{"id":845,"name":"高柳典子"}`, `{"id":6,"name":"野口英司"}`} {
		if err := s.PutWorker(ctx, []byte(doc)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Worker(ctx, 845)
	if err != nil {
		t.Fatal(err)
	}
	if name := gjson.GetBytes(got, "name").String(); name != "高柳典子" {
		t.Errorf("name = %q, want 高柳典子", name)
	}
	if _, err := s.Worker(ctx, 1); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("missing worker err = %v, want ErrNotFound", err)
	}

	docs, err := s.Workers(ctx, catalog.WorkerQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{6, 845}, ids(t, docs, "id")); diff != "" {
		t.Errorf("workers mismatch (-want +got):\n%s", diff)
	}

	docs, err = s.Workers(ctx, catalog.WorkerQuery{Name: catalog.Match{Value: "^野口", Regexp: true}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{6}, ids(t, docs, "id")); diff != "" {
		t.Errorf("regexp workers mismatch (-want +got):\n%s", diff)
	}
}

func TestRanking(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	key := catalog.RankingKey{Kind: "xhtml", Year: 2018, Month: 5}
	err := s.PutRanking(ctx, key, []catalog.RankingEntry{
		{BookID: 773, Access: 5000},
		{BookID: 42, Access: 1200},
		{BookID: 4040, Access: 7},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Ranking(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	want := []catalog.RankingEntry{
		{BookID: 773, Access: 5000, Title: "こころ", Authors: []string{"夏目 漱石"}},
		{BookID: 42, Access: 1200, Title: "鼻", Authors: []string{"芥川 竜之介"}},
		{BookID: 4040, Access: 7, Authors: []string{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.Ranking(ctx, catalog.RankingKey{Kind: "txt", Year: 2018, Month: 5}); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("missing ranking err = %v, want ErrNotFound", err)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
