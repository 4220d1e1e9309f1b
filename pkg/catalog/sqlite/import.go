package sqlite

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/aozorahack/pubserver2/pkg/catalog"
)

// maxLine bounds a single JSON-lines record.
const maxLine = 4 << 20

// ImportKind names the collection a JSON-lines stream is loaded into.
type ImportKind string

const (
	ImportBooks    ImportKind = "books"
	ImportPersons  ImportKind = "persons"
	ImportWorkers  ImportKind = "workers"
	ImportRankings ImportKind = "rankings"
)

// Import loads one JSON document per line from r and returns the number
// of records written. Blank lines are skipped. Ranking records have the
// form {"kind":…,"year":…,"month":…,"entries":[{"book_id":…,"access":…}]}.
func (s *Store) Import(ctx context.Context, kind ImportKind, r io.Reader) (int, error) {
	put, err := s.importer(kind)
	if err != nil {
		return 0, err
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)

	n, line := 0, 0
	for sc.Scan() {
		line++
		rec := bytes.TrimSpace(sc.Bytes())
		if len(rec) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := put(ctx, bytes.Clone(rec)); err != nil {
			return n, fmt.Errorf("%s line %d: %w", kind, line, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("%s line %d: %w", kind, line+1, err)
	}
	return n, nil
}

func (s *Store) importer(kind ImportKind) (func(context.Context, []byte) error, error) {
	switch kind {
	case ImportBooks:
		return s.PutBook, nil
	case ImportPersons:
		return s.PutPerson, nil
	case ImportWorkers:
		return s.PutWorker, nil
	case ImportRankings:
		return s.putRankingRecord, nil
	default:
		return nil, fmt.Errorf("%w: unknown import kind %q", catalog.ErrBadRequest, kind)
	}
}

func (s *Store) putRankingRecord(ctx context.Context, rec []byte) error {
	if !gjson.ValidBytes(rec) {
		return fmt.Errorf("%w: ranking record is not valid JSON", catalog.ErrBadRequest)
	}
	r := gjson.ParseBytes(rec)
	key := catalog.RankingKey{
		Kind:  r.Get("kind").String(),
		Year:  int(r.Get("year").Int()),
		Month: int(r.Get("month").Int()),
	}
	if key.Kind == "" || key.Year == 0 || key.Month == 0 {
		return fmt.Errorf("%w: ranking record needs kind, year and month", catalog.ErrBadRequest)
	}

	var entries []catalog.RankingEntry
	r.Get("entries").ForEach(func(_, e gjson.Result) bool {
		entries = append(entries, catalog.RankingEntry{
			BookID: int(e.Get("book_id").Int()),
			Access: int(e.Get("access").Int()),
		})
		return true
	})
	return s.PutRanking(ctx, key, entries)
}
