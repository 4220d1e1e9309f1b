package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aozorahack/pubserver2/pkg/catalog"
)

// releaseLayout is the stored form of date columns; it sorts lexically.
const releaseLayout = "2006-01-02T15:04:05.000Z"

var bookSortColumns = map[string]string{
	"book_id":       "book_id",
	"title":         "title",
	"title_yomi":    "title_yomi",
	"title_sort":    "title_sort",
	"release_date":  "release_date",
	"last_modified": "last_modified",
}

// PutBook inserts or replaces a book document.
func (s *Store) PutBook(ctx context.Context, doc []byte) error {
	if !gjson.ValidBytes(doc) {
		return fmt.Errorf("%w: book document is not valid JSON", catalog.ErrBadRequest)
	}
	r := gjson.ParseBytes(doc)
	id := r.Get("book_id").Int()
	if id <= 0 {
		return fmt.Errorf("%w: book document has no book_id", catalog.ErrBadRequest)
	}

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO books (book_id, title, title_yomi, title_sort, release_date, last_modified, doc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, r.Get("title").String(), r.Get("title_yomi").String(), r.Get("title_sort").String(),
		normDate(r.Get("release_date").String()), normDate(r.Get("last_modified").String()),
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("put book %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM book_authors WHERE book_id=?`, id); err != nil {
		return err
	}
	for i, a := range r.Get("authors").Array() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO book_authors (book_id, position, person_id) VALUES (?, ?, ?)`,
			id, i, a.Get("person_id").Int(),
		)
		if err != nil {
			return fmt.Errorf("put book %d author: %w", id, err)
		}
	}
	return tx.Commit()
}

// BookSource returns the content locations of a book.
func (s *Store) BookSource(ctx context.Context, bookID int) (*catalog.BookSource, error) {
	doc, err := s.bookDoc(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return catalog.SourceFromDocument(doc), nil
}

// Book returns a book document, reduced to fields when given.
func (s *Store) Book(ctx context.Context, bookID int, fields []string) (json.RawMessage, error) {
	doc, err := s.bookDoc(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return catalog.Project(doc, fields, "book_id"), nil
}

func (s *Store) bookDoc(ctx context.Context, bookID int) ([]byte, error) {
	var doc string
	err := s.read.QueryRowContext(ctx, `SELECT doc FROM books WHERE book_id=?`, bookID).Scan(&doc)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return []byte(doc), nil
}

// Books lists books matching q. Unless q.Sort says otherwise, the newest
// releases come first.
func (s *Store) Books(ctx context.Context, q catalog.BookQuery) ([]json.RawMessage, error) {
	query := `SELECT doc FROM books WHERE 1=1`
	var args []any

	if !q.Title.IsZero() {
		if q.Title.Regexp {
			query += ` AND regexp(?, title)`
		} else {
			query += ` AND title=?`
		}
		args = append(args, q.Title.Value)
	}
	if q.Author != "" {
		personID, err := s.personIDByName(ctx, q.Author)
		if err != nil {
			return nil, err
		}
		query += ` AND book_id IN (SELECT book_id FROM book_authors WHERE person_id=?)`
		args = append(args, personID)
	}
	if !q.After.IsZero() {
		query += ` AND release_date >= ?`
		args = append(args, q.After.UTC().Format(releaseLayout))
	}

	order, err := orderBy(q.Sort, bookSortColumns, "release_date DESC", "book_id")
	if err != nil {
		return nil, err
	}
	query += order + ` LIMIT ? OFFSET ?`
	args = append(args, normLimit(q.Limit), normSkip(q.Skip))

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return scanDocs(rows, q.Fields, "book_id")
}

// personIDByName resolves an author name to the lowest matching person id.
func (s *Store) personIDByName(ctx context.Context, name string) (int, error) {
	var id int
	err := s.read.QueryRowContext(ctx,
		`SELECT person_id FROM persons
		 WHERE last_name || first_name = ? OR last_name = ? OR first_name = ?
		 ORDER BY person_id LIMIT 1`,
		name, name, name,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("author %q: %w", name, catalog.ErrNotFound)
		}
		return 0, err
	}
	return id, nil
}

// normDate converts a date or timestamp into releaseLayout. Values that
// do not parse are stored unchanged.
func normDate(s string) string {
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(releaseLayout)
		}
	}
	return s
}
