package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/aozorahack/pubserver2/pkg/catalog"
)

// PutPerson inserts or replaces a person document.
func (s *Store) PutPerson(ctx context.Context, doc []byte) error {
	if !gjson.ValidBytes(doc) {
		return fmt.Errorf("%w: person document is not valid JSON", catalog.ErrBadRequest)
	}
	r := gjson.ParseBytes(doc)
	id := r.Get("person_id").Int()
	if id <= 0 {
		return fmt.Errorf("%w: person document has no person_id", catalog.ErrBadRequest)
	}
	_, err := s.write.ExecContext(ctx,
		`INSERT OR REPLACE INTO persons (person_id, last_name, first_name, doc) VALUES (?, ?, ?, ?)`,
		id, r.Get("last_name").String(), r.Get("first_name").String(), string(doc),
	)
	if err != nil {
		return fmt.Errorf("put person %d: %w", id, err)
	}
	return nil
}

// Person returns a person document.
func (s *Store) Person(ctx context.Context, personID int, fields []string) (json.RawMessage, error) {
	var doc string
	err := s.read.QueryRowContext(ctx, `SELECT doc FROM persons WHERE person_id=?`, personID).Scan(&doc)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return catalog.Project([]byte(doc), fields, "person_id"), nil
}

// Persons lists persons whose full name matches q.Name.
func (s *Store) Persons(ctx context.Context, q catalog.PersonQuery) ([]json.RawMessage, error) {
	query := `SELECT doc FROM persons WHERE 1=1`
	var args []any

	if !q.Name.IsZero() {
		if q.Name.Regexp {
			query += ` AND regexp(?, last_name || first_name)`
			args = append(args, q.Name.Value)
		} else {
			query += ` AND (last_name || first_name = ? OR last_name = ? OR first_name = ?)`
			args = append(args, q.Name.Value, q.Name.Value, q.Name.Value)
		}
	}
	query += ` ORDER BY person_id LIMIT ? OFFSET ?`
	args = append(args, normLimit(q.Limit), normSkip(q.Skip))

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	return scanDocs(rows, q.Fields, "person_id")
}
