package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/aozorahack/pubserver2/pkg/catalog"
)

// PutWorker inserts or replaces a worker (volunteer input/proofreader) document.
func (s *Store) PutWorker(ctx context.Context, doc []byte) error {
	if !gjson.ValidBytes(doc) {
		return fmt.Errorf("%w: worker document is not valid JSON", catalog.ErrBadRequest)
	}
	r := gjson.ParseBytes(doc)
	id := r.Get("id").Int()
	if id <= 0 {
		return fmt.Errorf("%w: worker document has no id", catalog.ErrBadRequest)
	}
	_, err := s.write.ExecContext(ctx,
		`INSERT OR REPLACE INTO workers (id, name, doc) VALUES (?, ?, ?)`,
		id, r.Get("name").String(), string(doc),
	)
	if err != nil {
		return fmt.Errorf("put worker %d: %w", id, err)
	}
	return nil
}

// Worker returns a worker document.
func (s *Store) Worker(ctx context.Context, workerID int) (json.RawMessage, error) {
	var doc string
	err := s.read.QueryRowContext(ctx, `SELECT doc FROM workers WHERE id=?`, workerID).Scan(&doc)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return json.RawMessage(doc), nil
}

// Workers lists workers whose name matches q.Name.
func (s *Store) Workers(ctx context.Context, q catalog.WorkerQuery) ([]json.RawMessage, error) {
	query := `SELECT doc FROM workers WHERE 1=1`
	var args []any

	if !q.Name.IsZero() {
		if q.Name.Regexp {
			query += ` AND regexp(?, name)`
		} else {
			query += ` AND name=?`
		}
		args = append(args, q.Name.Value)
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, normLimit(q.Limit), normSkip(q.Skip))

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return scanDocs(rows, nil, "id")
}
