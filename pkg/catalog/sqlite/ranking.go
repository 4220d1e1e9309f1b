package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/aozorahack/pubserver2/pkg/catalog"
)

// PutRanking replaces a ranking. Entries are ranked in slice order.
func (s *Store) PutRanking(ctx context.Context, key catalog.RankingKey, entries []catalog.RankingEntry) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM rankings WHERE kind=? AND year=? AND month=?`,
		key.Kind, key.Year, key.Month,
	)
	if err != nil {
		return err
	}
	for i, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rankings (kind, year, month, rank, book_id, access) VALUES (?, ?, ?, ?, ?, ?)`,
			key.Kind, key.Year, key.Month, i+1, e.BookID, e.Access,
		)
		if err != nil {
			return fmt.Errorf("put ranking %s/%d/%d: %w", key.Kind, key.Year, key.Month, err)
		}
	}
	return tx.Commit()
}

// Ranking returns a ranking with titles and author names filled in from
// the book documents. An unknown ranking is catalog.ErrNotFound.
func (s *Store) Ranking(ctx context.Context, key catalog.RankingKey) ([]catalog.RankingEntry, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT r.book_id, r.access, b.doc
		 FROM rankings r LEFT JOIN books b ON b.book_id = r.book_id
		 WHERE r.kind=? AND r.year=? AND r.month=?
		 ORDER BY r.rank`,
		key.Kind, key.Year, key.Month,
	)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}
	defer rows.Close()

	var entries []catalog.RankingEntry
	for rows.Next() {
		var (
			e   catalog.RankingEntry
			doc sql.NullString
		)
		if err := rows.Scan(&e.BookID, &e.Access, &doc); err != nil {
			return nil, err
		}
		e.Authors = []string{}
		if doc.Valid {
			r := gjson.Parse(doc.String)
			e.Title = r.Get("title").String()
			r.Get("authors").ForEach(func(_, a gjson.Result) bool {
				e.Authors = append(e.Authors, a.Get("last_name").String()+" "+a.Get("first_name").String())
				return true
			})
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, catalog.ErrNotFound
	}
	return entries, nil
}
