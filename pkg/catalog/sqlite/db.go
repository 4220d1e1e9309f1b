// Package sqlite implements the catalog store on SQLite via modernc.org/sqlite.
//
// Books, persons and workers are stored as their original JSON documents,
// next to the handful of columns that queries filter and sort on.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"runtime"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/aozorahack/pubserver2/pkg/catalog"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ catalog.Catalog = (*Store)(nil)

// Store implements catalog.Catalog using SQLite.
type Store struct {
	write *sql.DB // single-writer connection
	read  *sql.DB // multi-reader pool
}

// New opens a SQLite database, runs migrations, and returns a Store.
func New(dsn string) (*Store, error) {
	pragmas := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

	// :memory: needs a shared cache so both pools see the same data
	var fullDSN string
	if dsn == ":memory:" {
		fullDSN = "file::memory:?mode=memory&cache=shared&" + pragmas
	} else {
		fullDSN = "file:" + dsn + "?" + pragmas
	}

	write, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read db: %w", err)
	}
	read.SetMaxOpenConns(max(4, runtime.NumCPU()))

	if err := runMigrations(write); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &Store{write: write, read: read}, nil
}

// runMigrations applies embedded SQL migrations using goose.
func runMigrations(db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	_, err = provider.Up(context.Background())
	return err
}

// Ping verifies database connectivity by pinging the read pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.read.PingContext(ctx)
}

// Close closes both database connections.
func (s *Store) Close() error {
	return errors.Join(s.write.Close(), s.read.Close())
}

// notFoundErr translates sql.ErrNoRows to catalog.ErrNotFound.
func notFoundErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ErrNotFound
	}
	return err
}

func normLimit(limit int) int {
	if limit <= 0 {
		return catalog.DefaultLimit
	}
	return limit
}

func normSkip(skip int) int {
	return max(skip, 0)
}

// orderBy builds an ORDER BY clause from sort fields, accepting only
// columns present in allowed. tiebreak is appended so paging is stable.
func orderBy(fields []catalog.SortField, allowed map[string]string, fallback, tiebreak string) (string, error) {
	if len(fields) == 0 {
		return " ORDER BY " + fallback + ", " + tiebreak, nil
	}
	clause := " ORDER BY "
	for i, f := range fields {
		col, ok := allowed[f.Field]
		if !ok {
			return "", fmt.Errorf("%w: cannot sort by %q", catalog.ErrBadRequest, f.Field)
		}
		if i > 0 {
			clause += ", "
		}
		clause += col
		if f.Desc {
			clause += " DESC"
		}
	}
	return clause + ", " + tiebreak, nil
}

func scanDocs(rows *sql.Rows, fields []string, keep string) ([]json.RawMessage, error) {
	defer rows.Close()

	docs := []json.RawMessage{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, catalog.Project([]byte(doc), fields, keep))
	}
	return docs, rows.Err()
}
