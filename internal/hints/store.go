// Package hints remembers which first-time hints a learner has already
// seen, so each one is shown once per installation.
package hints

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned by Store methods after Close.
var ErrClosed = errors.New("hint store closed")

const schema = `
CREATE TABLE IF NOT EXISTS seen_hints (
	term    TEXT PRIMARY KEY,
	seen_at TEXT NOT NULL
)`

// Store persists seen flags in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. The special path
// ":memory:" keeps the flags for the lifetime of the process only.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create hint db dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// An in-memory database lives as long as its single connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate hint store: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Seen reports whether term has been marked.
func (s *Store) Seen(ctx context.Context, term string) (bool, error) {
	if s.db == nil {
		return false, ErrClosed
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM seen_hints WHERE term = ?`, term).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query hint %q: %w", term, err)
	}
	return true, nil
}

// MarkSeen records term. It reports true only for the call that inserted the
// row; marking an already seen term is a no-op.
func (s *Store) MarkSeen(ctx context.Context, term string) (bool, error) {
	if s.db == nil {
		return false, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO seen_hints(term, seen_at) VALUES (?, ?) ON CONFLICT(term) DO NOTHING`,
		term, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("mark hint %q: %w", term, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark hint %q: %w", term, err)
	}
	return n == 1, nil
}

// SeenAt returns when term was first marked.
func (s *Store) SeenAt(ctx context.Context, term string) (time.Time, bool, error) {
	if s.db == nil {
		return time.Time{}, false, ErrClosed
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT seen_at FROM seen_hints WHERE term = ?`, term).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, fmt.Errorf("query hint %q: %w", term, err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse seen_at for %q: %w", term, err)
	}
	return at, true, nil
}

// Reset forgets every seen flag.
func (s *Store) Reset(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM seen_hints`); err != nil {
		return fmt.Errorf("reset hints: %w", err)
	}
	return nil
}
