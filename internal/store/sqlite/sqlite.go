package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quantfold/deskd/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lifecycle_journal(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			pid INTEGER NOT NULL,
			reason TEXT NULL,
			at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_journal_name ON lifecycle_journal(name);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_journal_at ON lifecycle_journal(at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) RecordTransition(ctx context.Context, t store.Transition) error {
	var reason sql.NullString
	if t.Reason != "" {
		reason = sql.NullString{String: t.Reason, Valid: true}
	}
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lifecycle_journal(name, from_state, to_state, pid, reason, at)
		VALUES(?, ?, ?, ?, ?, ?);`,
		t.Name, t.From, t.To, t.PID, reason, at.UTC())
	return err
}

func (s *DB) Recent(ctx context.Context, name string, limit int) ([]store.Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, name, from_state, to_state, pid, reason, at
		FROM lifecycle_journal`
	args := []any{}
	if name != "" {
		q += ` WHERE name = ?`
		args = append(args, name)
	}
	q += ` ORDER BY id DESC LIMIT ?;`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Transition, 0, limit)
	for rows.Next() {
		var t store.Transition
		var reason sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &t.From, &t.To, &t.PID, &reason, &t.At); err != nil {
			return nil, err
		}
		if reason.Valid {
			t.Reason = reason.String
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *DB) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lifecycle_journal WHERE at < ?;`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
