// Package sqlite keeps dialer snapshots and attempt history in the
// device-local SQLite file.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/acme/autodialer/internal/infra/db"
	"github.com/acme/autodialer/internal/repository"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS attempts (
	job_id         TEXT NOT NULL,
	attempt_number INTEGER NOT NULL,
	phone_number   TEXT NOT NULL,
	status         TEXT NOT NULL,
	connected      INTEGER NOT NULL,
	duration_sec   INTEGER NOT NULL,
	outcome        TEXT NOT NULL,
	notes          TEXT,
	created_at     INTEGER NOT NULL,
	PRIMARY KEY (job_id, attempt_number, created_at)
);
`

// Store implements repository.KVStore and repository.AttemptLog.
type Store struct {
	db *db.SQLite
}

var (
	_ repository.KVStore    = (*Store)(nil)
	_ repository.AttemptLog = (*Store)(nil)
)

// New builds a store on an opened database. The database must have been
// opened with Schema.
func New(database *db.SQLite) *Store {
	return &Store{db: database}
}

// LoadJSON implements repository.KVStore.
func (s *Store) LoadJSON(ctx context.Context, key string) (string, bool, error) {
	conn, err := s.db.Take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("sqlite store: load %s: %w", key, err)
	}
	defer s.db.Put(conn)

	var (
		value string
		found bool
	)
	err = sqlitex.Execute(conn, `SELECT value FROM kv WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("sqlite store: load %s: %w", key, err)
	}
	return value, found, nil
}

// SaveJSON implements repository.KVStore.
func (s *Store) SaveJSON(ctx context.Context, key, value string) error {
	conn, err := s.db.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: save %s: %w", key, err)
	}
	defer s.db.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{key, value, time.Now().UnixMilli()}},
	)
	if err != nil {
		return fmt.Errorf("sqlite store: save %s: %w", key, err)
	}
	return nil
}

// RemoveKeys implements repository.KVStore. All keys go in one transaction.
func (s *Store) RemoveKeys(ctx context.Context, keys ...string) (err error) {
	if len(keys) == 0 {
		return nil
	}
	conn, err := s.db.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: remove keys: %w", err)
	}
	defer s.db.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, key := range keys {
		if err = sqlitex.Execute(conn, `DELETE FROM kv WHERE key = ?`, &sqlitex.ExecOptions{Args: []any{key}}); err != nil {
			return fmt.Errorf("sqlite store: remove %s: %w", key, err)
		}
	}
	return nil
}

// AppendAttempt implements repository.AttemptLog.
func (s *Store) AppendAttempt(ctx context.Context, a repository.Attempt) error {
	conn, err := s.db.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: append attempt: %w", err)
	}
	defer s.db.Put(conn)

	err = sqlitex.Execute(conn, `INSERT OR REPLACE INTO attempts
		(job_id, attempt_number, phone_number, status, connected, duration_sec, outcome, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			a.JobID, a.AttemptNumber, a.PhoneNumber, a.Status, boolToInt(a.Connected),
			a.DurationSec, a.Outcome, a.Notes, a.CreatedAt.UnixMilli(),
		}},
	)
	if err != nil {
		return fmt.Errorf("sqlite store: append attempt %s/%d: %w", a.JobID, a.AttemptNumber, err)
	}
	return nil
}

// ListAttempts implements repository.AttemptLog.
func (s *Store) ListAttempts(ctx context.Context, jobID string, limit int) ([]repository.Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	conn, err := s.db.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list attempts: %w", err)
	}
	defer s.db.Put(conn)

	var out []repository.Attempt
	err = sqlitex.Execute(conn, `SELECT attempt_number, phone_number, status, connected, duration_sec, outcome, notes, created_at
		FROM attempts WHERE job_id = ? ORDER BY created_at, attempt_number LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{jobID, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, repository.Attempt{
					JobID:         jobID,
					AttemptNumber: stmt.ColumnInt(0),
					PhoneNumber:   stmt.ColumnText(1),
					Status:        stmt.ColumnText(2),
					Connected:     stmt.ColumnInt(3) != 0,
					DurationSec:   stmt.ColumnInt(4),
					Outcome:       stmt.ColumnText(5),
					Notes:         stmt.ColumnText(6),
					CreatedAt:     time.UnixMilli(stmt.ColumnInt64(7)).UTC(),
				})
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list attempts %s: %w", jobID, err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
