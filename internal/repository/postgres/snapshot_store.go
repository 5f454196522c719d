// Package postgres stores dialer snapshots in a shared Postgres database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/acme/autodialer/internal/repository"
)

// Schema creates the snapshot table.
const Schema = `CREATE TABLE IF NOT EXISTS dialer_snapshots (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// SnapshotStore implements repository.KVStore over the dialer_snapshots table.
type SnapshotStore struct {
	db *sqlx.DB
}

var _ repository.KVStore = (*SnapshotStore)(nil)

// NewSnapshotStore builds the store.
func NewSnapshotStore(db *sqlx.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// EnsureSchema creates the snapshot table when missing.
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("snapshot store: ensure schema: %w", err)
	}
	return nil
}

type snapshotRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// LoadJSON implements repository.KVStore.
func (s *SnapshotStore) LoadJSON(ctx context.Context, key string) (string, bool, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, `SELECT key, value FROM dialer_snapshots WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("snapshot store: load %s: %w", key, err)
	}
	return row.Value, true, nil
}

// SaveJSON implements repository.KVStore.
func (s *SnapshotStore) SaveJSON(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO dialer_snapshots (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("snapshot store: save %s: %w", key, err)
	}
	return nil
}

// RemoveKeys implements repository.KVStore. All keys go in one statement.
func (s *SnapshotStore) RemoveKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dialer_snapshots WHERE key = ANY($1)`, keys); err != nil {
		return fmt.Errorf("snapshot store: remove keys: %w", err)
	}
	return nil
}
