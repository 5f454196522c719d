// Package mysql stores dialer snapshots in a shared MySQL database.
package mysql

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
	snapshot_key VARCHAR(191) NOT NULL PRIMARY KEY,
	value        LONGTEXT NOT NULL,
	updated_at   TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

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

// LoadJSON implements repository.KVStore.
func (s *SnapshotStore) LoadJSON(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM dialer_snapshots WHERE snapshot_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("snapshot store: load %s: %w", key, err)
	}
	return value, true, nil
}

// SaveJSON implements repository.KVStore.
func (s *SnapshotStore) SaveJSON(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO dialer_snapshots (snapshot_key, value)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value)`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("snapshot store: save %s: %w", key, err)
	}
	return nil
}

// RemoveKeys implements repository.KVStore. The keys go in one statement.
func (s *SnapshotStore) RemoveKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM dialer_snapshots WHERE snapshot_key IN (?)`, keys)
	if err != nil {
		return fmt.Errorf("snapshot store: build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("snapshot store: remove keys: %w", err)
	}
	return nil
}
