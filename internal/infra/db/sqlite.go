package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const sqlitePoolSize = 4

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// SQLite wraps a pool of connections to the device-local database file.
type SQLite struct {
	pool *sqlitex.Pool
	path string
}

// NewSQLite opens the database at path, creating parent directories and the
// file when missing. schema runs once per connection after the pragmas.
func NewSQLite(path, schema string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: sqlitePoolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range sqlitePragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("sqlite: %s: %w", pragma, err)
				}
			}
			if schema == "" {
				return nil
			}
			if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
				return fmt.Errorf("sqlite: apply schema: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	return &SQLite{pool: pool, path: path}, nil
}

// Take borrows a connection. Callers must Put it back.
func (s *SQLite) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool.
func (s *SQLite) Put(conn *sqlite.Conn) {
	s.pool.Put(conn)
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes every connection in the pool.
func (s *SQLite) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite: close %s: %w", s.path, err)
	}
	return nil
}
