package db

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/acme/autodialer/internal/config"
)

// MySQL wraps a sqlx handle on the mysql driver.
type MySQL struct {
	db *sqlx.DB
}

// NewMySQL opens the pool described by cfg and verifies connectivity.
func NewMySQL(ctx context.Context, cfg config.MySQLConfig) (*MySQL, error) {
	parsed, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	parsed.ParseTime = true

	db, err := sqlx.Open("mysql", parsed.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &MySQL{db: db}, nil
}

// DB exposes the sqlx handle.
func (m *MySQL) DB() *sqlx.DB {
	return m.db
}

// Close releases the pool.
func (m *MySQL) Close() error {
	return m.db.Close()
}
