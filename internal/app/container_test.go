package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/acme/autodialer/internal/clock"
	"github.com/acme/autodialer/internal/domain"
	apperrors "github.com/acme/autodialer/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestBuildSQLiteBackend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "dialer.db")
	path := writeConfig(t, "storage:\n  backend: sqlite\n  sqlite_path: "+dbPath+"\ndialer:\n  time_zone: UTC\n")

	ctx := context.Background()
	c, err := Build(ctx, path)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close(ctx)

	if c.SQLite == nil || c.KV == nil || c.Attempts == nil {
		t.Fatalf("sqlite backend not wired: %+v", c)
	}
	if c.Publisher != nil || c.Lease != nil || c.Scylla != nil {
		t.Fatalf("optional components should stay disabled")
	}

	// Tuesday inside default business hours.
	c.Clock = clock.Fake(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC))

	svc, err := c.Dialer(ctx, nil)
	if err != nil {
		t.Fatalf("dialer: %v", err)
	}
	again, _ := c.Dialer(ctx, nil)
	if svc != again {
		t.Fatalf("dialer should be built once")
	}

	res, err := svc.Enqueue(ctx, []domain.NewJob{{PhoneNumber: "+1", Purpose: "reminder", ConsentVerified: true, MaxAttempts: 1}})
	if err != nil || !res.Accepted {
		t.Fatalf("enqueue: %+v %v", res, err)
	}
	if c.Privacy(ctx) != c.Privacy(ctx) {
		t.Fatalf("privacy registry should be built once")
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: floppy\n")
	_, err := Build(context.Background(), path)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
