// Package repository defines the persistence ports used by the dialer and the
// privacy registry, plus the JSON snapshot codec shared by every backend.
package repository

import (
	"context"
	"time"

	apperrors "github.com/acme/autodialer/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
)

// Storage keys.
const (
	KeyQueue           = "auto_dialer_queue"
	KeySettings        = "auto_dialer_settings"
	KeyStatistics      = "auto_dialer_stats"
	KeyPrivacySettings = "privacy_settings"
	KeyConsentRecords  = "consent_records"
)

// KVStore is a string key/value store holding JSON documents.
type KVStore interface {
	// LoadJSON returns the stored value and whether the key exists.
	LoadJSON(ctx context.Context, key string) (string, bool, error)
	SaveJSON(ctx context.Context, key, value string) error
	// RemoveKeys deletes keys; missing keys are ignored.
	RemoveKeys(ctx context.Context, keys ...string) error
}

// Attempt is one dispatch in the append-only attempt history.
type Attempt struct {
	JobID         string    `json:"jobId"`
	AttemptNumber int       `json:"attemptNumber"`
	PhoneNumber   string    `json:"phoneNumber"`
	Status        string    `json:"status"`
	Connected     bool      `json:"connected"`
	DurationSec   int       `json:"durationSec"`
	Outcome       string    `json:"outcome"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AttemptLog persists dispatch history.
type AttemptLog interface {
	AppendAttempt(ctx context.Context, attempt Attempt) error
	// ListAttempts returns up to limit attempts for a job, oldest first.
	ListAttempts(ctx context.Context, jobID string, limit int) ([]Attempt, error)
}
