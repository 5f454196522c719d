// Package scylla keeps the append-only dispatch history in Scylla/Cassandra.
package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/acme/autodialer/internal/repository"
)

// Schema creates the attempt history table. Rows are partitioned by job and
// clustered by attempt time.
const Schema = `CREATE TABLE IF NOT EXISTS dialer_attempts (
	job_id text,
	created_at timestamp,
	attempt_number int,
	phone_number text,
	status text,
	connected boolean,
	duration_sec int,
	outcome text,
	notes text,
	day date,
	PRIMARY KEY ((job_id), created_at, attempt_number)
) WITH CLUSTERING ORDER BY (created_at ASC, attempt_number ASC)`

// AttemptStore implements repository.AttemptLog.
type AttemptStore struct {
	session *gocql.Session
}

var _ repository.AttemptLog = (*AttemptStore)(nil)

// NewAttemptStore creates the store.
func NewAttemptStore(session *gocql.Session) *AttemptStore {
	return &AttemptStore{session: session}
}

// EnsureSchema creates the history table when missing.
func (s *AttemptStore) EnsureSchema(ctx context.Context) error {
	if err := s.session.Query(Schema).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt store: ensure schema: %w", err)
	}
	return nil
}

// AppendAttempt implements repository.AttemptLog.
func (s *AttemptStore) AppendAttempt(ctx context.Context, a repository.Attempt) error {
	createdAt := a.CreatedAt.UTC()
	if err := s.session.Query(`INSERT INTO dialer_attempts (job_id, created_at, attempt_number, phone_number, status, connected, duration_sec, outcome, notes, day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.JobID, createdAt, a.AttemptNumber, a.PhoneNumber, a.Status, a.Connected, a.DurationSec, a.Outcome, a.Notes, bucketDate(createdAt),
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("attempt store: append %s/%d: %w", a.JobID, a.AttemptNumber, err)
	}
	return nil
}

// ListAttempts implements repository.AttemptLog.
func (s *AttemptStore) ListAttempts(ctx context.Context, jobID string, limit int) ([]repository.Attempt, error) {
	if limit <= 0 {
		limit = 100
	}

	iter := s.session.Query(`SELECT created_at, attempt_number, phone_number, status, connected, duration_sec, outcome, notes
		FROM dialer_attempts WHERE job_id = ? LIMIT ?`, jobID, limit).WithContext(ctx).Iter()

	var (
		attempts  = make([]repository.Attempt, 0, limit)
		createdAt time.Time
		number    int
		phone     string
		status    string
		connected bool
		duration  int
		outcome   string
		notes     string
	)
	for iter.Scan(&createdAt, &number, &phone, &status, &connected, &duration, &outcome, &notes) {
		attempts = append(attempts, repository.Attempt{
			JobID:         jobID,
			AttemptNumber: number,
			PhoneNumber:   phone,
			Status:        status,
			Connected:     connected,
			DurationSec:   duration,
			Outcome:       outcome,
			Notes:         notes,
			CreatedAt:     createdAt.UTC(),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("attempt store: list %s: %w", jobID, err)
	}
	return attempts, nil
}

func bucketDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
