// Package events publishes per-dispatch outcome records to Kafka.
package events

import (
	"time"

	"github.com/acme/autodialer/internal/domain"
)

// DispatchEvent describes one finished call attempt.
type DispatchEvent struct {
	JobID       string           `json:"job_id"`
	PhoneNumber string           `json:"phone_number"`
	Priority    domain.Priority  `json:"priority"`
	Purpose     string           `json:"purpose"`
	Status      domain.JobStatus `json:"status"`
	Attempt     int              `json:"attempt"`
	MaxAttempts int              `json:"max_attempts"`
	Connected   bool             `json:"connected"`
	DurationSec int              `json:"duration_sec"`
	Outcome     string           `json:"outcome"`
	Notes       string           `json:"notes,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// NewDispatchEvent builds an event from a job whose call result is set.
func NewDispatchEvent(job domain.CallJob, at time.Time) DispatchEvent {
	evt := DispatchEvent{
		JobID:       job.ID,
		PhoneNumber: job.PhoneNumber,
		Priority:    job.Priority,
		Purpose:     job.Purpose,
		Status:      job.Status,
		Attempt:     job.CurrentAttempts,
		MaxAttempts: job.MaxAttempts,
		OccurredAt:  at.UTC(),
	}
	if r := job.CallResult; r != nil {
		evt.Connected = r.Connected
		evt.DurationSec = r.Duration
		evt.Outcome = r.Outcome
		evt.Notes = r.Notes
	}
	return evt
}
