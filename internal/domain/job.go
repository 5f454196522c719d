package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/acme/autodialer/pkg/errors"
)

// Priority ranks jobs for dispatch selection.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Weight returns the ordinal weight used for selection (low=1..high=3).
// Unknown priorities weigh zero.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p.Weight() > 0
}

// JobStatus enumerates lifecycle states of a call job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCalling   JobStatus = "calling"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Outcome strings recorded on call results.
const (
	OutcomeAnswered = "answered"
	OutcomeNoAnswer = "no_answer"
	OutcomeError    = "error"
)

// CallResult records the outcome of a finished dispatch.
type CallResult struct {
	Connected bool   `json:"connected"`
	Duration  int    `json:"duration"`
	Outcome   string `json:"outcome"`
	Notes     string `json:"notes"`
}

// CallJob is one unit of scheduled outbound calling work.
type CallJob struct {
	ID              string      `json:"id"`
	PhoneNumber     string      `json:"phoneNumber"`
	ContactName     string      `json:"contactName,omitempty"`
	Priority        Priority    `json:"priority"`
	ScheduledTime   *time.Time  `json:"scheduledTime,omitempty"`
	MaxAttempts     int         `json:"maxAttempts"`
	CurrentAttempts int         `json:"currentAttempts"`
	Status          JobStatus   `json:"status"`
	Purpose         string      `json:"purpose"`
	ConsentVerified bool        `json:"consentVerified"`
	LastAttempt     *time.Time  `json:"lastAttempt,omitempty"`
	CallResult      *CallResult `json:"callResult,omitempty"`
}

// Eligible reports whether the job may be dispatched.
func (j CallJob) Eligible() bool {
	return j.Status == JobStatusPending && j.CurrentAttempts < j.MaxAttempts
}

// AttemptedOn reports whether the last dispatch happened on the same
// calendar date as day, compared in day's location.
func (j CallJob) AttemptedOn(day time.Time) bool {
	if j.LastAttempt == nil {
		return false
	}
	la := j.LastAttempt.In(day.Location())
	y1, m1, d1 := la.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Clone returns a deep copy so callers never share pointers with the store.
func (j CallJob) Clone() CallJob {
	out := j
	if j.ScheduledTime != nil {
		t := *j.ScheduledTime
		out.ScheduledTime = &t
	}
	if j.LastAttempt != nil {
		t := *j.LastAttempt
		out.LastAttempt = &t
	}
	if j.CallResult != nil {
		r := *j.CallResult
		out.CallResult = &r
	}
	return out
}

// NewJob is the caller-supplied part of a CallJob.
type NewJob struct {
	PhoneNumber     string
	ContactName     string
	Priority        Priority
	ScheduledTime   *time.Time
	MaxAttempts     int
	Purpose         string
	ConsentVerified bool
}

// Normalize trims free-text fields and defaults a blank priority to medium.
func (n NewJob) Normalize() NewJob {
	n.PhoneNumber = strings.TrimSpace(n.PhoneNumber)
	n.ContactName = strings.TrimSpace(n.ContactName)
	n.Purpose = strings.TrimSpace(n.Purpose)
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	return n
}

// Validate checks the minimum a job needs to be auditable and dispatchable.
func (n NewJob) Validate() error {
	if n.PhoneNumber == "" {
		return fmt.Errorf("%w: phone number is required", apperrors.ErrValidation)
	}
	if n.Purpose == "" {
		return fmt.Errorf("%w: purpose is required for %s", apperrors.ErrValidation, n.PhoneNumber)
	}
	if n.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", apperrors.ErrValidation, n.MaxAttempts)
	}
	if !n.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", apperrors.ErrValidation, n.Priority)
	}
	return nil
}

// JobPatch carries a partial update. Nil fields are left unchanged; the id is
// deliberately absent.
type JobPatch struct {
	PhoneNumber     *string
	ContactName     *string
	Priority        *Priority
	ScheduledTime   *time.Time
	MaxAttempts     *int
	CurrentAttempts *int
	Status          *JobStatus
	Purpose         *string
	ConsentVerified *bool
	LastAttempt     *time.Time
	CallResult      *CallResult
}

// Apply merges the patch into job.
func (p JobPatch) Apply(job *CallJob) {
	if p.PhoneNumber != nil {
		job.PhoneNumber = *p.PhoneNumber
	}
	if p.ContactName != nil {
		job.ContactName = *p.ContactName
	}
	if p.Priority != nil {
		job.Priority = *p.Priority
	}
	if p.ScheduledTime != nil {
		t := *p.ScheduledTime
		job.ScheduledTime = &t
	}
	if p.MaxAttempts != nil {
		job.MaxAttempts = *p.MaxAttempts
	}
	if p.CurrentAttempts != nil {
		job.CurrentAttempts = *p.CurrentAttempts
	}
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.Purpose != nil {
		job.Purpose = *p.Purpose
	}
	if p.ConsentVerified != nil {
		job.ConsentVerified = *p.ConsentVerified
	}
	if p.LastAttempt != nil {
		t := *p.LastAttempt
		job.LastAttempt = &t
	}
	if p.CallResult != nil {
		r := *p.CallResult
		job.CallResult = &r
	}
}
