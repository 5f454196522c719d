// Package queue holds the in-memory call job collection.
package queue

import (
	"sync"

	"github.com/google/uuid"

	"github.com/acme/autodialer/internal/domain"
)

// Store is an insertion-ordered set of call jobs keyed by id. All methods are
// safe for concurrent use and return copies.
type Store struct {
	mu    sync.RWMutex
	order []string
	jobs  map[string]*domain.CallJob
	newID func() string
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{
		jobs:  make(map[string]*domain.CallJob),
		newID: func() string { return uuid.NewString() },
	}
}

// Add inserts the given jobs as pending with zero attempts. Inputs are assumed
// to be validated.
func (s *Store) Add(inputs []domain.NewJob) []domain.CallJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]domain.CallJob, 0, len(inputs))
	for _, in := range inputs {
		job := &domain.CallJob{
			ID:              s.newID(),
			PhoneNumber:     in.PhoneNumber,
			ContactName:     in.ContactName,
			Priority:        in.Priority,
			MaxAttempts:     in.MaxAttempts,
			Status:          domain.JobStatusPending,
			Purpose:         in.Purpose,
			ConsentVerified: in.ConsentVerified,
		}
		if in.ScheduledTime != nil {
			t := *in.ScheduledTime
			job.ScheduledTime = &t
		}
		s.order = append(s.order, job.ID)
		s.jobs[job.ID] = job
		added = append(added, job.Clone())
	}
	return added
}

// Remove deletes a job. It reports whether the id was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Update merges patch into the job with id and returns the result.
func (s *Store) Update(id string, patch domain.JobPatch) (domain.CallJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.CallJob{}, false
	}
	patch.Apply(job)
	return job.Clone(), true
}

// Get returns the job with id.
func (s *Store) Get(id string) (domain.CallJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.CallJob{}, false
	}
	return job.Clone(), true
}

// List returns all jobs in insertion order.
func (s *Store) List() []domain.CallJob {
	return s.Filter(func(domain.CallJob) bool { return true })
}

// Filter returns the jobs matching pred in insertion order.
func (s *Store) Filter(pred func(domain.CallJob) bool) []domain.CallJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CallJob, 0, len(s.order))
	for _, id := range s.order {
		job := s.jobs[id]
		if pred(*job) {
			out = append(out, job.Clone())
		}
	}
	return out
}

// Eligible returns the jobs that may still be dispatched.
func (s *Store) Eligible() []domain.CallJob {
	return s.Filter(domain.CallJob.Eligible)
}

// Len returns the number of jobs held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Replace swaps the whole collection, keeping the given order. Later
// duplicates of an id are dropped.
func (s *Store) Replace(jobs []domain.CallJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = make([]string, 0, len(jobs))
	s.jobs = make(map[string]*domain.CallJob, len(jobs))
	for _, job := range jobs {
		if _, dup := s.jobs[job.ID]; dup {
			continue
		}
		c := job.Clone()
		s.order = append(s.order, c.ID)
		s.jobs[c.ID] = &c
	}
}

// Next returns the eligible job that should be dispatched first: the highest
// priority wins, and within a priority a job scheduled strictly earlier than
// the current pick displaces it when both carry a scheduled time. Remaining
// ties go to the job inserted first.
func (s *Store) Next() (domain.CallJob, bool) {
	return Select(s.Eligible())
}

// Select applies the dispatch ordering to jobs without consulting a store.
func Select(jobs []domain.CallJob) (domain.CallJob, bool) {
	if len(jobs) == 0 {
		return domain.CallJob{}, false
	}
	best := jobs[0]
	for _, candidate := range jobs[1:] {
		if dispatchesBefore(candidate, best) {
			best = candidate
		}
	}
	return best, true
}

func dispatchesBefore(a, b domain.CallJob) bool {
	if wa, wb := a.Priority.Weight(), b.Priority.Weight(); wa != wb {
		return wa > wb
	}
	if a.ScheduledTime != nil && b.ScheduledTime != nil {
		return a.ScheduledTime.Before(*b.ScheduledTime)
	}
	return false
}
