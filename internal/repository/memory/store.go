// Package memory provides process-local stores for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/acme/autodialer/internal/repository"
)

// Store implements repository.KVStore and repository.AttemptLog in memory.
type Store struct {
	mu       sync.RWMutex
	values   map[string]string
	attempts map[string][]repository.Attempt
}

var (
	_ repository.KVStore    = (*Store)(nil)
	_ repository.AttemptLog = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		values:   make(map[string]string),
		attempts: make(map[string][]repository.Attempt),
	}
}

// LoadJSON implements repository.KVStore.
func (s *Store) LoadJSON(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// SaveJSON implements repository.KVStore.
func (s *Store) SaveJSON(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// RemoveKeys implements repository.KVStore.
func (s *Store) RemoveKeys(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// AppendAttempt implements repository.AttemptLog.
func (s *Store) AppendAttempt(_ context.Context, a repository.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.JobID] = append(s.attempts[a.JobID], a)
	return nil
}

// ListAttempts implements repository.AttemptLog.
func (s *Store) ListAttempts(_ context.Context, jobID string, limit int) ([]repository.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.attempts[jobID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]repository.Attempt(nil), list...), nil
}
