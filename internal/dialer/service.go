// Package dialer owns the call queue, the calling policy and the statistics,
// and runs the sequential dispatch loop.
package dialer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/acme/autodialer/internal/clock"
	"github.com/acme/autodialer/internal/compliance"
	"github.com/acme/autodialer/internal/domain"
	"github.com/acme/autodialer/internal/queue"
	"github.com/acme/autodialer/internal/repository"
	"github.com/acme/autodialer/internal/telephony"
	apperrors "github.com/acme/autodialer/pkg/errors"
	"github.com/acme/autodialer/pkg/logger"
)

const defaultSaveTimeout = 5 * time.Second

// Options wires a Service. KV and Provider are required.
type Options struct {
	KV        repository.KVStore
	Provider  telephony.Provider
	Clock     clock.Clock
	Location  *time.Location
	Logger    *logger.Logger
	Confirmer Confirmer
	Notifier  Notifier
	Publisher EventPublisher
	Attempts  repository.AttemptLog
	Lease     RunLease
	// SaveTimeout bounds each best-effort persistence write.
	SaveTimeout time.Duration
}

// Service is the process-wide dialer state and its operations.
type Service struct {
	store     *queue.Store
	kv        repository.KVStore
	provider  telephony.Provider
	clock     clock.Clock
	loc       *time.Location
	log       *logger.Logger
	confirmer Confirmer
	notifier  Notifier
	publisher EventPublisher
	attempts  repository.AttemptLog
	lease     RunLease
	timeout   time.Duration

	// saveMu serialises snapshot writes so a later snapshot is never
	// overwritten by an earlier one. Never acquired while holding mu.
	saveMu sync.Mutex

	// leaseMu orders lease acquisition in Start against the release by an
	// exiting run. Acquired before mu.
	leaseMu sync.Mutex

	mu       sync.Mutex
	settings domain.Settings
	stats    domain.Statistics
	active   bool
	current  *domain.CallJob
	run      *run
	runSeq   uint64
}

// run is one Start..Stop (or queue exhaustion) cycle of the loop.
type run struct {
	id       uint64
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight string
}

// New builds the service and loads the persisted snapshot. Load failures are
// logged and leave defaults in place.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.KV == nil {
		return nil, fmt.Errorf("%w: dialer: key/value store is required", apperrors.ErrValidation)
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("%w: dialer: outcome provider is required", apperrors.ErrValidation)
	}

	s := &Service{
		store:     queue.NewStore(),
		kv:        opts.KV,
		provider:  opts.Provider,
		clock:     opts.Clock,
		loc:       opts.Location,
		log:       opts.Logger,
		confirmer: opts.Confirmer,
		notifier:  opts.Notifier,
		publisher: opts.Publisher,
		attempts:  opts.Attempts,
		lease:     opts.Lease,
		timeout:   opts.SaveTimeout,
		settings:  domain.DefaultSettings(),
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.Named("dialer")
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.timeout <= 0 {
		s.timeout = defaultSaveTimeout
	}

	s.load(ctx)
	return s, nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(s.loc)
}

// EnqueueResult reports whether a batch was accepted.
type EnqueueResult struct {
	Accepted bool             `json:"accepted"`
	Jobs     []domain.CallJob `json:"jobs,omitempty"`
	Issues   []string         `json:"issues,omitempty"`
}

// Enqueue validates and adds a batch of jobs. The batch is refused as a whole
// when the policy check over the existing queue plus the batch fails, or when
// the batch would exceed the daily quota. Malformed input is an
// ErrValidation error; a refusal is a result, not an error.
func (s *Service) Enqueue(ctx context.Context, inputs []domain.NewJob) (EnqueueResult, error) {
	if len(inputs) == 0 {
		return EnqueueResult{}, fmt.Errorf("%w: no jobs to enqueue", apperrors.ErrValidation)
	}
	normalized := make([]domain.NewJob, 0, len(inputs))
	for _, in := range inputs {
		in = in.Normalize()
		if err := in.Validate(); err != nil {
			return EnqueueResult{}, err
		}
		normalized = append(normalized, in)
	}

	s.mu.Lock()
	now := s.now()
	existing := s.store.List()

	candidates := append([]domain.CallJob(nil), existing...)
	for _, in := range normalized {
		candidates = append(candidates, domain.CallJob{
			PhoneNumber:     in.PhoneNumber,
			Priority:        in.Priority,
			MaxAttempts:     in.MaxAttempts,
			Status:          domain.JobStatusPending,
			Purpose:         in.Purpose,
			ConsentVerified: in.ConsentVerified,
		})
	}
	if res := compliance.Evaluate(s.settings, candidates, now); !res.IsCompliant {
		s.mu.Unlock()
		s.log.Info("enqueue refused", zap.Int("batch", len(inputs)), zap.Strings("issues", res.Issues))
		return EnqueueResult{Issues: res.Issues}, nil
	}
	if res := compliance.CheckEnqueue(s.settings, existing, len(normalized), now); !res.IsCompliant {
		s.mu.Unlock()
		s.log.Info("enqueue over daily quota", zap.Int("batch", len(inputs)), zap.Strings("issues", res.Issues))
		return EnqueueResult{Issues: res.Issues}, nil
	}

	added := s.store.Add(normalized)
	s.mu.Unlock()

	s.log.Info("jobs enqueued", zap.Int("count", len(added)))
	s.persistQueue(ctx)
	return EnqueueResult{Accepted: true, Jobs: added}, nil
}

// Remove deletes a job. It reports whether the job existed. Removing the job
// being dialled discards its outcome.
func (s *Service) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	removed := s.store.Remove(id)
	if removed && s.current != nil && s.current.ID == id {
		s.current = nil
	}
	s.mu.Unlock()
	if !removed {
		return false
	}
	s.persistQueue(ctx)
	return true
}

// Update merges patch into a job. A patch that would leave the attempt
// counters out of range (maxAttempts below one, or currentAttempts negative
// or above maxAttempts) is ErrValidation and changes nothing.
func (s *Service) Update(ctx context.Context, id string, patch domain.JobPatch) (domain.CallJob, error) {
	s.mu.Lock()
	existing, ok := s.store.Get(id)
	if !ok {
		s.mu.Unlock()
		return domain.CallJob{}, fmt.Errorf("%w: job %s", apperrors.ErrNotFound, id)
	}
	candidate := existing.Clone()
	patch.Apply(&candidate)
	if candidate.MaxAttempts < 1 {
		s.mu.Unlock()
		return domain.CallJob{}, fmt.Errorf("%w: job %s: maxAttempts must be at least 1", apperrors.ErrValidation, id)
	}
	if candidate.CurrentAttempts < 0 || candidate.CurrentAttempts > candidate.MaxAttempts {
		s.mu.Unlock()
		return domain.CallJob{}, fmt.Errorf("%w: job %s: currentAttempts %d outside 0..%d",
			apperrors.ErrValidation, id, candidate.CurrentAttempts, candidate.MaxAttempts)
	}
	job, ok := s.store.Update(id, patch)
	s.mu.Unlock()
	if !ok {
		return domain.CallJob{}, fmt.Errorf("%w: job %s", apperrors.ErrNotFound, id)
	}
	s.persistQueue(ctx)
	return job, nil
}

// Cancel marks a pending job cancelled. Jobs in any other state are a
// conflict.
func (s *Service) Cancel(ctx context.Context, id string) (domain.CallJob, error) {
	s.mu.Lock()
	job, ok := s.store.Get(id)
	if !ok {
		s.mu.Unlock()
		return domain.CallJob{}, fmt.Errorf("%w: job %s", apperrors.ErrNotFound, id)
	}
	if job.Status != domain.JobStatusPending {
		s.mu.Unlock()
		return domain.CallJob{}, fmt.Errorf("%w: job %s is %s", apperrors.ErrConflict, id, job.Status)
	}
	cancelled := domain.JobStatusCancelled
	job, _ = s.store.Update(id, domain.JobPatch{Status: &cancelled})
	s.mu.Unlock()

	s.persistQueue(ctx)
	return job, nil
}

// Get returns one job.
func (s *Service) Get(id string) (domain.CallJob, bool) {
	return s.store.Get(id)
}

// Queue returns every job in insertion order.
func (s *Service) Queue() []domain.CallJob {
	return s.store.List()
}

// Eligible returns the jobs the loop may still dispatch.
func (s *Service) Eligible() []domain.CallJob {
	return s.store.Eligible()
}

// ValidateCompliance evaluates the policy over the current queue.
func (s *Service) ValidateCompliance() compliance.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return compliance.Evaluate(s.settings, s.store.List(), s.now())
}

// Settings returns the current policy.
func (s *Service) Settings() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// UpdateSettings merges patch into the policy and persists it.
func (s *Service) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) domain.Settings {
	s.mu.Lock()
	s.settings = patch.Apply(s.settings)
	updated := s.settings.Clone()
	s.mu.Unlock()

	s.persistSettings(ctx)
	return updated
}

// Statistics returns the aggregate counters.
func (s *Service) Statistics() domain.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// IsActive reports whether a run is in progress.
func (s *Service) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// CurrentCall returns the job being dialled, if any.
func (s *Service) CurrentCall() (domain.CallJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.CallJob{}, false
	}
	return s.current.Clone(), true
}

// Export renders queue, statistics and settings as an indented JSON document.
func (s *Service) Export() (string, error) {
	s.mu.Lock()
	doc := repository.Export{
		Queue:      s.store.List(),
		Statistics: s.stats,
		Settings:   s.settings.Clone(),
		ExportDate: s.clock.Now(),
	}
	s.mu.Unlock()
	return repository.EncodeExport(doc)
}

// History returns the recorded attempts for a job.
func (s *Service) History(ctx context.Context, id string, limit int) ([]repository.Attempt, error) {
	if s.attempts == nil {
		return nil, fmt.Errorf("%w: attempt history is not configured", apperrors.ErrUnavailable)
	}
	return s.attempts.ListAttempts(ctx, id, limit)
}
