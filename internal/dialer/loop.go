package dialer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/autodialer/internal/compliance"
	"github.com/acme/autodialer/internal/domain"
	"github.com/acme/autodialer/internal/events"
	"github.com/acme/autodialer/internal/repository"
	apperrors "github.com/acme/autodialer/pkg/errors"
)

const tracerName = "autodialer.dialer"

// StartResult reports the outcome of a start request. Compliance carries the
// evaluation that gated it.
type StartResult struct {
	Started    bool              `json:"started"`
	Compliance compliance.Result `json:"compliance"`
}

// Start evaluates the policy over the queue, asks confirmer (or the
// configured Confirmer when nil) to acknowledge the legal notice and, on
// confirmation, launches the dispatch loop in the background. A refused
// policy check or a declined notice leave the service idle and are reported
// in the result. Starting while a run is active is ErrConflict.
func (s *Service) Start(ctx context.Context, confirmer Confirmer) (StartResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "dialer.start")
	defer span.End()

	if confirmer == nil {
		confirmer = s.confirmer
	}
	if confirmer == nil {
		return StartResult{}, fmt.Errorf("%w: dialer: a confirmer is required to start", apperrors.ErrValidation)
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return StartResult{}, fmt.Errorf("%w: dialer is already running", apperrors.ErrConflict)
	}
	verdict := compliance.Evaluate(s.settings, s.store.List(), s.now())
	s.mu.Unlock()

	span.SetAttributes(attribute.Bool("compliance.ok", verdict.IsCompliant))
	if !verdict.IsCompliant {
		s.log.Info("start refused by compliance check", zap.Strings("issues", verdict.Issues))
		return StartResult{Compliance: verdict}, nil
	}

	confirmed, err := confirmer.Confirm(ctx, StartNoticeTitle, StartNotice)
	if err != nil {
		span.RecordError(err)
		return StartResult{Compliance: verdict}, fmt.Errorf("dialer: confirm start: %w", err)
	}
	if !confirmed {
		s.log.Info("start declined by operator")
		return StartResult{Compliance: verdict}, nil
	}

	s.leaseMu.Lock()
	defer s.leaseMu.Unlock()
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx)
		if err != nil {
			span.RecordError(err)
			return StartResult{Compliance: verdict}, fmt.Errorf("%w: dialer: %v", apperrors.ErrUnavailable, err)
		}
		if !ok {
			return StartResult{Compliance: verdict}, fmt.Errorf("%w: another process holds the run lease", apperrors.ErrConflict)
		}
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return StartResult{}, fmt.Errorf("%w: dialer is already running", apperrors.ErrConflict)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runSeq++
	r := &run{id: s.runSeq, cancel: cancel, done: make(chan struct{})}
	s.run = r
	s.active = true
	s.mu.Unlock()

	s.log.Info("dialer started", zap.Uint64("run", r.id), zap.Int("eligible", len(s.store.Eligible())))
	go s.loop(runCtx, r)

	return StartResult{Started: true, Compliance: verdict}, nil
}

// Stop ends the current run without waiting for it. The job being dialled,
// if any, returns to pending with its attempt counter kept, and its eventual
// outcome is discarded. It reports whether a run was active.
func (s *Service) Stop(ctx context.Context) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	r := s.run
	s.active = false
	s.current = nil
	reverted := false
	if r.inFlight != "" {
		if job, ok := s.store.Get(r.inFlight); ok && job.Status == domain.JobStatusCalling {
			pending := domain.JobStatusPending
			s.store.Update(job.ID, domain.JobPatch{Status: &pending})
			reverted = true
		}
		r.inFlight = ""
	}
	r.cancel()
	s.mu.Unlock()

	s.log.Info("dialer stopped", zap.Uint64("run", r.id), zap.Bool("reverted_in_flight", reverted))
	if reverted {
		s.persistQueue(ctx)
	}
	return true
}

// Wait blocks until the most recent run's loop goroutine has exited or ctx
// is done. It returns immediately when no run was ever started.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the most recent run's loop exits, or
// nil when no run was ever started.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return nil
	}
	return s.run.done
}

func (s *Service) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()
	defer s.releaseLease(ctx, r)

	for {
		if !s.refreshLease(ctx, r) {
			return
		}
		job, ok := s.beginDispatch(ctx, r)
		if !ok {
			return
		}
		s.dispatch(ctx, r, job)
		if !s.pause(ctx, r) {
			return
		}
	}
}

// isCurrent must be called with mu held.
func (s *Service) isCurrent(r *run) bool {
	return s.active && s.run == r
}

// beginDispatch selects the next job and marks it calling. When nothing is
// eligible the run ends and the queue-complete notice is raised.
func (s *Service) beginDispatch(ctx context.Context, r *run) (domain.CallJob, bool) {
	s.mu.Lock()
	if !s.isCurrent(r) {
		s.mu.Unlock()
		return domain.CallJob{}, false
	}

	var job domain.CallJob
	for {
		next, ok := s.store.Next()
		if !ok {
			s.active = false
			s.current = nil
			s.mu.Unlock()

			s.log.Info("queue complete", zap.Uint64("run", r.id))
			s.notifier.Notify(NoticeQueueComplete, "All calls have been processed")
			return domain.CallJob{}, false
		}

		now := s.now()
		calling := domain.JobStatusCalling
		attempts := next.CurrentAttempts + 1
		job, ok = s.store.Update(next.ID, domain.JobPatch{
			Status:          &calling,
			CurrentAttempts: &attempts,
			LastAttempt:     &now,
		})
		if ok {
			break
		}
		s.log.Debug("selected job vanished; reselecting", zap.String("job_id", next.ID))
	}
	r.inFlight = job.ID
	current := job.Clone()
	s.current = &current
	s.mu.Unlock()

	s.persistQueue(ctx)
	return job, true
}

func (s *Service) dispatch(ctx context.Context, r *run, job domain.CallJob) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "dialer.dispatch", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.priority", string(job.Priority)),
		attribute.Int("job.attempt", job.CurrentAttempts),
	))
	defer span.End()

	log := s.log.With(zap.String("job_id", job.ID), zap.Int("attempt", job.CurrentAttempts))
	log.Debug("dispatching call", zap.String("priority", string(job.Priority)))

	result, callErr := s.provider.AttemptCall(ctx, job)

	s.mu.Lock()
	if !s.isCurrent(r) {
		s.mu.Unlock()
		span.SetAttributes(attribute.Bool("dispatch.abandoned", true))
		log.Info("dispatch abandoned after stop")
		return
	}
	if callErr != nil {
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		log.Warn("outcome generator failed", zap.Error(callErr))
		result = domain.CallResult{Connected: false, Outcome: domain.OutcomeError, Notes: callErr.Error()}
	}

	status := domain.JobStatusFailed
	if result.Connected {
		status = domain.JobStatusCompleted
	}
	updated, ok := s.store.Update(job.ID, domain.JobPatch{Status: &status, CallResult: &result})
	if ok {
		s.stats = s.stats.Record(result)
	}
	r.inFlight = ""
	s.current = nil
	s.mu.Unlock()

	if !ok {
		log.Warn("job removed during dispatch; outcome dropped")
		return
	}

	span.SetAttributes(
		attribute.Bool("call.connected", result.Connected),
		attribute.String("call.outcome", result.Outcome),
		attribute.Int("call.duration_sec", result.Duration),
	)
	log.Info("dispatch finished",
		zap.String("status", string(status)),
		zap.String("outcome", result.Outcome),
		zap.Int("duration_sec", result.Duration),
	)

	s.persistQueue(ctx)
	s.persistStatistics(ctx)
	s.record(ctx, updated)
}

// record forwards an applied outcome to the optional event stream and
// attempt history. Failures are logged only.
func (s *Service) record(ctx context.Context, job domain.CallJob) {
	at := s.clock.Now()
	if s.publisher != nil {
		if err := s.publisher.PublishDispatch(ctx, events.NewDispatchEvent(job, at)); err != nil {
			s.log.Warn("publish dispatch event failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if s.attempts != nil && job.CallResult != nil {
		attempt := repository.Attempt{
			JobID:         job.ID,
			AttemptNumber: job.CurrentAttempts,
			PhoneNumber:   job.PhoneNumber,
			Status:        string(job.Status),
			Connected:     job.CallResult.Connected,
			DurationSec:   job.CallResult.Duration,
			Outcome:       job.CallResult.Outcome,
			Notes:         job.CallResult.Notes,
			CreatedAt:     at,
		}
		if err := s.attempts.AppendAttempt(ctx, attempt); err != nil {
			s.log.Warn("append attempt history failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// pause waits delayBetweenCalls. It returns false once the run was stopped.
func (s *Service) pause(ctx context.Context, r *run) bool {
	s.mu.Lock()
	if !s.isCurrent(r) {
		s.mu.Unlock()
		return false
	}
	delay := time.Duration(s.settings.DelayBetweenCalls) * time.Second
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(delay):
		return true
	}
}

func (s *Service) refreshLease(ctx context.Context, r *run) bool {
	if s.lease == nil {
		return true
	}
	ok, err := s.lease.Refresh(ctx)
	if err == nil && ok {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	s.log.Error("run lease lost; stopping", zap.Uint64("run", r.id), zap.Error(err))

	s.mu.Lock()
	current := s.isCurrent(r)
	s.mu.Unlock()
	if current {
		s.Stop(ctx)
		s.notifier.Notify(NoticeRunStopped, "Another process took over automated calling")
	}
	return false
}

// releaseLease gives the lease up when r is still the latest run. A newer
// run started by the same process shares the lease and keeps it.
func (s *Service) releaseLease(ctx context.Context, r *run) {
	if s.lease == nil {
		return
	}
	s.leaseMu.Lock()
	defer s.leaseMu.Unlock()

	s.mu.Lock()
	superseded := s.run != r
	s.mu.Unlock()
	if superseded {
		s.log.Debug("run lease kept by newer run", zap.Uint64("run", r.id))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.lease.Release(ctx); err != nil {
		s.log.Warn("release run lease failed", zap.Error(err))
	}
}
