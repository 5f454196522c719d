package dialer

import (
	"context"

	"go.uber.org/zap"

	"github.com/acme/autodialer/internal/domain"
	"github.com/acme/autodialer/internal/repository"
)

func (s *Service) load(ctx context.Context) {
	if raw, ok := s.loadKey(ctx, repository.KeyQueue); ok {
		jobs, err := repository.DecodeQueue(raw, s.loc)
		if err != nil {
			s.log.Warn("discarding unreadable queue snapshot", zap.Error(err))
		} else {
			s.store.Replace(jobs)
		}
	}

	if raw, ok := s.loadKey(ctx, repository.KeySettings); ok {
		settings, err := repository.DecodeSettings(raw)
		if err != nil {
			s.log.Warn("discarding unreadable settings snapshot", zap.Error(err))
		} else {
			s.settings = settings
		}
	}

	if raw, ok := s.loadKey(ctx, repository.KeyStatistics); ok {
		stats, err := repository.DecodeStatistics(raw)
		if err != nil {
			s.log.Warn("discarding unreadable statistics snapshot", zap.Error(err))
		} else {
			s.stats = stats
		}
	}

	s.recoverInterrupted(ctx)
	s.log.Debug("snapshot loaded", zap.Int("jobs", s.store.Len()))
}

// recoverInterrupted returns jobs left in calling by a process that exited
// mid-dispatch to pending. Attempt counters are kept.
func (s *Service) recoverInterrupted(ctx context.Context) {
	interrupted := s.store.Filter(func(j domain.CallJob) bool { return j.Status == domain.JobStatusCalling })
	if len(interrupted) == 0 {
		return
	}
	pending := domain.JobStatusPending
	for _, job := range interrupted {
		s.store.Update(job.ID, domain.JobPatch{Status: &pending})
	}
	s.log.Info("recovered interrupted dispatches", zap.Int("count", len(interrupted)))
	s.persistQueue(ctx)
}

func (s *Service) loadKey(ctx context.Context, key string) (string, bool) {
	raw, ok, err := s.kv.LoadJSON(ctx, key)
	if err != nil {
		s.log.Warn("snapshot load failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return raw, ok
}

func (s *Service) persistQueue(ctx context.Context) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	raw, err := repository.EncodeQueue(s.store.List())
	if err != nil {
		s.log.Error("encode queue snapshot", zap.Error(err))
		return
	}
	s.save(ctx, repository.KeyQueue, raw)
}

func (s *Service) persistSettings(ctx context.Context) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	settings := s.settings.Clone()
	s.mu.Unlock()

	raw, err := repository.EncodeSettings(settings)
	if err != nil {
		s.log.Error("encode settings snapshot", zap.Error(err))
		return
	}
	s.save(ctx, repository.KeySettings, raw)
}

func (s *Service) persistStatistics(ctx context.Context) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()

	raw, err := repository.EncodeStatistics(stats)
	if err != nil {
		s.log.Error("encode statistics snapshot", zap.Error(err))
		return
	}
	s.save(ctx, repository.KeyStatistics, raw)
}

// save writes best-effort: failures are logged and in-memory state is kept.
// The write is detached from ctx cancellation so that stopping a run still
// records its final state.
func (s *Service) save(ctx context.Context, key, raw string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.kv.SaveJSON(ctx, key, raw); err != nil {
		s.log.Error("snapshot save failed", zap.String("key", key), zap.Error(err))
	}
}
