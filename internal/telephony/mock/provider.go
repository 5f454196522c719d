// Package mock simulates call outcomes for demos and tests.
package mock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/acme/autodialer/internal/clock"
	"github.com/acme/autodialer/internal/config"
	"github.com/acme/autodialer/internal/domain"
	"github.com/acme/autodialer/internal/telephony"
)

// Provider simulates outbound call behaviour: it waits the dispatch delay,
// then connects with the configured probability.
type Provider struct {
	clock       clock.Clock
	delay       time.Duration
	successRate float64
	minDuration int
	maxDuration int

	mu  sync.Mutex
	rng *rand.Rand
}

var _ telephony.Provider = (*Provider)(nil)

// NewProvider constructs a simulated provider. A zero seed picks one from the
// current time.
func NewProvider(cfg config.DialerConfig, clk clock.Clock) *Provider {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	minSec := int(cfg.MinDuration / time.Second)
	maxSec := int(cfg.MaxDuration / time.Second)
	if maxSec <= minSec {
		maxSec = minSec + 1
	}
	return &Provider{
		clock:       clk,
		delay:       cfg.DispatchDelay,
		successRate: cfg.SuccessRate,
		minDuration: minSec,
		maxDuration: maxSec,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// AttemptCall implements telephony.Provider.
func (p *Provider) AttemptCall(ctx context.Context, job domain.CallJob) (domain.CallResult, error) {
	select {
	case <-ctx.Done():
		return domain.CallResult{}, ctx.Err()
	case <-p.clock.After(p.delay):
	}

	p.mu.Lock()
	connected := p.rng.Float64() < p.successRate
	duration := p.minDuration + p.rng.Intn(p.maxDuration-p.minDuration)
	p.mu.Unlock()

	if !connected {
		return domain.CallResult{
			Connected: false,
			Outcome:   domain.OutcomeNoAnswer,
		}, nil
	}
	return domain.CallResult{
		Connected: true,
		Duration:  duration,
		Outcome:   domain.OutcomeAnswered,
	}, nil
}
