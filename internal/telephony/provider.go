// Package telephony abstracts the component that actually places a call and
// reports what happened.
package telephony

import (
	"context"

	"github.com/acme/autodialer/internal/domain"
)

// Provider produces the outcome of one dispatch. Implementations must return
// promptly with ctx.Err() once ctx is cancelled.
type Provider interface {
	AttemptCall(ctx context.Context, job domain.CallJob) (domain.CallResult, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, job domain.CallJob) (domain.CallResult, error)

// AttemptCall implements Provider.
func (f ProviderFunc) AttemptCall(ctx context.Context, job domain.CallJob) (domain.CallResult, error) {
	return f(ctx, job)
}
