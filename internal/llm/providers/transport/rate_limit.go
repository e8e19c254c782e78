package transport

import (
	"context"

	"golang.org/x/time/rate"

	"agentarium/internal/llm/providers/shared"
)

// Limiter provides rate limiting functionality
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a new rate limiter with the specified requests per second and burst capacity.
// A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Wait blocks until the request can proceed
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// RateLimited wraps a provider so every completion waits for a limiter token.
// One limiter is shared by all runs using the wrapped provider.
type RateLimited struct {
	provider shared.LLMProvider
	limiter  *Limiter
}

// NewRateLimited wraps provider with a limiter of rps requests per second.
func NewRateLimited(provider shared.LLMProvider, rps float64, burst int) *RateLimited {
	return &RateLimited{
		provider: provider,
		limiter:  NewLimiter(rps, burst),
	}
}

// Name returns the wrapped provider name
func (r *RateLimited) Name() string { return r.provider.Name() }

// Complete waits for the limiter and then delegates to the wrapped provider
func (r *RateLimited) Complete(ctx context.Context, req *shared.CompletionRequest) (*shared.CompletionResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, shared.NormalizeError(err)
	}
	return r.provider.Complete(ctx, req)
}
