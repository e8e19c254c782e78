package transport

import (
	"context"
	"errors"
	"time"

	"agentarium/internal/llm/providers/shared"
)

// Retrying re-issues a completion when the provider reports a retryable error
// (rate limited, timeout, service unavailable). Backoff grows linearly with the attempt.
type Retrying struct {
	provider   shared.LLMProvider
	maxRetries int
	backoff    time.Duration
}

// NewRetrying wraps provider. maxRetries counts retries after the first attempt.
func NewRetrying(provider shared.LLMProvider, maxRetries int, backoff time.Duration) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		provider:   provider,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Name returns the wrapped provider name
func (r *Retrying) Name() string { return r.provider.Name() }

// Complete delegates to the wrapped provider, retrying retryable failures
func (r *Retrying) Complete(ctx context.Context, req *shared.CompletionRequest) (*shared.CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, shared.NormalizeError(ctx.Err())
			case <-time.After(time.Duration(attempt) * r.backoff):
			}
		}

		resp, err := r.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var pe *shared.ProviderError
		if !errors.As(err, &pe) || !pe.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}
