package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentarium/internal/llm/providers/shared"
	"agentarium/internal/llm/providers/test"
)

func request() *shared.CompletionRequest {
	return &shared.CompletionRequest{
		System:   "You are a writer.",
		Messages: []shared.Message{{Role: shared.RoleUser, Content: "draft"}},
		Options:  shared.CompletionOptions{Model: "m"},
	}
}

func TestLimiterAllowsBurst(t *testing.T) {
	l := NewLimiter(1, 2)
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	assert.Error(t, l.Wait(ctx))
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx))
	}
}

func TestRateLimitedHonorsContext(t *testing.T) {
	fake := test.NewFakeProvider()
	p := NewRateLimited(fake, 0.001, 1)
	assert.Equal(t, "fake", p.Name())

	_, err := p.Complete(t.Context(), request())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Complete(ctx, request())
	require.Error(t, err)
	assert.Equal(t, 1, fake.GetCallCount())
}

func TestRetryingRetriesRetryableErrors(t *testing.T) {
	fake := &flaky{failures: 2, err: &shared.ProviderError{Code: shared.ErrRateLimited, Message: "slow down"}}
	p := NewRetrying(fake, 3, time.Millisecond)

	resp, err := p.Complete(t.Context(), request())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, fake.calls)
}

func TestRetryingStopsOnPermanentErrors(t *testing.T) {
	fake := &flaky{failures: 5, err: &shared.ProviderError{Code: shared.ErrAuth, Message: "bad key"}}
	p := NewRetrying(fake, 3, time.Millisecond)

	_, err := p.Complete(t.Context(), request())
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestRetryingGivesUp(t *testing.T) {
	fake := &flaky{failures: 10, err: &shared.ProviderError{Code: shared.ErrUnavailable, Message: "down"}}
	p := NewRetrying(fake, 2, time.Millisecond)

	_, err := p.Complete(t.Context(), request())
	var pe *shared.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, shared.ErrUnavailable, pe.Code)
	assert.Equal(t, 3, fake.calls)
}

func TestNewHTTPClientAddsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agentarium", r.Header.Get("X-Client"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewHTTPClient(shared.ClientOptions{Headers: map[string]string{"X-Client": "agentarium"}})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 120*time.Second, client.Timeout)
}

type flaky struct {
	failures int
	err      error
	calls    int
}

func (f *flaky) Name() string { return "flaky" }

func (f *flaky) Complete(ctx context.Context, req *shared.CompletionRequest) (*shared.CompletionResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &shared.CompletionResponse{Content: "ok"}, nil
}

