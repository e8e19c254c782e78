// Package providers builds the LLM backend used by the pipeline agents.
package providers

import (
	"fmt"
	"time"

	"agentarium/internal/llm/providers/ollama"
	"agentarium/internal/llm/providers/openai"
	"agentarium/internal/llm/providers/shared"
	"agentarium/internal/llm/providers/transport"
)

// ProviderConfig holds configuration for creating providers
type ProviderConfig struct {
	Name    string // "openai" | "ollama"
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Headers map[string]string

	// RPS <= 0 disables rate limiting.
	RPS   float64
	Burst int

	// RetryMax <= 0 disables retries.
	RetryMax     int
	RetryBackoff time.Duration
}

// New creates the named provider and wraps it with the configured
// rate limiter and retry policy.
func New(cfg ProviderConfig) (shared.LLMProvider, error) {
	httpClient := transport.NewHTTPClient(shared.ClientOptions{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Headers: cfg.Headers,
		Timeout: cfg.Timeout,
	})

	var provider shared.LLMProvider
	switch shared.ProviderType(cfg.Name) {
	case shared.ProviderOpenAI:
		p, err := openai.NewProvider(openai.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		provider = p
	case shared.ProviderOllama:
		provider = ollama.NewProvider(ollama.Config{
			BaseURL:    cfg.BaseURL,
			HTTPClient: httpClient,
		})
	default:
		return nil, fmt.Errorf("provider not found: %s", cfg.Name)
	}

	return Wrap(provider, cfg), nil
}

// Wrap applies the transport policies from cfg to an existing provider.
// Retries sit outside the limiter so each attempt waits for its own token.
func Wrap(provider shared.LLMProvider, cfg ProviderConfig) shared.LLMProvider {
	if cfg.RPS > 0 {
		provider = transport.NewRateLimited(provider, cfg.RPS, cfg.Burst)
	}
	if cfg.RetryMax > 0 {
		provider = transport.NewRetrying(provider, cfg.RetryMax, cfg.RetryBackoff)
	}
	return provider
}
