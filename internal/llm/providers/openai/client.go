package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"agentarium/internal/llm/providers/shared"

	"github.com/sashabaranov/go-openai"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey  string
	BaseURL string
	OrgID   string
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Provider implements the unified LLMProvider interface for OpenAI and any
// OpenAI-compatible endpoint.
type Provider struct {
	client *openai.Client
	config Config
}

// NewProvider creates a new OpenAI provider
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: api key is required when no base url is set")
	}

	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		openaiConfig.OrgID = cfg.OrgID
	}
	switch {
	case cfg.HTTPClient != nil:
		openaiConfig.HTTPClient = cfg.HTTPClient
	case cfg.Timeout > 0:
		openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Provider{
		client: openai.NewClientWithConfig(openaiConfig),
		config: cfg,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string { return string(shared.ProviderOpenAI) }

// Complete performs a completion request
func (p *Provider) Complete(ctx context.Context, req *shared.CompletionRequest) (*shared.CompletionResponse, error) {
	if err := shared.ValidateCompletionRequest(req); err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, ToOpenAIRequest(req))
	if err != nil {
		return nil, NormalizeOpenAIError(err)
	}

	return FromOpenAIResponse(resp), nil
}

// NormalizeOpenAIError converts OpenAI errors to normalized ProviderError
func NormalizeOpenAIError(err error) *shared.ProviderError {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &shared.ProviderError{
			Code:       shared.CodeFromStatus(apiErr.HTTPStatusCode),
			Message:    apiErr.Message,
			HTTPStatus: apiErr.HTTPStatusCode,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &shared.ProviderError{
			Code:       shared.CodeFromStatus(reqErr.HTTPStatusCode),
			Message:    reqErr.Error(),
			HTTPStatus: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}

	return shared.NormalizeError(err)
}
