package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agentarium/internal/llm/providers/shared"
)

const defaultBaseURL = "http://localhost:11434"

// Config holds Ollama provider configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Provider implements the unified LLMProvider interface for Ollama's native chat API
type Provider struct {
	config     Config
	httpClient *http.Client
}

// NewProvider creates a new Ollama provider
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Provider{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Name returns the provider name
func (p *Provider) Name() string { return string(shared.ProviderOllama) }

// chatRequest represents the request payload for the Ollama chat API
type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents the non-streaming response from the Ollama chat API
type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Complete performs a completion request
func (p *Provider) Complete(ctx context.Context, req *shared.CompletionRequest) (*shared.CompletionResponse, error) {
	if err := shared.ValidateCompletionRequest(req); err != nil {
		return nil, err
	}

	body := chatRequest{
		Model:    req.Options.Model,
		Messages: make([]chatMessage, 0, len(req.Messages)+1),
		Stream:   false,
		Options:  buildOptions(req.Options),
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: string(shared.RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.Options.ResponseFormat == shared.ResponseFormatJSON {
		body.Format = "json"
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(p.config.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, shared.NormalizeError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		var errResp errorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return nil, &shared.ProviderError{
			Code:       shared.CodeFromStatus(resp.StatusCode),
			Message:    msg,
			HTTPStatus: resp.StatusCode,
		}
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, &shared.ProviderError{
			Code:    shared.ErrUnknown,
			Message: fmt.Sprintf("failed to parse response: %v", err),
			Err:     err,
		}
	}

	return &shared.CompletionResponse{
		Content: chat.Message.Content,
		Usage: shared.TokenUsage{
			PromptTokens:     chat.PromptEvalCount,
			CompletionTokens: chat.EvalCount,
			TotalTokens:      chat.PromptEvalCount + chat.EvalCount,
		},
		StopReason: chat.DoneReason,
	}, nil
}

// buildOptions converts completion options to Ollama options format
func buildOptions(opts shared.CompletionOptions) map[string]any {
	options := make(map[string]any)

	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if opts.TopP > 0 {
		options["top_p"] = opts.TopP
	}
	if len(opts.Stop) > 0 {
		options["stop"] = opts.Stop
	}

	if len(options) == 0 {
		return nil
	}
	return options
}
