package shared

import (
	"context"
	"fmt"
	"time"
)

// Role defines the role of a message in a conversation
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a chat message for LLM providers
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
}

// ResponseFormat defines the format of the response
type ResponseFormat int

const (
	ResponseFormatText ResponseFormat = iota
	ResponseFormatJSON                // strict JSON mode if provider supports it
)

// CompletionOptions defines parameters for LLM completion requests
type CompletionOptions struct {
	Model          string
	MaxTokens      int
	Temperature    float32
	TopP           float32
	Stop           []string
	ResponseFormat ResponseFormat
}

// CompletionRequest represents a request to complete
type CompletionRequest struct {
	Messages []Message
	Options  CompletionOptions
	// Optional system prompt when a provider needs top-level system.
	System string
}

// TokenUsage tracks token consumption for billing and monitoring
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CompletionResponse represents the response from an LLM completion
type CompletionResponse struct {
	Content    string
	Usage      TokenUsage
	StopReason string // normalized stop reason (e.g., "stop", "length")
}

// ErrorCode defines normalized error codes across providers
type ErrorCode string

const (
	ErrRateLimited    ErrorCode = "rate_limited"
	ErrTimeout        ErrorCode = "timeout"
	ErrAuth           ErrorCode = "auth"
	ErrInvalidRequest ErrorCode = "invalid_request"
	ErrModelNotFound  ErrorCode = "model_not_found"
	ErrContextLength  ErrorCode = "context_length_exceeded"
	ErrUnavailable    ErrorCode = "service_unavailable"
	ErrUnknown        ErrorCode = "unknown"
)

// ProviderError represents a normalized error from any provider
type ProviderError struct {
	Code    ErrorCode
	Message string
	// Optional: original HTTP status
	HTTPStatus int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the request may succeed if sent again unchanged.
func (e *ProviderError) Retryable() bool {
	switch e.Code {
	case ErrRateLimited, ErrTimeout, ErrUnavailable:
		return true
	}
	return false
}

// LLMProvider defines the unified interface for LLM providers
type LLMProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// ProviderType defines the type of LLM provider
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// ClientOptions defines HTTP client configuration
type ClientOptions struct {
	BaseURL      string
	APIKey       string
	Headers      map[string]string
	Timeout      time.Duration
	MaxIdleConns int
	IdleConnTTL  time.Duration
}
