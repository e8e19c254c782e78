package agent

import (
	"context"

	"agentarium/internal/llm/providers/shared"
)

// Prompt is a rendered request for the backend.
type Prompt struct {
	System string
	User   string
	JSON   bool
}

// Completion is the backend's answer to a Prompt.
type Completion struct {
	Text  string
	Usage shared.TokenUsage
}

// Backend is the language-model capability agents call.
type Backend interface {
	Complete(ctx context.Context, prompt Prompt) (*Completion, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, prompt Prompt) (*Completion, error)

func (f BackendFunc) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	return f(ctx, prompt)
}

type providerBackend struct {
	provider shared.LLMProvider
	options  shared.CompletionOptions
}

// NewBackend adapts an LLM provider. opts are applied to every request;
// the response format is switched to JSON per prompt when requested.
func NewBackend(provider shared.LLMProvider, opts shared.CompletionOptions) Backend {
	return &providerBackend{provider: provider, options: opts}
}

func (b *providerBackend) Complete(ctx context.Context, prompt Prompt) (*Completion, error) {
	opts := b.options
	if prompt.JSON {
		opts.ResponseFormat = shared.ResponseFormatJSON
	}

	resp, err := b.provider.Complete(ctx, &shared.CompletionRequest{
		System:   prompt.System,
		Messages: []shared.Message{{Role: shared.RoleUser, Content: prompt.User}},
		Options:  opts,
	})
	if err != nil {
		return nil, err
	}
	return &Completion{Text: resp.Content, Usage: resp.Usage}, nil
}
