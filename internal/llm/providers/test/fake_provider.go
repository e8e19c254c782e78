package test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"agentarium/internal/llm/providers/shared"
)

type script struct {
	match   string
	replies []string
	next    int
}

// FakeProvider implements LLMProvider for testing purposes
type FakeProvider struct {
	mu          sync.Mutex
	responses   map[string]*shared.CompletionResponse
	scripts     []*script
	delays      map[string]time.Duration
	errors      map[string]error
	callCount   int
	calls       map[string]int
	lastRequest *shared.CompletionRequest
	requests    []*shared.CompletionRequest
}

// NewFakeProvider creates a new fake provider for testing
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		responses: make(map[string]*shared.CompletionResponse),
		delays:    make(map[string]time.Duration),
		errors:    make(map[string]error),
		calls:     make(map[string]int),
	}
}

// AddResponse adds a canned response for a specific user prompt
func (fp *FakeProvider) AddResponse(prompt string, response *shared.CompletionResponse) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.responses[prompt] = response
}

// Script registers replies for requests whose system prompt contains match.
// Replies are returned in order; the last one repeats once the list is exhausted.
func (fp *FakeProvider) Script(match string, replies ...string) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.scripts = append(fp.scripts, &script{match: match, replies: replies})
}

// AddDelay adds a delay for requests whose system prompt contains match
func (fp *FakeProvider) AddDelay(match string, delay time.Duration) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.delays[match] = delay
}

// AddError fails requests whose system prompt contains match
func (fp *FakeProvider) AddError(match string, err error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.errors[match] = err
}

// GetCallCount returns the number of calls made to the provider
func (fp *FakeProvider) GetCallCount() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.callCount
}

// CallsMatching returns how many requests had a system prompt containing match
func (fp *FakeProvider) CallsMatching(match string) int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	n := 0
	for _, req := range fp.requests {
		if strings.Contains(req.System, match) {
			n++
		}
	}
	return n
}

// GetLastRequest returns the last request made to the provider
func (fp *FakeProvider) GetLastRequest() *shared.CompletionRequest {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.lastRequest
}

// Requests returns a copy of every request received, in order
func (fp *FakeProvider) Requests() []*shared.CompletionRequest {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return append([]*shared.CompletionRequest(nil), fp.requests...)
}

// Name returns the provider name
func (fp *FakeProvider) Name() string { return "fake" }

// Complete performs a mock completion request
func (fp *FakeProvider) Complete(ctx context.Context, req *shared.CompletionRequest) (*shared.CompletionResponse, error) {
	if err := shared.ValidateCompletionRequest(req); err != nil {
		return nil, err
	}

	// Key canned responses on the first user message
	var key string
	for _, msg := range req.Messages {
		if msg.Role == shared.RoleUser && msg.Content != "" {
			key = msg.Content
			break
		}
	}

	fp.mu.Lock()
	fp.callCount++
	fp.calls[key]++
	fp.lastRequest = req
	fp.requests = append(fp.requests, req)

	var delay time.Duration
	for match, d := range fp.delays {
		if strings.Contains(req.System, match) {
			delay = d
		}
	}
	var failure error
	for match, err := range fp.errors {
		if strings.Contains(req.System, match) {
			failure = err
		}
	}
	content, scripted := fp.nextScripted(req.System)
	canned, hasCanned := fp.responses[key]
	fp.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, shared.NormalizeError(ctx.Err())
		case <-time.After(delay):
		}
	}

	if failure != nil {
		return nil, failure
	}
	if hasCanned {
		return canned, nil
	}
	if !scripted {
		content = fmt.Sprintf("Mock response for: %s", key)
	}

	return &shared.CompletionResponse{
		Content: content,
		Usage: shared.TokenUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		StopReason: "stop",
	}, nil
}

// nextScripted must be called with fp.mu held.
func (fp *FakeProvider) nextScripted(system string) (string, bool) {
	for _, s := range fp.scripts {
		if !strings.Contains(system, s.match) || len(s.replies) == 0 {
			continue
		}
		idx := s.next
		if idx >= len(s.replies) {
			idx = len(s.replies) - 1
		} else {
			s.next++
		}
		return s.replies[idx], true
	}
	return "", false
}
