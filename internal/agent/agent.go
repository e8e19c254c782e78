// Package agent defines the role agents driven by the orchestrator.
//
// Every role (researcher, summarizer, writer, critic) is the same RoleAgent
// configured with a different Role: the template it renders, the context
// fields it reads and the system prompt it sends. Agents never write to the
// work context; they return a Result and the orchestrator folds it in.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agentarium/internal/llm/providers/shared"
)

// Work context field names shared by templates and the orchestrator.
const (
	FieldProblem       = "problem"
	FieldResearchNotes = "research_notes"
	FieldSummary       = "summary"
	FieldDraft         = "draft"
	FieldCritique      = "critique"
	FieldRevisionCount = "revision_count"
	FieldReference     = "reference"
)

// Fields is a read-only view of the work context handed to an agent.
type Fields map[string]string

// Has reports whether name is present and not blank.
func (f Fields) Has(name string) bool {
	return strings.TrimSpace(f[name]) != ""
}

// Agent is one stage of the pipeline.
type Agent interface {
	Name() string
	// Requires lists the context fields that must be populated before Invoke.
	Requires() []string
	// Reads lists every context field the agent may see, Requires included.
	Reads() []string
	Invoke(ctx context.Context, fields Fields) (*Result, error)
}

// Result is the output of a single agent invocation.
type Result struct {
	Text     string            `json:"text"`
	Success  bool              `json:"success"`
	Usage    shared.TokenUsage `json:"usage"`
	Duration time.Duration     `json:"duration"`
}

// TemplateSource looks up prompt templates by agent name.
type TemplateSource interface {
	Get(name string) (string, error)
}

// Enricher attaches extra fields to an agent's input before rendering,
// e.g. reference material fetched from an external source.
type Enricher interface {
	Enrich(ctx context.Context, fields Fields) (Fields, error)
}

// RoleAgent implements Agent for any Role.
type RoleAgent struct {
	role      Role
	templates TemplateSource
	backend   Backend
	enricher  Enricher
	logger    zerolog.Logger
}

// Option configures a RoleAgent.
type Option func(*RoleAgent)

// WithEnricher sets an enricher consulted before each render.
func WithEnricher(e Enricher) Option {
	return func(a *RoleAgent) { a.enricher = e }
}

// WithLogger sets the agent logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *RoleAgent) { a.logger = logger }
}

// New creates an agent for role.
func New(role Role, templates TemplateSource, backend Backend, opts ...Option) *RoleAgent {
	a := &RoleAgent{
		role:      role,
		templates: templates,
		backend:   backend,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With().Str("agent", role.Name).Logger()
	return a
}

// Name returns the role name.
func (a *RoleAgent) Name() string { return a.role.Name }

// Requires returns the fields the role cannot run without.
func (a *RoleAgent) Requires() []string {
	return append([]string(nil), a.role.Requires...)
}

// Reads returns the required and optional fields of the role.
func (a *RoleAgent) Reads() []string { return a.role.Reads() }

// Role returns the agent's configuration.
func (a *RoleAgent) Role() Role { return a.role }

// Invoke renders the role's template with fields and sends it to the backend.
func (a *RoleAgent) Invoke(ctx context.Context, fields Fields) (*Result, error) {
	start := time.Now()

	for _, name := range a.role.Requires {
		if !fields.Has(name) {
			return nil, &MissingContextError{Agent: a.role.Name, Field: name}
		}
	}

	tmpl, err := a.templates.Get(a.role.Template)
	if err != nil {
		var notFound *TemplateNotFoundError
		if errors.As(err, &notFound) {
			return nil, err
		}
		return nil, &TemplateNotFoundError{Name: a.role.Template, Err: err}
	}

	input := a.input(ctx, fields)

	prompt, err := Render(tmpl, input)
	if err != nil {
		return nil, &AgentInvocationError{Agent: a.role.Name, Err: err}
	}
	a.logger.Debug().
		Int("prompt_chars", len(prompt)).
		Bool("json", a.role.JSON).
		Msg("Sending prompt")

	completion, err := a.backend.Complete(ctx, Prompt{
		System: a.role.System,
		User:   prompt,
		JSON:   a.role.JSON,
	})
	if err != nil {
		return nil, &AgentInvocationError{Agent: a.role.Name, Err: err}
	}

	text := strings.TrimSpace(completion.Text)
	if text == "" {
		return nil, &AgentInvocationError{Agent: a.role.Name, Err: ErrEmptyResponse}
	}

	return &Result{
		Text:     text,
		Success:  true,
		Usage:    completion.Usage,
		Duration: time.Since(start),
	}, nil
}

// input copies the fields the role reads, plus anything the enricher adds.
// Enricher failures are logged and ignored.
func (a *RoleAgent) input(ctx context.Context, fields Fields) Fields {
	input := make(Fields, len(fields))
	for k, v := range fields {
		input[k] = v
	}

	if a.enricher == nil {
		return input
	}

	extra, err := a.enricher.Enrich(ctx, input)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Enrichment failed, continuing without it")
		return input
	}
	for k, v := range extra {
		if _, exists := input[k]; !exists {
			input[k] = v
		}
	}
	return input
}
