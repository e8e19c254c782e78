// Package app wires configuration into a ready orchestrator.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"agentarium/internal/agent"
	"agentarium/internal/config"
	"agentarium/internal/llm/providers"
	"agentarium/internal/llm/providers/shared"
	"agentarium/internal/orchestrator"
	"agentarium/internal/prompts"
	"agentarium/internal/research"
)

// App bundles the orchestrator with the configuration it was built from.
type App struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Logger       zerolog.Logger
}

// New builds the provider named in cfg and wires the pipeline around it.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	provider, err := providers.New(providers.ProviderConfig{
		Name:         cfg.LLM.Provider,
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		Timeout:      cfg.LLM.Timeout(),
		RPS:          cfg.RateLimit.RPS,
		Burst:        cfg.RateLimit.Burst,
		RetryMax:     cfg.RateLimit.RetryMax,
		RetryBackoff: cfg.RateLimit.RetryBackoff(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return NewWithProvider(cfg, provider, logger)
}

// NewWithProvider wires the pipeline around an existing provider.
func NewWithProvider(cfg *config.Config, provider shared.LLMProvider, logger zerolog.Logger) (*App, error) {
	templates, err := Templates(cfg.Prompts)
	if err != nil {
		return nil, err
	}

	policy, err := orchestrator.ParsePolicy(cfg.Pipeline.AcceptancePolicy)
	if err != nil {
		return nil, err
	}

	backend := agent.NewBackend(provider, shared.CompletionOptions{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		Stop:        cfg.LLM.Stop,
	})

	var researchOpts []agent.Option
	if cfg.Research.Wikipedia {
		researchOpts = append(researchOpts, agent.WithEnricher(research.NewWikipedia(research.Config{
			Language:  cfg.Research.Language,
			Sentences: cfg.Research.Sentences,
		}, logger)))
	}

	newAgent := func(role agent.Role, opts ...agent.Option) *agent.RoleAgent {
		return agent.New(role, templates, backend, append(opts, agent.WithLogger(logger))...)
	}

	pipeline, err := orchestrator.NewPipeline(
		newAgent(agent.Researcher(), researchOpts...),
		newAgent(agent.Summarizer()),
		newAgent(agent.Writer()),
		newAgent(agent.Critic(policy.Structured())),
	)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(pipeline,
		orchestrator.WithMaxRevisions(cfg.Pipeline.MaxRevisions),
		orchestrator.WithPolicy(policy),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("provider", provider.Name()).
		Str("model", cfg.LLM.Model).
		Str("policy", string(policy)).
		Int("max_revisions", cfg.Pipeline.MaxRevisions).
		Bool("wikipedia", cfg.Research.Wikipedia).
		Msg("Pipeline ready")

	return &App{Config: cfg, Orchestrator: orch, Logger: logger}, nil
}

// Templates layers the configured bundle and directory over the built-in
// templates. The bundle wins over the directory.
func Templates(cfg config.PromptsConfig) (prompts.Provider, error) {
	var layers []prompts.Provider
	if cfg.Bundle != "" {
		bundle, err := prompts.LoadBundle(cfg.Bundle)
		if err != nil {
			return nil, err
		}
		layers = append(layers, bundle)
	}
	if cfg.Dir != "" {
		layers = append(layers, prompts.NewDirProvider(cfg.Dir))
	}
	layers = append(layers, prompts.Embedded())

	templates := prompts.Chain(layers...)
	if err := prompts.ValidateRoles(templates,
		agent.Researcher(), agent.Summarizer(), agent.Writer(), agent.Critic(false), agent.Critic(true),
	); err != nil {
		return nil, fmt.Errorf("invalid prompt templates: %w", err)
	}
	return templates, nil
}
