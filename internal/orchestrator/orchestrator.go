// Package orchestrator drives the research, summarize, write, critique
// pipeline and its bounded write/critique revision loop.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentarium/internal/agent"
)

// DefaultMaxRevisions is the revision cap used when none is configured.
const DefaultMaxRevisions = 2

// Orchestrator runs problems through a Pipeline. It holds no per-run state
// and may be used by concurrent Run calls.
type Orchestrator struct {
	pipeline     *Pipeline
	maxRevisions int
	policy       AcceptancePolicy
	logger       zerolog.Logger
	observer     Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRevisions sets how many times the writer may revise a rejected draft.
func WithMaxRevisions(n int) Option {
	return func(o *Orchestrator) { o.maxRevisions = n }
}

// WithPolicy sets the acceptance policy used to judge critiques.
func WithPolicy(p AcceptancePolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithObserver registers a callback for stage events.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New creates an orchestrator for pipeline.
func New(pipeline *Pipeline, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		pipeline:     pipeline,
		maxRevisions: DefaultMaxRevisions,
		policy:       PolicyKeywordMatch,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if !pipeline.valid() {
		return nil, ErrInvalidPipeline
	}
	if o.maxRevisions < 0 {
		return nil, ErrInvalidMaxRevisions
	}
	if _, err := ParsePolicy(string(o.policy)); err != nil {
		return nil, err
	}
	return o, nil
}

// MaxRevisions returns the configured revision cap.
func (o *Orchestrator) MaxRevisions() int { return o.maxRevisions }

// Policy returns the configured acceptance policy.
func (o *Orchestrator) Policy() AcceptancePolicy { return o.policy }

// RunOption overrides orchestrator settings for a single run.
type RunOption func(*runSettings)

type runSettings struct {
	maxRevisions int
}

// RunMaxRevisions overrides the revision cap for one run.
func RunMaxRevisions(n int) RunOption {
	return func(s *runSettings) { s.maxRevisions = n }
}

// Run takes problem through every stage and returns the final artifact.
//
// Any stage failure aborts the run with a *PipelineError and no artifact.
// Cancelling ctx stops the run before the next stage starts; an agent call
// already in flight is allowed to finish.
func (o *Orchestrator) Run(ctx context.Context, problem string, opts ...RunOption) (*FinalArtifact, error) {
	settings := runSettings{maxRevisions: o.maxRevisions}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.maxRevisions < 0 {
		return nil, ErrInvalidMaxRevisions
	}

	ps, err := NewProblemStatement(problem)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	r := &run{
		id:           id,
		pipeline:     o.pipeline,
		policy:       o.policy,
		maxRevisions: settings.maxRevisions,
		observer:     o.observer,
		work:         newWorkContext(ps),
		logger:       o.logger.With().Str("run_id", id).Logger(),
	}
	return r.execute(ctx)
}

// run holds the state of a single Run call.
type run struct {
	id           string
	pipeline     *Pipeline
	policy       AcceptancePolicy
	maxRevisions int
	observer     Observer
	work         *WorkContext
	stats        Stats
	logger       zerolog.Logger
}

func (r *run) execute(ctx context.Context) (*FinalArtifact, error) {
	r.stats.StartedAt = time.Now()
	r.logger.Info().
		Int("max_revisions", r.maxRevisions).
		Str("policy", string(r.policy)).
		Msg("Starting pipeline run")

	for _, name := range []StageName{StageResearch, StageSummarize, StageWrite} {
		stage := r.pipeline.stage(name)
		res, err := r.invoke(ctx, stage)
		if err != nil {
			return nil, err
		}
		r.work.set(stage.Writes, res.Text)
	}

	writer := r.pipeline.stage(StageWrite)
	critic := r.pipeline.stage(StageCritique)

	approved := false
	for {
		res, err := r.invoke(ctx, critic)
		if err != nil {
			return nil, err
		}

		verdict := r.policy.Judge(res.Text)
		r.work.set(critic.Writes, verdict.Feedback)
		r.emit(Event{Type: EventVerdict, Stage: StageCritique, Approved: verdict.Approved})

		if verdict.Approved {
			approved = true
			break
		}
		if r.work.RevisionCount >= r.maxRevisions {
			r.logger.Warn().
				Int("revisions", r.work.RevisionCount).
				Msg("Revision limit reached without approval")
			break
		}

		r.logger.Info().
			Int("revision", r.work.RevisionCount+1).
			Msg("Draft rejected, revising")

		res, err = r.invoke(ctx, writer)
		if err != nil {
			return nil, err
		}
		r.work.set(writer.Writes, res.Text)
		r.work.RevisionCount++
	}

	r.stats.FinishedAt = time.Now()
	r.stats.Duration = r.stats.FinishedAt.Sub(r.stats.StartedAt)

	r.logger.Info().
		Bool("approved", approved).
		Int("revisions", r.work.RevisionCount).
		Int("calls", r.stats.CallsMade).
		Int("tokens", r.stats.Usage.TotalTokens).
		Dur("duration", r.stats.Duration).
		Msg("Pipeline run finished")

	return &FinalArtifact{
		RunID:         r.id,
		Text:          r.work.Draft,
		Approved:      approved,
		Revisions:     r.work.RevisionCount,
		ResearchNotes: r.work.ResearchNotes,
		Summary:       r.work.Summary,
		Critique:      r.work.Critique,
		Stats:         r.stats,
	}, nil
}

// invoke runs one stage. Cancellation is checked before the call only; the
// agent gets a context that is never cancelled so the backend call is not
// cut off midway.
func (r *run) invoke(ctx context.Context, stage Stage) (*agent.Result, error) {
	revision := r.work.RevisionCount
	if err := ctx.Err(); err != nil {
		return nil, r.fail(stage.Name, revision, err)
	}

	r.emit(Event{Type: EventStageStarted, Stage: stage.Name})
	r.logger.Debug().
		Str("stage", string(stage.Name)).
		Int("revision", revision).
		Msg("Invoking agent")

	start := time.Now()
	res, err := stage.Agent.Invoke(context.WithoutCancel(ctx), r.work.Select(stage.Agent.Reads()...))
	elapsed := time.Since(start)

	r.stats.CallsMade++
	r.stats.Stages = append(r.stats.Stages, StageTiming{Stage: stage.Name, Revision: revision, Duration: elapsed})

	if err != nil {
		return nil, r.fail(stage.Name, revision, err)
	}
	r.stats.Usage.Add(res.Usage)

	r.emit(Event{Type: EventStageFinished, Stage: stage.Name, Duration: elapsed})
	r.logger.Debug().
		Str("stage", string(stage.Name)).
		Dur("duration", elapsed).
		Int("chars", len(res.Text)).
		Msg("Agent finished")
	return res, nil
}

func (r *run) fail(stage StageName, revision int, err error) error {
	r.logger.Error().
		Err(err).
		Str("stage", string(stage)).
		Int("revision", revision).
		Msg("Pipeline run failed")
	r.emit(Event{Type: EventStageFailed, Stage: stage, Err: err})
	return &PipelineError{Stage: stage, Revision: revision, Err: err}
}

func (r *run) emit(e Event) {
	if r.observer == nil {
		return
	}
	e.RunID = r.id
	e.Revision = r.work.RevisionCount
	r.observer(e)
}
