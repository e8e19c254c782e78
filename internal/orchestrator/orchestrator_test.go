package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentarium/internal/agent"
	"agentarium/internal/llm/providers/shared"
)

// callLog records agent invocations across all stages of a test.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(name string) int {
	n := 0
	for _, c := range l.all() {
		if c == name {
			n++
		}
	}
	return n
}

// fakeAgent replies from a script; the last reply repeats.
type fakeAgent struct {
	name     string
	requires []string
	optional []string
	replies  []string
	respond  func(ctx context.Context, f agent.Fields) (string, error)
	log      *callLog

	mu   sync.Mutex
	seen []agent.Fields
	next int
}

func (a *fakeAgent) Name() string       { return a.name }
func (a *fakeAgent) Requires() []string { return a.requires }
func (a *fakeAgent) Reads() []string {
	return append(append([]string(nil), a.requires...), a.optional...)
}

func (a *fakeAgent) Invoke(ctx context.Context, f agent.Fields) (*agent.Result, error) {
	if a.log != nil {
		a.log.add(a.name)
	}
	a.mu.Lock()
	a.seen = append(a.seen, f)
	var reply string
	if len(a.replies) > 0 {
		i := a.next
		if i >= len(a.replies) {
			i = len(a.replies) - 1
		} else {
			a.next++
		}
		reply = a.replies[i]
	}
	a.mu.Unlock()

	if a.respond != nil {
		text, err := a.respond(ctx, f)
		if err != nil {
			return nil, err
		}
		reply = text
	}
	return &agent.Result{Text: reply, Success: true, Usage: shared.TokenUsage{TotalTokens: 10}}, nil
}

func (a *fakeAgent) inputs() []agent.Fields {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]agent.Fields(nil), a.seen...)
}

type fixture struct {
	log        *callLog
	researcher *fakeAgent
	summarizer *fakeAgent
	writer     *fakeAgent
	critic     *fakeAgent
}

func newFixture(criticReplies ...string) *fixture {
	log := &callLog{}
	return &fixture{
		log:        log,
		researcher: &fakeAgent{
			name: "researcher", requires: []string{"problem"},
			replies: []string{"N"}, log: log,
		},
		summarizer: &fakeAgent{
			name: "summarizer", requires: []string{"research_notes"}, optional: []string{"problem"},
			replies: []string{"S"}, log: log,
		},
		writer: &fakeAgent{
			name: "writer", requires: []string{"summary"}, optional: []string{"problem", "draft", "critique", "revision_count"},
			replies: []string{"D1", "D2", "D3", "D4", "D5", "D6"}, log: log,
		},
		critic: &fakeAgent{
			name: "critic", requires: []string{"draft"}, optional: []string{"problem", "revision_count"},
			replies: criticReplies, log: log,
		},
	}
}

func (f *fixture) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	p, err := NewPipeline(f.researcher, f.summarizer, f.writer, f.critic)
	require.NoError(t, err)
	o, err := New(p, opts...)
	require.NoError(t, err)
	return o
}

const problem = "Explain photosynthesis in 3 sentences"

func TestRunAcceptedFirstDraft(t *testing.T) {
	f := newFixture("APPROVED")
	o := f.orchestrator(t)

	art, err := o.Run(t.Context(), problem)
	require.NoError(t, err)

	assert.Equal(t, "D1", art.Text)
	assert.True(t, art.Approved)
	assert.Equal(t, 0, art.Revisions)
	assert.Equal(t, "N", art.ResearchNotes)
	assert.Equal(t, "S", art.Summary)
	assert.NotEmpty(t, art.RunID)
	assert.Equal(t, []string{"researcher", "summarizer", "writer", "critic"}, f.log.all())

	assert.Equal(t, problem, f.researcher.inputs()[0]["problem"])
	assert.Equal(t, "N", f.summarizer.inputs()[0]["research_notes"])
	assert.Equal(t, "S", f.writer.inputs()[0]["summary"])
	assert.Equal(t, "D1", f.critic.inputs()[0]["draft"])
}

func TestRunRevisedOnce(t *testing.T) {
	f := newFixture("FEEDBACK: add an example of chlorophyll", "APPROVED")
	o := f.orchestrator(t)

	art, err := o.Run(t.Context(), problem)
	require.NoError(t, err)

	assert.Equal(t, "D2", art.Text)
	assert.True(t, art.Approved)
	assert.Equal(t, 1, art.Revisions)

	writes := f.writer.inputs()
	require.Len(t, writes, 2)
	assert.NotContains(t, writes[0], "critique")
	assert.Equal(t, "S", writes[1]["summary"])
	assert.Equal(t, "D1", writes[1]["draft"])
	assert.Equal(t, "FEEDBACK: add an example of chlorophyll", writes[1]["critique"])

	assert.Equal(t, "D2", f.critic.inputs()[1]["draft"])
	assert.Equal(t, "1", f.critic.inputs()[1]["revision_count"])
}

func TestRunRevisionCapReached(t *testing.T) {
	f := newFixture("FEEDBACK: too vague")
	o := f.orchestrator(t, WithMaxRevisions(1))

	art, err := o.Run(t.Context(), problem)
	require.NoError(t, err)

	assert.Equal(t, "D2", art.Text)
	assert.False(t, art.Approved)
	assert.Equal(t, 1, art.Revisions)
	assert.Equal(t, "FEEDBACK: too vague", art.Critique)
}

func TestRunAlwaysRejectTerminates(t *testing.T) {
	for max := 0; max <= 4; max++ {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			f := newFixture("REJECTED: start over")
			o := f.orchestrator(t, WithMaxRevisions(max))

			art, err := o.Run(t.Context(), problem)
			require.NoError(t, err)

			assert.False(t, art.Approved)
			assert.Equal(t, max, art.Revisions)
			assert.Equal(t, max+1, f.log.count("writer"))
			assert.Equal(t, max+1, f.log.count("critic"))
			assert.Equal(t, max+4, art.Stats.CallsMade)
		})
	}
}

func TestRunNoCallsAfterAcceptance(t *testing.T) {
	f := newFixture("FEEDBACK: a", "FEEDBACK: b", "LGTM", "FEEDBACK: never seen")
	o := f.orchestrator(t, WithMaxRevisions(5))

	art, err := o.Run(t.Context(), problem)
	require.NoError(t, err)

	assert.True(t, art.Approved)
	assert.Equal(t, 2, art.Revisions)
	assert.Equal(t, "D3", art.Text)
	assert.Equal(t, 3, f.log.count("critic"))
	assert.Equal(t, 3, f.log.count("writer"))
	assert.Equal(t, "critic", f.log.all()[len(f.log.all())-1])
}

func TestRunStageOrdering(t *testing.T) {
	f := newFixture("FEEDBACK: x", "APPROVED")
	o := f.orchestrator(t)

	_, err := o.Run(t.Context(), problem)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"researcher", "summarizer", "writer", "critic", "writer", "critic",
	}, f.log.all())
}

func TestRunStageFailure(t *testing.T) {
	boom := &agent.AgentInvocationError{Agent: "x", Err: errors.New("backend timeout")}
	fail := func(ctx context.Context, f agent.Fields) (string, error) { return "", boom }

	tests := []struct {
		stage StageName
		setup func(f *fixture)
		calls []string
	}{
		{StageResearch, func(f *fixture) { f.researcher.respond = fail }, []string{"researcher"}},
		{StageSummarize, func(f *fixture) { f.summarizer.respond = fail }, []string{"researcher", "summarizer"}},
		{StageWrite, func(f *fixture) { f.writer.respond = fail }, []string{"researcher", "summarizer", "writer"}},
		{StageCritique, func(f *fixture) { f.critic.respond = fail }, []string{"researcher", "summarizer", "writer", "critic"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			f := newFixture("APPROVED")
			tt.setup(f)
			o := f.orchestrator(t)

			art, err := o.Run(t.Context(), problem)
			assert.Nil(t, art)

			var pe *PipelineError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.stage, pe.Stage)
			assert.Contains(t, err.Error(), string(tt.stage))

			var invocation *agent.AgentInvocationError
			assert.ErrorAs(t, err, &invocation)
			assert.Equal(t, tt.calls, f.log.all())
		})
	}
}

func TestRunWriterFailsDuringRevision(t *testing.T) {
	f := newFixture("FEEDBACK: more detail")
	calls := 0
	f.writer.respond = func(ctx context.Context, fields agent.Fields) (string, error) {
		calls++
		if calls == 2 {
			return "", &agent.AgentInvocationError{Agent: "writer", Err: agent.ErrEmptyResponse}
		}
		return "D1", nil
	}
	o := f.orchestrator(t)

	art, err := o.Run(t.Context(), problem)
	assert.Nil(t, art)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageWrite, pe.Stage)
	assert.ErrorIs(t, err, agent.ErrEmptyResponse)
}

func TestRunMissingContextSurfacesAsPipelineError(t *testing.T) {
	f := newFixture("APPROVED")
	f.summarizer.respond = func(ctx context.Context, fields agent.Fields) (string, error) {
		return "", &agent.MissingContextError{Agent: "summarizer", Field: "research_notes"}
	}
	o := f.orchestrator(t)

	_, err := o.Run(t.Context(), problem)
	var missing *agent.MissingContextError
	require.ErrorAs(t, err, &missing)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageSummarize, pe.Stage)
}

func TestRunCancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	f := newFixture("APPROVED")
	var agentCtxErr error
	f.researcher.respond = func(actx context.Context, fields agent.Fields) (string, error) {
		cancel()
		agentCtxErr = actx.Err()
		return "N", nil
	}
	o := f.orchestrator(t)

	art, err := o.Run(ctx, problem)
	assert.Nil(t, art)
	assert.NoError(t, agentCtxErr, "in-flight call must not observe cancellation")

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageSummarize, pe.Stage)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"researcher"}, f.log.all())
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	f := newFixture("APPROVED")
	o := f.orchestrator(t)

	_, err := o.Run(ctx, problem)
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageResearch, pe.Stage)
	assert.Empty(t, f.log.all())
}

func TestRunEmptyProblem(t *testing.T) {
	f := newFixture("APPROVED")
	o := f.orchestrator(t)

	_, err := o.Run(t.Context(), "  \n\t ")
	assert.ErrorIs(t, err, ErrEmptyProblem)
	assert.Empty(t, f.log.all())
}

func TestRunMaxRevisionsOverride(t *testing.T) {
	f := newFixture("FEEDBACK: no")
	o := f.orchestrator(t, WithMaxRevisions(3))

	art, err := o.Run(t.Context(), problem, RunMaxRevisions(0))
	require.NoError(t, err)
	assert.Equal(t, 0, art.Revisions)
	assert.Equal(t, "D1", art.Text)

	_, err = o.Run(t.Context(), problem, RunMaxRevisions(-1))
	assert.ErrorIs(t, err, ErrInvalidMaxRevisions)
}

func TestNewValidation(t *testing.T) {
	f := newFixture("APPROVED")
	p, err := NewPipeline(f.researcher, f.summarizer, f.writer, f.critic)
	require.NoError(t, err)

	_, err = New(p, WithMaxRevisions(-1))
	assert.ErrorIs(t, err, ErrInvalidMaxRevisions)

	_, err = New(p, WithPolicy("vibes"))
	assert.Error(t, err)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrInvalidPipeline)

	_, err = New(&Pipeline{})
	assert.ErrorIs(t, err, ErrInvalidPipeline)

	_, err = New(&Pipeline{stages: p.Stages()[:3]})
	assert.ErrorIs(t, err, ErrInvalidPipeline)

	o, err := New(p)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRevisions, o.MaxRevisions())
	assert.Equal(t, PolicyKeywordMatch, o.Policy())
}

func TestNewPipelineDependencyOrder(t *testing.T) {
	f := newFixture("APPROVED")
	f.summarizer.requires = []string{"draft"}

	_, err := NewPipeline(f.researcher, f.summarizer, f.writer, f.critic)
	assert.ErrorIs(t, err, ErrInvalidPipeline)
	assert.Contains(t, err.Error(), "summarize")

	_, err = NewPipeline(f.researcher, nil, f.writer, f.critic)
	assert.ErrorIs(t, err, ErrInvalidPipeline)
}

func TestPipelineStagesOrder(t *testing.T) {
	f := newFixture("APPROVED")
	p, err := NewPipeline(f.researcher, f.summarizer, f.writer, f.critic)
	require.NoError(t, err)

	var names []StageName
	for _, s := range p.Stages() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []StageName{StageResearch, StageSummarize, StageWrite, StageCritique}, names)
}

func TestRunConcurrent(t *testing.T) {
	echo := func(prefix string) func(ctx context.Context, f agent.Fields) (string, error) {
		return func(ctx context.Context, f agent.Fields) (string, error) {
			return prefix + ":" + f["problem"], nil
		}
	}
	f := newFixture()
	f.researcher.respond = echo("notes")
	f.summarizer.respond = echo("summary")
	f.writer.respond = func(ctx context.Context, fields agent.Fields) (string, error) {
		if fields["critique"] != "" {
			return "draft:" + fields["summary"] + ":revised", nil
		}
		return "draft:" + fields["summary"], nil
	}
	f.critic.respond = func(ctx context.Context, fields agent.Fields) (string, error) {
		if strings.HasSuffix(fields["draft"], ":revised") {
			return "APPROVED", nil
		}
		return "FEEDBACK: again", nil
	}
	o := f.orchestrator(t)

	const runs = 16
	var wg sync.WaitGroup
	results := make([]*FinalArtifact, runs)
	errs := make([]error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Run(t.Context(), fmt.Sprintf("problem %d", i))
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for i := 0; i < runs; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("draft:summary:problem %d:revised", i), results[i].Text)
		assert.True(t, results[i].Approved)
		assert.Equal(t, 1, results[i].Revisions)
		ids[results[i].RunID] = true
	}
	assert.Len(t, ids, runs)
}

func TestRunObserverAndStats(t *testing.T) {
	f := newFixture("FEEDBACK: x", "APPROVED")
	var events []Event
	o := f.orchestrator(t, WithObserver(func(e Event) { events = append(events, e) }))

	art, err := o.Run(t.Context(), problem)
	require.NoError(t, err)

	assert.Equal(t, 6, art.Stats.CallsMade)
	assert.Equal(t, 60, art.Stats.Usage.TotalTokens)
	require.Len(t, art.Stats.Stages, 6)
	assert.Equal(t, StageWrite, art.Stats.Stages[4].Stage)
	assert.Equal(t, 0, art.Stats.Stages[4].Revision)
	assert.Equal(t, 1, art.Stats.Stages[5].Revision)
	assert.False(t, art.Stats.FinishedAt.Before(art.Stats.StartedAt))

	var verdicts []bool
	for _, e := range events {
		assert.Equal(t, art.RunID, e.RunID)
		if e.Type == EventVerdict {
			verdicts = append(verdicts, e.Approved)
		}
	}
	assert.Equal(t, []bool{false, true}, verdicts)
	assert.Equal(t, EventStageStarted, events[0].Type)
	assert.Equal(t, StageResearch, events[0].Stage)
}

func TestRunExplicitFlagPolicy(t *testing.T) {
	f := newFixture(
		`{"approved": false, "feedback": "Mention the Calvin cycle."}`,
		"```json\n{\"approved\": true, \"feedback\": \"\"}\n```",
	)
	o := f.orchestrator(t, WithPolicy(PolicyExplicitFlag))

	art, err := o.Run(t.Context(), problem)
	require.NoError(t, err)
	assert.True(t, art.Approved)
	assert.Equal(t, 1, art.Revisions)
	assert.Equal(t, "Mention the Calvin cycle.", f.writer.inputs()[1]["critique"])
}

func TestWorkContextView(t *testing.T) {
	w := newWorkContext("P")
	assert.Equal(t, agent.Fields{"problem": "P", "revision_count": "0"}, w.View())

	w.set(agent.FieldResearchNotes, "N")
	w.set(agent.FieldDraft, "D")
	w.RevisionCount = 2
	view := w.View()
	assert.Equal(t, "N", view["research_notes"])
	assert.Equal(t, "D", view["draft"])
	assert.Equal(t, "2", view["revision_count"])
	assert.NotContains(t, view, "summary")

	view["draft"] = "mutated"
	assert.Equal(t, "D", w.Draft)
}

func TestRunPassesOnlyDeclaredFields(t *testing.T) {
	f := newFixture("FEEDBACK: add the Calvin cycle", "APPROVED")
	o := f.orchestrator(t)

	_, err := o.Run(t.Context(), problem)
	require.NoError(t, err)

	critic := f.critic.inputs()
	require.Len(t, critic, 2)
	assert.Equal(t, agent.Fields{"problem": problem, "draft": "D1", "revision_count": "0"}, critic[0])
	assert.Equal(t, agent.Fields{"problem": problem, "draft": "D2", "revision_count": "1"}, critic[1])

	writer := f.writer.inputs()
	require.Len(t, writer, 2)
	assert.NotContains(t, writer[1], "research_notes")
	assert.Equal(t, "D1", writer[1]["draft"])
	assert.Equal(t, "FEEDBACK: add the Calvin cycle", writer[1]["critique"])

	assert.Equal(t, agent.Fields{"problem": problem}, f.researcher.inputs()[0])
	assert.Equal(t, agent.Fields{"problem": problem, "research_notes": "N"}, f.summarizer.inputs()[0])
}

func TestWorkContextSelect(t *testing.T) {
	w := newWorkContext("P")
	w.set(agent.FieldResearchNotes, "N")
	w.set(agent.FieldSummary, "S")

	assert.Equal(t, agent.Fields{"problem": "P", "summary": "S"}, w.Select("problem", "summary", "draft"))
	assert.Empty(t, w.Select())
}

func TestPipelineErrorMessage(t *testing.T) {
	err := &PipelineError{Stage: StageWrite, Revision: 2, Err: errors.New("boom")}
	assert.Equal(t, "pipeline failed at stage write (revision 2): boom", err.Error())

	err = &PipelineError{Stage: StageResearch, Err: errors.New("boom")}
	assert.Equal(t, "pipeline failed at stage research: boom", err.Error())
}
