package orchestrator

import (
	"fmt"

	"agentarium/internal/agent"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageResearch  StageName = "research"
	StageSummarize StageName = "summarize"
	StageWrite     StageName = "write"
	StageCritique  StageName = "critique"
)

// stageOrder is the fixed execution order.
var stageOrder = []StageName{StageResearch, StageSummarize, StageWrite, StageCritique}

// Stage binds an agent to the work context field it writes.
type Stage struct {
	Name   StageName
	Agent  agent.Agent
	Writes string
}

// Pipeline is the fixed, ordered list of stages. It is immutable after
// construction and safe to share between concurrent runs.
type Pipeline struct {
	stages []Stage
}

// NewPipeline builds the research, summarize, write, critique pipeline and
// checks that every field a stage requires is written by an earlier stage.
func NewPipeline(research, summarize, write, critique agent.Agent) (*Pipeline, error) {
	stages := []Stage{
		{Name: StageResearch, Agent: research, Writes: agent.FieldResearchNotes},
		{Name: StageSummarize, Agent: summarize, Writes: agent.FieldSummary},
		{Name: StageWrite, Agent: write, Writes: agent.FieldDraft},
		{Name: StageCritique, Agent: critique, Writes: agent.FieldCritique},
	}

	available := map[string]bool{
		agent.FieldProblem:       true,
		agent.FieldRevisionCount: true,
	}
	for _, s := range stages {
		if s.Agent == nil {
			return nil, fmt.Errorf("%w: stage %s has no agent", ErrInvalidPipeline, s.Name)
		}
		for _, field := range s.Agent.Requires() {
			if !available[field] {
				return nil, fmt.Errorf("%w: stage %s requires %q before any earlier stage writes it",
					ErrInvalidPipeline, s.Name, field)
			}
		}
		available[s.Writes] = true
	}

	return &Pipeline{stages: stages}, nil
}

// Stages returns a copy of the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// valid reports whether p holds every stage, in order, each with an agent.
// A Pipeline not built by NewPipeline fails this check.
func (p *Pipeline) valid() bool {
	if p == nil || len(p.stages) != len(stageOrder) {
		return false
	}
	for i, s := range p.stages {
		if s.Name != stageOrder[i] || s.Agent == nil {
			return false
		}
	}
	return true
}

func (p *Pipeline) stage(name StageName) Stage {
	for _, s := range p.stages {
		if s.Name == name {
			return s
		}
	}
	panic("orchestrator: unknown stage " + string(name))
}
