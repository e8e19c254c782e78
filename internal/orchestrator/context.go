package orchestrator

import (
	"strconv"
	"strings"

	"agentarium/internal/agent"
)

// ProblemStatement is the task a run works on. It is fixed for the whole run.
type ProblemStatement string

// NewProblemStatement trims text and rejects blank input.
func NewProblemStatement(text string) (ProblemStatement, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyProblem
	}
	return ProblemStatement(text), nil
}

// WorkContext accumulates the intermediate results of one run. Each run owns
// its own instance and only the orchestrator writes to it.
type WorkContext struct {
	Problem       ProblemStatement
	ResearchNotes string
	Summary       string
	Draft         string
	Critique      string
	RevisionCount int
}

func newWorkContext(problem ProblemStatement) *WorkContext {
	return &WorkContext{Problem: problem}
}

// View returns a copy of the populated fields keyed by field name.
func (w *WorkContext) View() agent.Fields {
	fields := agent.Fields{
		agent.FieldProblem:       string(w.Problem),
		agent.FieldRevisionCount: strconv.Itoa(w.RevisionCount),
	}
	for name, value := range map[string]string{
		agent.FieldResearchNotes: w.ResearchNotes,
		agent.FieldSummary:       w.Summary,
		agent.FieldDraft:         w.Draft,
		agent.FieldCritique:      w.Critique,
	} {
		if value != "" {
			fields[name] = value
		}
	}
	return fields
}

// Select returns the populated fields among names. The orchestrator uses it
// to hand each agent only the fields it declares.
func (w *WorkContext) Select(names ...string) agent.Fields {
	all := w.View()
	fields := make(agent.Fields, len(names))
	for _, name := range names {
		if value, ok := all[name]; ok {
			fields[name] = value
		}
	}
	return fields
}

// set stores a stage result in the named field.
func (w *WorkContext) set(field, value string) {
	switch field {
	case agent.FieldResearchNotes:
		w.ResearchNotes = value
	case agent.FieldSummary:
		w.Summary = value
	case agent.FieldDraft:
		w.Draft = value
	case agent.FieldCritique:
		w.Critique = value
	}
}
