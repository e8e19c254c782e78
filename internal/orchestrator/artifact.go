package orchestrator

import (
	"time"

	"agentarium/internal/llm/providers/shared"
)

// FinalArtifact is the result of a successful run. Approved is false when
// the revision cap was reached without the critic accepting the draft.
type FinalArtifact struct {
	RunID         string `json:"run_id"`
	Text          string `json:"text"`
	Approved      bool   `json:"approved"`
	Revisions     int    `json:"revisions"`
	ResearchNotes string `json:"research_notes"`
	Summary       string `json:"summary"`
	Critique      string `json:"critique"`
	Stats         Stats  `json:"stats"`
}

// Stats describes the work a run did.
type Stats struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Duration   time.Duration     `json:"duration"`
	CallsMade  int               `json:"calls_made"`
	Usage      shared.TokenUsage `json:"usage"`
	Stages     []StageTiming     `json:"stages"`
}

// StageTiming records one agent invocation.
type StageTiming struct {
	Stage    StageName     `json:"stage"`
	Revision int           `json:"revision"`
	Duration time.Duration `json:"duration"`
}
