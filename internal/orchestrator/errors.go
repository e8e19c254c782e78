package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyProblem is returned when Run is given a blank problem statement.
	ErrEmptyProblem = errors.New("problem statement is empty")
	// ErrInvalidPipeline is returned when stages are not in dependency order.
	ErrInvalidPipeline = errors.New("invalid pipeline")
	// ErrInvalidMaxRevisions is returned for a negative revision cap.
	ErrInvalidMaxRevisions = errors.New("max revisions must be zero or greater")
)

// PipelineError is the single error a failed run returns. It names the
// stage that failed and wraps the cause, which stays matchable with
// errors.As (e.g. *agent.AgentInvocationError) and errors.Is
// (e.g. context.Canceled).
type PipelineError struct {
	Stage    StageName
	Revision int
	Err      error
}

func (e *PipelineError) Error() string {
	if e.Revision > 0 {
		return fmt.Sprintf("pipeline failed at stage %s (revision %d): %v", e.Stage, e.Revision, e.Err)
	}
	return fmt.Sprintf("pipeline failed at stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
