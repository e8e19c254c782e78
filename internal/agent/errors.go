package agent

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is wrapped by AgentInvocationError when the backend
// returns nothing usable.
var ErrEmptyResponse = errors.New("empty response from backend")

// TemplateNotFoundError reports a prompt template that could not be found.
// It is returned before any backend call is made for the stage.
type TemplateNotFoundError struct {
	Name string
	Err  error
}

func (e *TemplateNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("template not found: %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("template not found: %s", e.Name)
}

func (e *TemplateNotFoundError) Unwrap() error { return e.Err }

// MissingContextError reports an agent invoked without a field it requires.
// It means the pipeline was assembled in the wrong order.
type MissingContextError struct {
	Agent string
	Field string
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("agent %s: missing required context field %q", e.Agent, e.Field)
}

// AgentInvocationError reports a failed or unusable backend call.
type AgentInvocationError struct {
	Agent string
	Err   error
}

func (e *AgentInvocationError) Error() string {
	return fmt.Sprintf("agent %s: invocation failed: %v", e.Agent, e.Err)
}

func (e *AgentInvocationError) Unwrap() error { return e.Err }
