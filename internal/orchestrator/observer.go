package orchestrator

import "time"

// EventType classifies an Event.
type EventType string

const (
	EventStageStarted  EventType = "stage_started"
	EventStageFinished EventType = "stage_finished"
	EventStageFailed   EventType = "stage_failed"
	EventVerdict       EventType = "verdict"
)

// Event reports progress within a run.
type Event struct {
	RunID    string
	Type     EventType
	Stage    StageName
	Revision int
	Duration time.Duration
	Approved bool
	Err      error
}

// Observer receives events synchronously from the goroutine calling Run.
type Observer func(Event)
