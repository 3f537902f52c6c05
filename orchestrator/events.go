package orchestrator

import "github.com/tailored-agentic-units/sentiment/observability"

const (
	EventSessionStart    observability.EventType = "session.start"
	EventSessionComplete observability.EventType = "session.complete"
	EventStageStart      observability.EventType = "stage.start"
	EventStageComplete   observability.EventType = "stage.complete"
)
