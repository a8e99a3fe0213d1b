package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStageCommitted EventType = "stage_committed"
	EventStageRejected  EventType = "stage_rejected"
	EventEvaluatorCall  EventType = "evaluator_call"
	EventFailOpen       EventType = "fail_open"
	EventNavigateBack   EventType = "navigate_back"
	EventReset          EventType = "reset"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// StageEvent reports a submission outcome at one stage.
type StageEvent struct {
	EventBase
	StageIndex  int    `json:"stage_index"`
	ParameterID string `json:"parameter_id"`
	Before      int    `json:"before"`
	After       int    `json:"after"`
	Err         error  `json:"-"`
}

// EvaluatorEvent reports one evaluator invocation.
type EvaluatorEvent struct {
	EventBase
	EvaluatorRef string         `json:"evaluator_ref"`
	Duration     time.Duration  `json:"duration"`
	Code         InvocationCode `json:"code,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStageCommitted func(context.Context, *StageEvent)
	OnStageRejected  func(context.Context, *StageEvent)
	OnEvaluatorCall  func(context.Context, *EvaluatorEvent)
	OnFailOpen       func(context.Context, *EvaluatorEvent)
	OnNavigate       func(context.Context, *StageEvent)
}
