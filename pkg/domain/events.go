package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepStart EventType = "step_start"
	EventStepEnd   EventType = "step_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
}

// StepEvent reports entry into or exit from a pipeline step.
type StepEvent struct {
	EventBase
	Step    string        `json:"step"`
	Index   int           `json:"index"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
	Err     error         `json:"-"`
}

// LifecycleHooks defines callbacks for pipeline observability.
type LifecycleHooks struct {
	OnStepStart func(context.Context, *StepEvent)
	OnStepEnd   func(context.Context, *StepEvent)
}
