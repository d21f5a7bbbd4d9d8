package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventBlockRegistered EventType = "block_registered"
	EventMetricsUpdated  EventType = "metrics_updated"
	EventStateChanged    EventType = "state_changed"
	EventGraphValidated  EventType = "graph_validated"
	EventSearch          EventType = "search"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// BlockEvent describes a write to the registry.
type BlockEvent struct {
	EventBase
	ID   BlockID        `json:"id"`
	From LifecycleState `json:"from,omitempty"`
	To   LifecycleState `json:"to,omitempty"`
	Err  error          `json:"-"`
}

// ValidationEvent describes one validation run.
type ValidationEvent struct {
	EventBase
	Steps    int           `json:"steps"`
	Errors   int           `json:"errors"`
	Warnings int           `json:"warnings"`
	Duration time.Duration `json:"duration"`
}

// SearchEvent describes one search call.
type SearchEvent struct {
	EventBase
	Mode     string        `json:"mode"` // "semantic" or "type"
	Results  int           `json:"results"`
	CacheHit bool          `json:"cache_hit,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks for registry observability.
type LifecycleHooks struct {
	OnRegister      func(context.Context, *BlockEvent)
	OnMetricsUpdate func(context.Context, *BlockEvent)
	OnTransition    func(context.Context, *BlockEvent)
	OnValidate      func(context.Context, *ValidationEvent)
	OnSearch        func(context.Context, *SearchEvent)
}
