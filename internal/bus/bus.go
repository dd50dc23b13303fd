// Package bus publishes evaluation events to in-process subscribers or Kafka.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/rice-eval/internal/evaluation"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type, usually the topic it was published on.
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix nanoseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links related events, e.g. the two evaluations
	// behind a comparison.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Topics.
const (
	TopicEvaluationCompleted = "evaluation.completed"
	TopicComparisonCompleted = "comparison.completed"
)

// EvaluationCompleted is the payload of TopicEvaluationCompleted.
type EvaluationCompleted struct {
	Source  string                   `json:"source"`
	Queries int                      `json:"queries"`
	Scores  []evaluation.CutoffScore `json:"scores"`
}

// ComparisonCompleted is the payload of TopicComparisonCompleted.
type ComparisonCompleted struct {
	HistoryID    string                        `json:"history_id,omitempty"`
	Label        string                        `json:"label,omitempty"`
	BeforeSource string                        `json:"before_source"`
	AfterSource  string                        `json:"after_source"`
	Records      []evaluation.ComparisonRecord `json:"records"`
	MeanPercent  *float64                      `json:"mean_percent"`
}

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixNano(),
		Payload:   payload,
	}
}

// NewEvaluationEvent builds a TopicEvaluationCompleted event for sweep.
func NewEvaluationEvent(source string, sweep *evaluation.Sweep) Event {
	payload := EvaluationCompleted{Source: sweep.Source, Scores: sweep.Scores}
	if len(sweep.Scores) > 0 {
		payload.Queries = sweep.Scores[0].QueryCount
	}
	return NewEvent(TopicEvaluationCompleted, source, payload)
}

// NewComparisonEvent builds a TopicComparisonCompleted event for cmp.
// historyID is empty when the comparison was not stored.
func NewComparisonEvent(source, historyID string, cmp *evaluation.Comparison) Event {
	payload := ComparisonCompleted{
		HistoryID: historyID,
		Label:     cmp.Label,
		Records:   cmp.Records,
	}
	if cmp.Before != nil {
		payload.BeforeSource = cmp.Before.Source
	}
	if cmp.After != nil {
		payload.AfterSource = cmp.After.Source
	}
	if cmp.Summary.Defined > 0 {
		mean := cmp.Summary.MeanPercent
		payload.MeanPercent = &mean
	}

	event := NewEvent(TopicComparisonCompleted, source, payload)
	event.CorrelationID = historyID
	return event
}
