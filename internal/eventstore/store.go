// Package eventstore records what each review pass did in an append-only
// SQLite log and projects it into pass summaries for operators.
package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, passID, eventType string, payload []byte, metadata map[string]string) error

	// GetByPassID retrieves all events for a specific pass.
	GetByPassID(ctx context.Context, passID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}

// Event represents one step of a review pass.
type Event interface {
	ID() int64
	PassID() string
	Type() string
	Timestamp() time.Time
	Payload() []byte
	Metadata() map[string]string
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID        int64
	EventPassID    string
	EventType      string
	EventTimestamp time.Time
	EventPayload   []byte
	EventMetadata  map[string]string
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) PassID() string              { return e.EventPassID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }

// Record appends e to s.
func Record(ctx context.Context, s Store, e Event) error {
	return s.Append(ctx, e.PassID(), e.Type(), e.Payload(), e.Metadata())
}
