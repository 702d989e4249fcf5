// Package ports declares the interfaces the application layer depends on,
// keeping infrastructure swappable the way the teacher's
// internal/domain/ports package does (event_publisher.go, action_executor.go).
package ports

import (
	"context"
	"database/sql"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/events"
)

// EventSink is what a business closure hands back to the Command Handler
// Harness: the HTTP response body plus the full event_spec the harness
// appends to the outbox in the same transaction (spec.md §4.1 step 3).
type EventSink struct {
	EventType        events.EventType
	SchemaVersion    int
	AggregateType    string
	AggregateID      string
	AggregateVersion *int64
	Payload          events.Payload
}

// BusinessFunc is the fixed contract every endpoint's business closure
// conforms to: (request, transaction handle) -> (response body, event spec).
// The Command Harness treats the set of registered BusinessFuncs as a
// function-valued table keyed by route, per spec.md §9 — not an inheritance
// hierarchy.
type BusinessFunc func(ctx context.Context, tx *sql.Tx) (interface{}, *EventSink, error)

// Subscriber is implemented by the SSE hub: the relay delivers one
// envelope at a time and expects synchronous acknowledgement (every live
// subscriber accepted it or was evicted) before marking the envelope
// shipped (spec.md §4.4).
type Subscriber interface {
	Broadcast(ctx context.Context, envelope events.Envelope) error
}
