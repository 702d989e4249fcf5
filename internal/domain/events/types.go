// Package events defines the domain event vocabulary and the envelope
// shape that is the central entity of the Transactional Change-Propagation
// Spine (spec.md §3).
package events

import (
	"encoding/json"
	"time"
)

// EventType is a dotted, hierarchical event name: <aggregate>.<verb>.
type EventType string

const (
	TaskCreated    EventType = "task.created"
	TaskUpdated    EventType = "task.updated"
	TaskCompleted  EventType = "task.completed"
	TaskReopened   EventType = "task.reopened"
	TaskDeleted    EventType = "task.deleted"

	TimeBlockCreated EventType = "time_block.created"
	TimeBlockUpdated EventType = "time_block.updated"
	TimeBlockDeleted EventType = "time_block.deleted"

	AreaCreated EventType = "area.created"
	AreaUpdated EventType = "area.updated"
	AreaDeleted EventType = "area.deleted"
)

// String returns the string representation of the event type.
func (e EventType) String() string { return string(e) }

// ShipmentState is the outbox row's delivery status (spec.md §3).
type ShipmentState string

const (
	ShipmentPending ShipmentState = "pending"
	ShipmentShipped ShipmentState = "shipped"
	ShipmentFailed  ShipmentState = "failed"
)

// Envelope is the self-contained domain-event record persisted in the
// outbox and transmitted verbatim over SSE. Consumers must never need a
// follow-up query to reflect it (spec.md §3).
type Envelope struct {
	EventID          string          `json:"event_id"`
	InsertionSeq     int64           `json:"insertion_seq"`
	EventType        EventType       `json:"event_type"`
	SchemaVersion    int             `json:"schema_version"`
	AggregateType    string          `json:"aggregate_type"`
	AggregateID      string          `json:"aggregate_id"`
	AggregateVersion *int64          `json:"aggregate_version,omitempty"`
	CorrelationID    string          `json:"correlation_id,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	Payload          Payload         `json:"payload"`
	ShipmentState    ShipmentState   `json:"-"`
	Attempts         int             `json:"-"`
	LastError        string          `json:"-"`
}

// Payload is the structured document attached to an envelope: the complete
// post-state of the aggregate plus the side_effects document listing
// collaterally-affected aggregates.
type Payload struct {
	// Data carries the aggregate-specific post-state, named after the
	// aggregate (e.g. {"task": {...}}). It is what the HTTP response body's
	// "data" field equals, guaranteeing HTTP/SSE parity (spec.md §4.1).
	Data map[string]interface{} `json:"-"`

	// SideEffects enumerates collaterally-affected aggregates grouped by
	// effect kind (deleted, truncated, reordered, ...). Never inferred by
	// consumers — always explicit.
	SideEffects map[string][]string `json:"side_effects,omitempty"`
}

// MarshalJSON flattens Data's keys alongside side_effects so the envelope's
// payload field is a single flat document, matching the teacher's gin.H
// envelope style and spec.md's worked examples (§8 scenario 1/2).
func (p Payload) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(p.Data)+1)
	for k, v := range p.Data {
		flat[k] = v
	}
	if p.SideEffects != nil {
		flat["side_effects"] = p.SideEffects
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reconstructs Payload from a flat document, peeling
// side_effects back out into its own field.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var flat map[string]interface{}
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	data := make(map[string]interface{}, len(flat))
	var sideEffects map[string][]string
	for k, v := range flat {
		if k == "side_effects" {
			sideEffects = toStringSliceMap(v)
			continue
		}
		data[k] = v
	}
	p.Data = data
	p.SideEffects = sideEffects
	return nil
}

func toStringSliceMap(v interface{}) map[string][]string {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for k, list := range raw {
		items, ok := list.([]interface{})
		if !ok {
			continue
		}
		ids := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		out[k] = ids
	}
	return out
}
