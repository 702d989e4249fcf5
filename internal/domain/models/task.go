// Package models defines Cutie's domain aggregates: Task, TimeBlock, Area.
// Deliberately minimal — spec.md puts the full CRUD business-rule richness
// of the real app out of scope; these carry just enough state to exercise
// the spine's side-effect and idempotent-apply contracts (spec.md §8
// scenarios 1 and 2).
package models

import "time"

// Task is the root aggregate a user schedules time against.
type Task struct {
	ID          string     `json:"id"`
	AreaID      string     `json:"area_id,omitempty"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ToMap renders the Task as a generic document for an event envelope's
// payload, keyed "task" as spec.md §8 scenario 1 shows.
func (t Task) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":           t.ID,
		"area_id":      t.AreaID,
		"title":        t.Title,
		"notes":        t.Notes,
		"is_completed": t.IsCompleted,
		"version":      t.Version,
		"created_at":   t.CreatedAt,
		"updated_at":   t.UpdatedAt,
	}
	if t.CompletedAt != nil {
		m["completed_at"] = *t.CompletedAt
	}
	return map[string]interface{}{"task": m}
}
