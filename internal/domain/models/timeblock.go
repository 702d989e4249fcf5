package models

import "time"

// TimeBlockStatus distinguishes a block's relationship to wall-clock time.
type TimeBlockStatus string

const (
	TimeBlockScheduled  TimeBlockStatus = "scheduled"   // starts in the future
	TimeBlockInProgress TimeBlockStatus = "in_progress" // straddles now
	TimeBlockDone       TimeBlockStatus = "done"
)

// TimeBlock is a scheduled span of time, optionally linked to a Task. A
// block marked Shared is referenced by something besides that one task (a
// standalone calendar block a task merely points at, not owns outright),
// which is why task deletion must check Shared before cascading a delete
// (spec.md §8 scenario 2): an owned (non-shared) block is an orphan and is
// deleted with the task; a shared block survives, detached from the
// deleted task by the same ON DELETE SET NULL the schema already applies
// to task_id.
type TimeBlock struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id,omitempty"`
	AreaID    string          `json:"area_id,omitempty"`
	Title     string          `json:"title"`
	StartAt   time.Time       `json:"start_at"`
	EndAt     time.Time       `json:"end_at"`
	Status    TimeBlockStatus `json:"status"`
	Shared    bool            `json:"shared"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ToMap renders the TimeBlock as a generic document keyed "time_block".
func (b TimeBlock) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"time_block": map[string]interface{}{
			"id":         b.ID,
			"task_id":    b.TaskID,
			"area_id":    b.AreaID,
			"title":      b.Title,
			"start_at":   b.StartAt,
			"end_at":     b.EndAt,
			"status":     b.Status,
			"shared":     b.Shared,
			"version":    b.Version,
			"created_at": b.CreatedAt,
			"updated_at": b.UpdatedAt,
		},
	}
}

// DeriveStatus classifies a block relative to now, used when a task
// completes and its future/in-progress blocks must be cascaded (spec.md §8
// scenario 1: future blocks are deleted, in-progress blocks are truncated).
func DeriveStatus(b TimeBlock, now time.Time) TimeBlockStatus {
	switch {
	case b.StartAt.After(now):
		return TimeBlockScheduled
	case b.EndAt.Before(now) || b.EndAt.Equal(now):
		return TimeBlockDone
	default:
		return TimeBlockInProgress
	}
}
