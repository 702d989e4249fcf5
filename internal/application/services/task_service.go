package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/events"
	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/models"
	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/ports"
	"github.com/Liyue-Cheng/cutie-sub002/internal/infrastructure/persistence"
	cutierr "github.com/Liyue-Cheng/cutie-sub002/pkg/errors"
)

// TaskService owns the business closures the Command Handler Harness
// invokes for every task-mutating endpoint. Grounded on the teacher's
// per-aggregate service files (internal/application/services/lead_service.go,
// customer_service.go) which return a (response, error) pair from a plain
// method; generalized here to return the (response, *EventSink, error)
// triple the harness's BusinessFunc contract requires.
type TaskService struct {
	tasks      *persistence.TaskRepository
	timeBlocks *persistence.TimeBlockRepository
}

// NewTaskService creates a new TaskService.
func NewTaskService(tasks *persistence.TaskRepository, timeBlocks *persistence.TimeBlockRepository) *TaskService {
	return &TaskService{tasks: tasks, timeBlocks: timeBlocks}
}

// CreateTaskInput is the decoded request body for task creation.
type CreateTaskInput struct {
	AreaID string `json:"area_id"`
	Title  string `json:"title"`
	Notes  string `json:"notes"`
}

// Create returns a BusinessFunc that inserts a new task.
func (s *TaskService) Create(in CreateTaskInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		if in.Title == "" {
			return nil, nil, cutierr.NewValidationError("title", "must not be empty")
		}
		now := time.Now().UTC()
		t := models.Task{
			ID:        uuid.NewString(),
			AreaID:    in.AreaID,
			Title:     in.Title,
			Notes:     in.Notes,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.tasks.Insert(ctx, tx, t); err != nil {
			return nil, nil, cutierr.NewDatabaseTransientError("insert task", err)
		}

		version := t.Version
		sink := &ports.EventSink{
			EventType:        events.TaskCreated,
			SchemaVersion:    1,
			AggregateType:    "task",
			AggregateID:      t.ID,
			AggregateVersion: &version,
			Payload:          events.Payload{Data: t.ToMap()},
		}
		return t.ToMap(), sink, nil
	}
}

// UpdateTaskInput is the decoded request body for a task edit.
type UpdateTaskInput struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Notes           string `json:"notes"`
	AreaID          string `json:"area_id"`
	ExpectedVersion int64  `json:"expected_version"`
}

// Update returns a BusinessFunc that edits a task's title/notes/area,
// enforcing optimistic concurrency against ExpectedVersion (spec.md §7
// ConflictError path).
func (s *TaskService) Update(in UpdateTaskInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		if in.Title == "" {
			return nil, nil, cutierr.NewValidationError("title", "must not be empty")
		}
		t, err := s.tasks.GetForUpdate(ctx, tx, in.ID)
		if err != nil {
			return nil, nil, err
		}
		t.Title = in.Title
		t.Notes = in.Notes
		t.AreaID = in.AreaID
		t.Version++
		t.UpdatedAt = time.Now().UTC()

		if err := s.tasks.Update(ctx, tx, t, t.Version-1); err != nil {
			return nil, nil, err
		}

		version := t.Version
		sink := &ports.EventSink{
			EventType:        events.TaskUpdated,
			SchemaVersion:    1,
			AggregateType:    "task",
			AggregateID:      t.ID,
			AggregateVersion: &version,
			Payload:          events.Payload{Data: t.ToMap()},
		}
		return t.ToMap(), sink, nil
	}
}

// CompleteTaskInput is the decoded request body for task completion.
type CompleteTaskInput struct {
	ID              string `json:"id"`
	ExpectedVersion int64  `json:"expected_version"`
}

// Complete returns a BusinessFunc implementing spec.md §8 scenario 1:
// marking a task done cascades to its time blocks — blocks scheduled
// entirely in the future are deleted, a block straddling now is truncated
// to end at now, and blocks already done are left untouched. The envelope's
// side_effects document lists every collaterally-touched block id so SSE
// subscribers never need a follow-up query.
func (s *TaskService) Complete(in CompleteTaskInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		t, err := s.tasks.GetForUpdate(ctx, tx, in.ID)
		if err != nil {
			return nil, nil, err
		}
		if t.IsCompleted {
			return nil, nil, cutierr.NewPreconditionViolation("task already completed")
		}

		now := time.Now().UTC()
		blocks, err := s.timeBlocks.ListByTask(ctx, tx, t.ID)
		if err != nil {
			return nil, nil, cutierr.NewDatabaseTransientError("list time blocks", err)
		}

		var deleted, truncated []string
		for _, b := range blocks {
			switch models.DeriveStatus(b, now) {
			case models.TimeBlockScheduled:
				if err := s.timeBlocks.Delete(ctx, tx, b.ID); err != nil {
					return nil, nil, cutierr.NewDatabaseTransientError("delete future time block", err)
				}
				deleted = append(deleted, b.ID)
			case models.TimeBlockInProgress:
				b.EndAt = now
				b.Status = models.TimeBlockDone
				b.Version++
				if err := s.timeBlocks.Update(ctx, tx, b, b.Version-1); err != nil {
					return nil, nil, cutierr.NewDatabaseTransientError("truncate time block", err)
				}
				truncated = append(truncated, b.ID)
			}
		}

		t.IsCompleted = true
		t.CompletedAt = &now
		t.Version++
		t.UpdatedAt = now
		if err := s.tasks.Update(ctx, tx, t, t.Version-1); err != nil {
			return nil, nil, err
		}

		sideEffects := map[string][]string{}
		if len(deleted) > 0 {
			sideEffects["time_blocks_deleted"] = deleted
		}
		if len(truncated) > 0 {
			sideEffects["time_blocks_truncated"] = truncated
		}

		version := t.Version
		sink := &ports.EventSink{
			EventType:        events.TaskCompleted,
			SchemaVersion:    1,
			AggregateType:    "task",
			AggregateID:      t.ID,
			AggregateVersion: &version,
			Payload:          events.Payload{Data: t.ToMap(), SideEffects: sideEffects},
		}
		return sink.Payload.Data, sink, nil
	}
}

// ReopenTaskInput is the decoded request body for reopening a completed task.
type ReopenTaskInput struct {
	ID              string `json:"id"`
	ExpectedVersion int64  `json:"expected_version"`
}

// Reopen returns a BusinessFunc implementing the policy decided for spec.md
// §9's open question on reopen semantics: reopening clears is_completed and
// completed_at but never resurrects the time blocks that completion deleted
// or truncated — those are gone for good, and the user schedules new ones.
// This keeps Reopen's side effect set empty and its semantics symmetric
// with Create rather than trying to undo an arbitrarily stale cascade.
func (s *TaskService) Reopen(in ReopenTaskInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		t, err := s.tasks.GetForUpdate(ctx, tx, in.ID)
		if err != nil {
			return nil, nil, err
		}
		if !t.IsCompleted {
			return nil, nil, cutierr.NewPreconditionViolation("task is not completed")
		}

		t.IsCompleted = false
		t.CompletedAt = nil
		t.Version++
		t.UpdatedAt = time.Now().UTC()
		if err := s.tasks.Update(ctx, tx, t, t.Version-1); err != nil {
			return nil, nil, err
		}

		version := t.Version
		sink := &ports.EventSink{
			EventType:        events.TaskReopened,
			SchemaVersion:    1,
			AggregateType:    "task",
			AggregateID:      t.ID,
			AggregateVersion: &version,
			Payload:          events.Payload{Data: t.ToMap()},
		}
		return t.ToMap(), sink, nil
	}
}

// DeleteTaskInput is the decoded request body for task deletion.
type DeleteTaskInput struct {
	ID string `json:"id"`
}

// Delete returns a BusinessFunc implementing spec.md §8 scenario 2: deleting
// a task deletes every time block it owns outright (Shared == false) as an
// orphan, but leaves a Shared block alone — that block is a standalone
// reference the task merely points at, not owns, so it survives the task's
// deletion, detached from it by the schema's ON DELETE SET NULL on
// time_blocks.task_id. The side_effects document lists only the blocks
// actually deleted; a surviving shared block is never in it.
func (s *TaskService) Delete(in DeleteTaskInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		t, err := s.tasks.GetForUpdate(ctx, tx, in.ID)
		if err != nil {
			return nil, nil, err
		}

		blocks, err := s.timeBlocks.ListByTask(ctx, tx, t.ID)
		if err != nil {
			return nil, nil, cutierr.NewDatabaseTransientError("list time blocks", err)
		}

		var deletedBlocks []string
		for _, b := range blocks {
			if b.Shared {
				continue
			}
			if err := s.timeBlocks.Delete(ctx, tx, b.ID); err != nil {
				return nil, nil, cutierr.NewDatabaseTransientError("delete orphaned time block", err)
			}
			deletedBlocks = append(deletedBlocks, b.ID)
		}

		if err := s.tasks.Delete(ctx, tx, t.ID); err != nil {
			return nil, nil, cutierr.NewDatabaseTransientError("delete task", err)
		}

		sideEffects := map[string][]string{}
		if len(deletedBlocks) > 0 {
			sideEffects["time_blocks_deleted"] = deletedBlocks
		}

		sink := &ports.EventSink{
			EventType:     events.TaskDeleted,
			SchemaVersion: 1,
			AggregateType: "task",
			AggregateID:   t.ID,
			Payload: events.Payload{
				Data:        map[string]interface{}{"task": map[string]interface{}{"id": t.ID}},
				SideEffects: sideEffects,
			},
		}
		return sink.Payload.Data, sink, nil
	}
}
