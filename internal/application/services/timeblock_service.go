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

// TimeBlockService owns the business closures for time-block endpoints.
type TimeBlockService struct {
	timeBlocks *persistence.TimeBlockRepository
	tasks      *persistence.TaskRepository
}

// NewTimeBlockService creates a new TimeBlockService.
func NewTimeBlockService(timeBlocks *persistence.TimeBlockRepository, tasks *persistence.TaskRepository) *TimeBlockService {
	return &TimeBlockService{timeBlocks: timeBlocks, tasks: tasks}
}

// CreateTimeBlockInput is the decoded request body for block creation.
type CreateTimeBlockInput struct {
	TaskID  string    `json:"task_id"`
	AreaID  string    `json:"area_id"`
	Title   string    `json:"title"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	// Shared marks a block as a standalone reference the task merely points
	// at rather than owns outright: deleting TaskID leaves this block in
	// place instead of cascading its deletion (spec.md §8 scenario 2).
	Shared bool `json:"shared"`
}

// Create returns a BusinessFunc that schedules a new time block, optionally
// linked to a task.
func (s *TimeBlockService) Create(in CreateTimeBlockInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		if in.Title == "" {
			return nil, nil, cutierr.NewValidationError("title", "must not be empty")
		}
		if !in.EndAt.After(in.StartAt) {
			return nil, nil, cutierr.NewValidationError("end_at", "must be after start_at")
		}
		if in.TaskID != "" {
			if _, err := s.tasks.Get(ctx, tx, in.TaskID); err != nil {
				return nil, nil, err
			}
		}

		now := time.Now().UTC()
		b := models.TimeBlock{
			ID:        uuid.NewString(),
			TaskID:    in.TaskID,
			AreaID:    in.AreaID,
			Title:     in.Title,
			StartAt:   in.StartAt,
			EndAt:     in.EndAt,
			Status:    models.DeriveStatus(models.TimeBlock{StartAt: in.StartAt, EndAt: in.EndAt}, now),
			Shared:    in.Shared,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.timeBlocks.Insert(ctx, tx, b); err != nil {
			return nil, nil, cutierr.NewDatabaseTransientError("insert time block", err)
		}

		version := b.Version
		sink := &ports.EventSink{
			EventType:        events.TimeBlockCreated,
			SchemaVersion:    1,
			AggregateType:    "time_block",
			AggregateID:      b.ID,
			AggregateVersion: &version,
			Payload:          events.Payload{Data: b.ToMap()},
		}
		return b.ToMap(), sink, nil
	}
}

// UpdateTimeBlockInput is the decoded request body for a block reschedule.
type UpdateTimeBlockInput struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	ExpectedVersion int64     `json:"expected_version"`
}

// Update returns a BusinessFunc that reschedules or retitles a block.
func (s *TimeBlockService) Update(in UpdateTimeBlockInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		if !in.EndAt.After(in.StartAt) {
			return nil, nil, cutierr.NewValidationError("end_at", "must be after start_at")
		}
		b, err := s.timeBlocks.Get(ctx, tx, in.ID)
		if err != nil {
			return nil, nil, err
		}

		now := time.Now().UTC()
		b.Title = in.Title
		b.StartAt = in.StartAt
		b.EndAt = in.EndAt
		b.Status = models.DeriveStatus(b, now)
		b.Version++
		b.UpdatedAt = now

		if err := s.timeBlocks.Update(ctx, tx, b, b.Version-1); err != nil {
			return nil, nil, err
		}

		version := b.Version
		sink := &ports.EventSink{
			EventType:        events.TimeBlockUpdated,
			SchemaVersion:    1,
			AggregateType:    "time_block",
			AggregateID:      b.ID,
			AggregateVersion: &version,
			Payload:          events.Payload{Data: b.ToMap()},
		}
		return b.ToMap(), sink, nil
	}
}

// DeleteTimeBlockInput is the decoded request body for block deletion.
type DeleteTimeBlockInput struct {
	ID string `json:"id"`
}

// Delete returns a BusinessFunc that removes a standalone time block. It
// carries no side effects of its own — deleting a block never touches its
// parent task — unlike task deletion, which cascades the other direction.
func (s *TimeBlockService) Delete(in DeleteTimeBlockInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		b, err := s.timeBlocks.Get(ctx, tx, in.ID)
		if err != nil {
			return nil, nil, err
		}
		if err := s.timeBlocks.Delete(ctx, tx, b.ID); err != nil {
			return nil, nil, cutierr.NewDatabaseTransientError("delete time block", err)
		}

		sink := &ports.EventSink{
			EventType:     events.TimeBlockDeleted,
			SchemaVersion: 1,
			AggregateType: "time_block",
			AggregateID:   b.ID,
			Payload: events.Payload{
				Data: map[string]interface{}{"time_block": map[string]interface{}{"id": b.ID}},
			},
		}
		return sink.Payload.Data, sink, nil
	}
}
