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

// AreaService owns the business closures for area endpoints. Areas are the
// lightest aggregate in the model — a label with a color — so its closures
// carry no cascade logic, unlike TaskService.
type AreaService struct {
	areas *persistence.AreaRepository
}

// NewAreaService creates a new AreaService.
func NewAreaService(areas *persistence.AreaRepository) *AreaService {
	return &AreaService{areas: areas}
}

// CreateAreaInput is the decoded request body for area creation.
type CreateAreaInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Create returns a BusinessFunc that inserts a new area.
func (s *AreaService) Create(in CreateAreaInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		if in.Name == "" {
			return nil, nil, cutierr.NewValidationError("name", "must not be empty")
		}
		now := time.Now().UTC()
		a := models.Area{
			ID:        uuid.NewString(),
			Name:      in.Name,
			Color:     in.Color,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.areas.Insert(ctx, tx, a); err != nil {
			return nil, nil, cutierr.NewDatabaseTransientError("insert area", err)
		}

		version := a.Version
		sink := &ports.EventSink{
			EventType:        events.AreaCreated,
			SchemaVersion:    1,
			AggregateType:    "area",
			AggregateID:      a.ID,
			AggregateVersion: &version,
			Payload:          events.Payload{Data: a.ToMap()},
		}
		return a.ToMap(), sink, nil
	}
}

// UpdateAreaInput is the decoded request body for an area edit.
type UpdateAreaInput struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Color           string `json:"color"`
	ExpectedVersion int64  `json:"expected_version"`
}

// Update returns a BusinessFunc that renames or recolors an area.
func (s *AreaService) Update(in UpdateAreaInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		if in.Name == "" {
			return nil, nil, cutierr.NewValidationError("name", "must not be empty")
		}
		a, err := s.areas.Get(ctx, tx, in.ID)
		if err != nil {
			return nil, nil, err
		}
		a.Name = in.Name
		a.Color = in.Color
		a.Version++
		a.UpdatedAt = time.Now().UTC()

		if err := s.areas.Update(ctx, tx, a, a.Version-1); err != nil {
			return nil, nil, err
		}

		version := a.Version
		sink := &ports.EventSink{
			EventType:        events.AreaUpdated,
			SchemaVersion:    1,
			AggregateType:    "area",
			AggregateID:      a.ID,
			AggregateVersion: &version,
			Payload:          events.Payload{Data: a.ToMap()},
		}
		return a.ToMap(), sink, nil
	}
}

// DeleteAreaInput is the decoded request body for area deletion.
type DeleteAreaInput struct {
	ID string `json:"id"`
}

// Delete returns a BusinessFunc that removes an area. Tasks and time blocks
// referencing it are not deleted; the schema's ON DELETE SET NULL clears
// their area_id. An area is a loose grouping, not an ownership relationship,
// so its removal has no side_effects of its own.
func (s *AreaService) Delete(in DeleteAreaInput) ports.BusinessFunc {
	return func(ctx context.Context, tx *sql.Tx) (interface{}, *ports.EventSink, error) {
		a, err := s.areas.Get(ctx, tx, in.ID)
		if err != nil {
			return nil, nil, err
		}
		if err := s.areas.Delete(ctx, tx, a.ID); err != nil {
			return nil, nil, cutierr.NewDatabaseTransientError("delete area", err)
		}

		sink := &ports.EventSink{
			EventType:     events.AreaDeleted,
			SchemaVersion: 1,
			AggregateType: "area",
			AggregateID:   a.ID,
			Payload: events.Payload{
				Data: map[string]interface{}{"area": map[string]interface{}{"id": a.ID}},
			},
		}
		return sink.Payload.Data, sink, nil
	}
}
