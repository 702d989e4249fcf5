package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/models"
	cutierr "github.com/Liyue-Cheng/cutie-sub002/pkg/errors"
)

// TimeBlockRepository persists TimeBlock rows.
type TimeBlockRepository struct {
	db *sql.DB
}

// NewTimeBlockRepository creates a new TimeBlockRepository.
func NewTimeBlockRepository(db *sql.DB) *TimeBlockRepository {
	return &TimeBlockRepository{db: db}
}

func (r *TimeBlockRepository) executor(exec Executor) Executor {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert creates a new time block row.
func (r *TimeBlockRepository) Insert(ctx context.Context, exec Executor, b models.TimeBlock) error {
	const query = `
		INSERT INTO time_blocks (id, task_id, area_id, title, start_at, end_at, status, shared, version, created_at, updated_at)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.executor(exec).ExecContext(ctx, query,
		b.ID, b.TaskID, b.AreaID, b.Title, b.StartAt.Format(time.RFC3339Nano), b.EndAt.Format(time.RFC3339Nano),
		string(b.Status), boolToInt(b.Shared), b.Version, b.CreatedAt.Format(time.RFC3339Nano), b.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

// Get retrieves a time block by id.
func (r *TimeBlockRepository) Get(ctx context.Context, exec Executor, id string) (models.TimeBlock, error) {
	const query = `
		SELECT id, COALESCE(task_id, ''), COALESCE(area_id, ''), title, start_at, end_at, status, shared, version, created_at, updated_at
		FROM time_blocks WHERE id = ?`
	row := r.executor(exec).QueryRowContext(ctx, query, id)
	b, err := scanTimeBlock(row)
	if err == sql.ErrNoRows {
		return models.TimeBlock{}, cutierr.NewNotFoundError("time_block", id)
	}
	return b, err
}

// ListByTask returns every time block referencing taskID, used to compute
// task-completion and task-deletion side effects (spec.md §8 scenarios 1, 2).
func (r *TimeBlockRepository) ListByTask(ctx context.Context, exec Executor, taskID string) ([]models.TimeBlock, error) {
	const query = `
		SELECT id, COALESCE(task_id, ''), COALESCE(area_id, ''), title, start_at, end_at, status, shared, version, created_at, updated_at
		FROM time_blocks WHERE task_id = ?`
	rows, err := r.executor(exec).QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TimeBlock
	for rows.Next() {
		b, err := scanTimeBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Update persists a block's mutable fields with optimistic concurrency.
func (r *TimeBlockRepository) Update(ctx context.Context, exec Executor, b models.TimeBlock, expectedVersion int64) error {
	const query = `
		UPDATE time_blocks
		SET title = ?, start_at = ?, end_at = ?, status = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.executor(exec).ExecContext(ctx, query,
		b.Title, b.StartAt.Format(time.RFC3339Nano), b.EndAt.Format(time.RFC3339Nano), string(b.Status),
		b.Version, b.UpdatedAt.Format(time.RFC3339Nano), b.ID, expectedVersion)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return cutierr.NewConflictError("time_block", fmt.Sprintf("expected version %d", expectedVersion))
	}
	return nil
}

// Delete removes a time block row.
func (r *TimeBlockRepository) Delete(ctx context.Context, exec Executor, id string) error {
	_, err := r.executor(exec).ExecContext(ctx, `DELETE FROM time_blocks WHERE id = ?`, id)
	return err
}

// List returns every time block — backs the bulk-fetch resync endpoint.
func (r *TimeBlockRepository) List(ctx context.Context) ([]models.TimeBlock, error) {
	const query = `
		SELECT id, COALESCE(task_id, ''), COALESCE(area_id, ''), title, start_at, end_at, status, shared, version, created_at, updated_at
		FROM time_blocks ORDER BY start_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TimeBlock
	for rows.Next() {
		b, err := scanTimeBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanTimeBlock(row rowScanner) (models.TimeBlock, error) {
	var b models.TimeBlock
	var startAt, endAt, createdAt, updatedAt, status string
	var shared int
	if err := row.Scan(&b.ID, &b.TaskID, &b.AreaID, &b.Title, &startAt, &endAt, &status, &shared, &b.Version, &createdAt, &updatedAt); err != nil {
		return models.TimeBlock{}, err
	}
	b.Status = models.TimeBlockStatus(status)
	b.Shared = shared != 0
	if ts, err := time.Parse(time.RFC3339Nano, startAt); err == nil {
		b.StartAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, endAt); err == nil {
		b.EndAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		b.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		b.UpdatedAt = ts
	}
	return b, nil
}
