package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/models"
	cutierr "github.com/Liyue-Cheng/cutie-sub002/pkg/errors"
)

// TaskRepository persists Task rows.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) executor(exec Executor) Executor {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert creates a new task row.
func (r *TaskRepository) Insert(ctx context.Context, exec Executor, t models.Task) error {
	const query = `
		INSERT INTO tasks (id, area_id, title, notes, is_completed, completed_at, version, created_at, updated_at)
		VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.executor(exec).ExecContext(ctx, query,
		t.ID, t.AreaID, t.Title, t.Notes, boolToInt(t.IsCompleted), nullableTime(t.CompletedAt),
		t.Version, t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

// Get retrieves a task by id, returning a NotFoundError if absent.
func (r *TaskRepository) Get(ctx context.Context, exec Executor, id string) (models.Task, error) {
	const query = `
		SELECT id, COALESCE(area_id, ''), title, notes, is_completed, completed_at, version, created_at, updated_at
		FROM tasks WHERE id = ?`
	row := r.executor(exec).QueryRowContext(ctx, query, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return models.Task{}, cutierr.NewNotFoundError("task", id)
	}
	return t, err
}

// GetForUpdate is Get inside a transaction that has already acquired the
// write lease (BEGIN IMMEDIATE) — SQLite's single writer makes an explicit
// row lock unnecessary; the transaction itself is the lock.
func (r *TaskRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (models.Task, error) {
	return r.Get(ctx, tx, id)
}

// Update persists t's mutable fields and bumps version, failing with a
// ConflictError if expectedVersion doesn't match the stored row (optimistic
// concurrency at the storage layer, independent of the client's own
// resource-key serialization in the CPU's SCH stage).
func (r *TaskRepository) Update(ctx context.Context, exec Executor, t models.Task, expectedVersion int64) error {
	const query = `
		UPDATE tasks
		SET area_id = NULLIF(?, ''), title = ?, notes = ?, is_completed = ?, completed_at = ?,
		    version = ?, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.executor(exec).ExecContext(ctx, query,
		t.AreaID, t.Title, t.Notes, boolToInt(t.IsCompleted), nullableTime(t.CompletedAt),
		t.Version, t.UpdatedAt.Format(time.RFC3339Nano), t.ID, expectedVersion)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return cutierr.NewConflictError("task", fmt.Sprintf("expected version %d", expectedVersion))
	}
	return nil
}

// Delete removes a task row.
func (r *TaskRepository) Delete(ctx context.Context, exec Executor, id string) error {
	_, err := r.executor(exec).ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// List returns all tasks, newest first — backs the bulk-fetch resync
// endpoint (spec.md §4.4).
func (r *TaskRepository) List(ctx context.Context) ([]models.Task, error) {
	const query = `
		SELECT id, COALESCE(area_id, ''), title, notes, is_completed, completed_at, version, created_at, updated_at
		FROM tasks ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var t models.Task
	var completedAt, createdAt, updatedAt sql.NullString
	var isCompleted int
	if err := row.Scan(&t.ID, &t.AreaID, &t.Title, &t.Notes, &isCompleted, &completedAt, &t.Version, &createdAt, &updatedAt); err != nil {
		return models.Task{}, err
	}
	t.IsCompleted = isCompleted != 0
	if completedAt.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
			t.CompletedAt = &ts
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt.String); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt.String); err == nil {
		t.UpdatedAt = ts
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
