package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/models"
	cutierr "github.com/Liyue-Cheng/cutie-sub002/pkg/errors"
)

// AreaRepository persists Area rows.
type AreaRepository struct {
	db *sql.DB
}

// NewAreaRepository creates a new AreaRepository.
func NewAreaRepository(db *sql.DB) *AreaRepository {
	return &AreaRepository{db: db}
}

func (r *AreaRepository) executor(exec Executor) Executor {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert creates a new area row.
func (r *AreaRepository) Insert(ctx context.Context, exec Executor, a models.Area) error {
	const query = `
		INSERT INTO areas (id, name, color, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.executor(exec).ExecContext(ctx, query,
		a.ID, a.Name, a.Color, a.Version, a.CreatedAt.Format(time.RFC3339Nano), a.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

// Get retrieves an area by id.
func (r *AreaRepository) Get(ctx context.Context, exec Executor, id string) (models.Area, error) {
	const query = `SELECT id, name, COALESCE(color, ''), version, created_at, updated_at FROM areas WHERE id = ?`
	row := r.executor(exec).QueryRowContext(ctx, query, id)
	a, err := scanArea(row)
	if err == sql.ErrNoRows {
		return models.Area{}, cutierr.NewNotFoundError("area", id)
	}
	return a, err
}

// Update persists an area's mutable fields with optimistic concurrency.
func (r *AreaRepository) Update(ctx context.Context, exec Executor, a models.Area, expectedVersion int64) error {
	const query = `
		UPDATE areas SET name = ?, color = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.executor(exec).ExecContext(ctx, query,
		a.Name, a.Color, a.Version, a.UpdatedAt.Format(time.RFC3339Nano), a.ID, expectedVersion)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return cutierr.NewConflictError("area", fmt.Sprintf("expected version %d", expectedVersion))
	}
	return nil
}

// Delete removes an area row.
func (r *AreaRepository) Delete(ctx context.Context, exec Executor, id string) error {
	_, err := r.executor(exec).ExecContext(ctx, `DELETE FROM areas WHERE id = ?`, id)
	return err
}

// List returns every area — backs the bulk-fetch resync endpoint.
func (r *AreaRepository) List(ctx context.Context) ([]models.Area, error) {
	const query = `SELECT id, name, COALESCE(color, ''), version, created_at, updated_at FROM areas ORDER BY name ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Area
	for rows.Next() {
		a, err := scanArea(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArea(row rowScanner) (models.Area, error) {
	var a models.Area
	var createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.Name, &a.Color, &a.Version, &createdAt, &updatedAt); err != nil {
		return models.Area{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		a.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		a.UpdatedAt = ts
	}
	return a, nil
}
