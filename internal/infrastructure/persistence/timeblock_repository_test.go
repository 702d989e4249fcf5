package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/models"
	cutierr "github.com/Liyue-Cheng/cutie-sub002/pkg/errors"
)

func TestTimeBlockRepository_InsertGetUpdateDelete(t *testing.T) {
	db := newTestDB(t)
	taskRepo := NewTaskRepository(db)
	repo := NewTimeBlockRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, taskRepo.Insert(ctx, nil, models.Task{ID: "task-1", Title: "Write report", Version: 1, CreatedAt: now, UpdatedAt: now}))

	block := models.TimeBlock{
		ID:        "block-1",
		TaskID:    "task-1",
		Title:     "Focus block",
		StartAt:   now,
		EndAt:     now.Add(time.Hour),
		Status:    models.TimeBlockScheduled,
		Shared:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Insert(ctx, nil, block))

	got, err := repo.Get(ctx, nil, "block-1")
	require.NoError(t, err)
	assert.Equal(t, "Focus block", got.Title)
	assert.Equal(t, "task-1", got.TaskID)
	assert.Equal(t, models.TimeBlockScheduled, got.Status)
	assert.True(t, got.Shared, "shared flag must round-trip through Insert/Get")

	got.Title = "Deep focus block"
	got.Version = 2
	require.NoError(t, repo.Update(ctx, nil, got, 1))

	updated, err := repo.Get(ctx, nil, "block-1")
	require.NoError(t, err)
	assert.Equal(t, "Deep focus block", updated.Title)

	require.NoError(t, repo.Delete(ctx, nil, "block-1"))
	_, err = repo.Get(ctx, nil, "block-1")
	require.Error(t, err)
	assert.True(t, cutierr.IsNotFound(err))
}

func TestTimeBlockRepository_UpdateConflict(t *testing.T) {
	db := newTestDB(t)
	repo := NewTimeBlockRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	block := models.TimeBlock{ID: "block-1", Title: "Focus", StartAt: now, EndAt: now.Add(time.Hour), Status: models.TimeBlockScheduled, Version: 1, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Insert(ctx, nil, block))

	block.Title = "Changed"
	err := repo.Update(ctx, nil, block, 42)
	require.Error(t, err)
	assert.True(t, cutierr.IsConflict(err))
}

func TestTimeBlockRepository_ListByTask(t *testing.T) {
	db := newTestDB(t)
	taskRepo := NewTaskRepository(db)
	repo := NewTimeBlockRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, taskRepo.Insert(ctx, nil, models.Task{ID: "task-1", Title: "T", Version: 1, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.Insert(ctx, nil, models.TimeBlock{ID: "b1", TaskID: "task-1", Title: "Block 1", StartAt: now, EndAt: now.Add(time.Hour), Status: models.TimeBlockScheduled, Version: 1, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.Insert(ctx, nil, models.TimeBlock{ID: "b2", Title: "Unlinked block", StartAt: now, EndAt: now.Add(time.Hour), Status: models.TimeBlockScheduled, Version: 1, CreatedAt: now, UpdatedAt: now}))

	blocks, err := repo.ListByTask(ctx, nil, "task-1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "b1", blocks[0].ID)
}
