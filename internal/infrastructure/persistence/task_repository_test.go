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

func TestTaskRepository_InsertGetUpdateDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	task := models.Task{ID: "task-1", Title: "Write tests", Version: 1, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Insert(ctx, nil, task))

	got, err := repo.Get(ctx, nil, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "Write tests", got.Title)
	assert.False(t, got.IsCompleted)
	assert.Equal(t, int64(1), got.Version)

	got.Title = "Write more tests"
	got.Version = 2
	got.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.Update(ctx, nil, got, 1))

	updated, err := repo.Get(ctx, nil, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "Write more tests", updated.Title)
	assert.Equal(t, int64(2), updated.Version)

	require.NoError(t, repo.Delete(ctx, nil, "task-1"))
	_, err = repo.Get(ctx, nil, "task-1")
	require.Error(t, err)
	assert.True(t, cutierr.IsNotFound(err))
}

func TestTaskRepository_UpdateConflictOnStaleVersion(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	task := models.Task{ID: "task-1", Title: "Original", Version: 1, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Insert(ctx, nil, task))

	task.Title = "Changed"
	task.Version = 2
	err := repo.Update(ctx, nil, task, 99) // wrong expected version
	require.Error(t, err)
	assert.True(t, cutierr.IsConflict(err))
}

func TestTaskRepository_List(t *testing.T) {
	db := newTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Insert(ctx, nil, models.Task{ID: "t1", Title: "A", Version: 1, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.Insert(ctx, nil, models.Task{ID: "t2", Title: "B", Version: 1, CreatedAt: now.Add(time.Second), UpdatedAt: now}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
