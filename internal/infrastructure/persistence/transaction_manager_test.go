package persistence

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liyue-Cheng/cutie-sub002/internal/infrastructure/database"
)

func newTestConnection(t *testing.T) *database.Connection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cutie-test.db")
	conn, err := database.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, Migrate(context.Background(), conn.DB()))
	return conn
}

func TestTransactionManager_WithTransaction_CommitsOnSuccess(t *testing.T) {
	conn := newTestConnection(t)
	tm := NewTransactionManager(conn)
	ctx := context.Background()

	err := tm.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO areas (id, name, version, created_at, updated_at) VALUES ('a1', 'Work', 1, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, conn.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM areas`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestTransactionManager_WithTransaction_RollsBackOnError(t *testing.T) {
	conn := newTestConnection(t)
	tm := NewTransactionManager(conn)
	ctx := context.Background()

	boom := errors.New("boom")
	err := tm.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `INSERT INTO areas (id, name, version, created_at, updated_at) VALUES ('a1', 'Work', 1, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
		if execErr != nil {
			return execErr
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, conn.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM areas`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestTransactionManager_WithRetry_StopsOnNonTransientError(t *testing.T) {
	conn := newTestConnection(t)
	tm := NewTransactionManager(conn)
	ctx := context.Background()

	attempts := 0
	fatal := errors.New("not a lock error")
	err := tm.WithRetry(ctx, func(tx *sql.Tx) error {
		attempts++
		return fatal
	}, 3)

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestTransactionManager_WithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	conn := newTestConnection(t)
	tm := NewTransactionManager(conn)
	ctx := context.Background()

	attempts := 0
	err := tm.WithRetry(ctx, func(tx *sql.Tx) error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		_, execErr := tx.ExecContext(ctx, `INSERT INTO areas (id, name, version, created_at, updated_at) VALUES ('a1', 'Work', 1, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
		return execErr
	}, 3)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	var count int
	require.NoError(t, conn.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM areas`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIsLockBusy(t *testing.T) {
	assert.True(t, isLockBusy(errors.New("database is locked")))
	assert.True(t, isLockBusy(errors.New("SQLITE_BUSY: database busy")))
	assert.False(t, isLockBusy(errors.New("no such table: areas")))
	assert.False(t, isLockBusy(nil))
}
