// Package persistence holds the SQLite-backed repositories and the
// transaction manager, adapted from the teacher's
// internal/infrastructure/persistence package (transaction_manager.go,
// outbox_repository.go).
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Liyue-Cheng/cutie-sub002/internal/infrastructure/database"
	cutierr "github.com/Liyue-Cheng/cutie-sub002/pkg/errors"
)

// Executor is satisfied by both *sql.DB and *sql.Tx, letting repositories
// accept either a live transaction or fall back to the pool — same pattern
// as the teacher's OutboxRepository.getExecutor.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TransactionManager runs business closures inside a single
// BEGIN-IMMEDIATE/COMMIT-or-ROLLBACK transaction and retries on the one
// error class SQLite's single-writer model makes transient: "database is
// locked" (spec.md §4.1, §7 DatabaseTransient).
type TransactionManager struct {
	db *database.Connection
}

// NewTransactionManager creates a new TransactionManager.
func NewTransactionManager(db *database.Connection) *TransactionManager {
	return &TransactionManager{db: db}
}

// WithTransaction runs fn inside a transaction, committing on nil error and
// rolling back (even on panic) otherwise. This is the harness's mechanism
// for atomically committing business rows and their outbox envelope
// together (spec.md §4.1 invariant).
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := tm.db.BeginTx(ctx)
	if err != nil {
		return cutierr.NewDatabaseTransientError("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w (rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return cutierr.NewDatabaseTransientError("commit", err)
	}

	return nil
}

// WithRetry runs WithTransaction at most maxRetries times in total (so
// maxRetries-1 retries), with exponential backoff between attempts, when the
// failure is a lock-busy condition — the
// DatabaseTransient retry spec.md §7 calls for ("retried internally once or
// twice, then surfaced").
func (tm *TransactionManager) WithRetry(ctx context.Context, fn func(tx *sql.Tx) error, maxRetries int) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := tm.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}

		lastErr = err
		if !isLockBusy(err) {
			return err
		}

		if attempt < maxRetries-1 {
			backoff := time.Millisecond * time.Duration(50*(1<<uint(attempt)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return cutierr.NewDatabaseTransientError(fmt.Sprintf("after %d attempts", maxRetries), lastErr)
}

func isLockBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "sqlite_busy")
}
