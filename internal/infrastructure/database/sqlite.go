// Package database wraps the embedded SQLite connection used by the
// sidecar. It mirrors the teacher's TiDBConnection
// (internal/infrastructure/database/tidb.go) — same method set, same
// "sql.DB already pools and is thread-safe, don't wrap it in a mutex"
// discipline — swapped to modernc.org/sqlite because the spec calls for
// SQLite-style single-writer semantics (spec.md §4.1, §5).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Connection is the process-wide database handle. It is one of the two
// global structures spec.md §9 names (the other being the sidecar's
// discovered-port/child-pid registry on the host side).
type Connection struct {
	db *sql.DB
}

// Open creates the SQLite connection for path, applying the pragmas that
// give it single-writer/many-reader semantics: WAL journal mode so readers
// never block on a writer, and a busy_timeout so a writer queued behind
// another write blocks briefly instead of failing immediately.
func Open(path string) (*Connection, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode lets reads proceed concurrently with a single in-flight
	// writer; the pool can stay wide open. Write/write contention is
	// serialized by SQLite's single write lease itself (BEGIN IMMEDIATE
	// below) with busy_timeout absorbing brief queuing, not by the
	// connection pool.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{db: db}, nil
}

// Query executes a SELECT query and returns rows.
func (c *Connection) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.Query(query, args...)
}

// QueryContext executes a SELECT query with context.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRow executes a SELECT query that returns at most one row.
func (c *Connection) QueryRow(query string, args ...interface{}) *sql.Row {
	return c.db.QueryRow(query, args...)
}

// QueryRowContext executes a SELECT query with context returning at most one row.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Exec executes an INSERT, UPDATE, or DELETE query.
func (c *Connection) Exec(query string, args ...interface{}) (sql.Result, error) {
	return c.db.Exec(query, args...)
}

// ExecContext executes an INSERT, UPDATE, or DELETE query with context.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// Begin starts a transaction with IMMEDIATE semantics (via the connection's
// _txlock=immediate DSN option): it acquires the single write lease up
// front rather than on first write, so a mutation never begins
// optimistically and then aborts for lack of the lease mid-way (spec.md
// §4.1 step 2).
func (c *Connection) Begin() (*sql.Tx, error) {
	return c.BeginTx(context.Background())
}

// BeginTx is Begin with an explicit context for cancellation.
func (c *Connection) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, nil)
}

// DB returns the underlying *sql.DB for call sites that need it directly
// (migrations, the outbox repository's non-transactional polling reads).
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Close closes the database connection.
func (c *Connection) Close() error {
	return c.db.Close()
}

// PingTimeout verifies connectivity with a bounded deadline.
func (c *Connection) PingTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.db.PingContext(ctx)
}
