package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements are the fixed DDL for Cutie's four tables: the three
// domain aggregates and the outbox. Unlike the teacher's generic
// metadata-driven schema builder (schema_ddl_ops.go), Cutie's domain is
// fixed and small, so the DDL is inlined rather than generated — the
// generic table builder belongs to the CRUD/metadata layer the spec puts
// out of scope.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS areas (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		area_id TEXT REFERENCES areas(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		notes TEXT,
		is_completed INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_area_id ON tasks(area_id)`,
	`CREATE TABLE IF NOT EXISTS time_blocks (
		id TEXT PRIMARY KEY,
		task_id TEXT REFERENCES tasks(id) ON DELETE SET NULL,
		area_id TEXT REFERENCES areas(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		status TEXT NOT NULL,
		shared INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_time_blocks_task_id ON time_blocks(task_id)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		event_id TEXT PRIMARY KEY,
		insertion_seq INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		aggregate_version INTEGER,
		correlation_id TEXT,
		occurred_at TEXT NOT NULL,
		payload TEXT NOT NULL,
		shipment_state TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		shipped_at TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_outbox_insertion_seq ON outbox_events(insertion_seq)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_shipment_state ON outbox_events(shipment_state, insertion_seq)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_outbox_aggregate_version ON outbox_events(aggregate_id, aggregate_version) WHERE aggregate_version IS NOT NULL`,
}

// Migrate applies Cutie's schema, idempotently. Called once at sidecar
// startup before any HTTP traffic is accepted, the way the teacher's
// cmd/server/main.go calls bootstrap.InitializeSchema before serving.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	return nil
}
