package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/events"
)

// OutboxRepository handles all outbox table access: appending inside the
// caller's transaction (spec.md §4.1), and the relay's polling/claiming/
// shipment bookkeeping (spec.md §4.2).
//
// Adapted from the teacher's internal/infrastructure/persistence/outbox_repository.go:
// same Executor-accepting shape, same claim-then-update flow, generalized
// from the teacher's MySQL/TiDB-flavored SQL to SQLite.
type OutboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) executor(exec Executor) Executor {
	if exec != nil {
		return exec
	}
	return r.db
}

// Append inserts an envelope into the outbox using the given executor
// (normally the caller's in-flight *sql.Tx, so the envelope commits
// atomically with the business rows that produced it — spec.md §4.1's
// "one transaction = one event" rule). insertion_seq is assigned by SQLite's
// AUTOINCREMENT-free monotonic rowid equivalent: a max+1 computed in the
// same transaction under the write lease, which is race-free because only
// one writer holds the lease at a time.
func (r *OutboxRepository) Append(ctx context.Context, exec Executor, env events.Envelope) error {
	executor := r.executor(exec)

	payloadJSON, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	id := env.EventID
	if id == "" {
		id = uuid.NewString()
	}

	const query = `
		INSERT INTO outbox_events (
			event_id, insertion_seq, event_type, schema_version, aggregate_type,
			aggregate_id, aggregate_version, correlation_id, occurred_at, payload,
			shipment_state, attempts
		) VALUES (
			?, (SELECT COALESCE(MAX(insertion_seq), 0) + 1 FROM outbox_events),
			?, ?, ?, ?, ?, ?, ?, ?, 'pending', 0
		)`

	var corrID sql.NullString
	if env.CorrelationID != "" {
		corrID = sql.NullString{String: env.CorrelationID, Valid: true}
	}
	var aggVersion sql.NullInt64
	if env.AggregateVersion != nil {
		aggVersion = sql.NullInt64{Int64: *env.AggregateVersion, Valid: true}
	}

	occurredAt := env.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	_, err = executor.ExecContext(ctx, query,
		id, string(env.EventType), env.SchemaVersion, env.AggregateType,
		env.AggregateID, aggVersion, corrID, occurredAt.Format(time.RFC3339Nano), string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}
	return nil
}

// GetPending returns up to limit pending envelopes ordered by insertion_seq,
// the relay's FIFO scan (spec.md §4.2).
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]events.Envelope, error) {
	const query = `
		SELECT event_id, insertion_seq, event_type, schema_version, aggregate_type,
		       aggregate_id, aggregate_version, correlation_id, occurred_at, payload, attempts
		FROM outbox_events
		WHERE shipment_state = 'pending'
		ORDER BY insertion_seq ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var out []events.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		env.ShipmentState = events.ShipmentPending
		out = append(out, env)
	}
	return out, rows.Err()
}

// GetSince returns envelopes with insertion_seq strictly greater than
// afterSeq, used to replay from a reconnecting subscriber's Last-Event-ID
// (spec.md §4.4).
func (r *OutboxRepository) GetSince(ctx context.Context, afterSeq int64, limit int) ([]events.Envelope, error) {
	const query = `
		SELECT event_id, insertion_seq, event_type, schema_version, aggregate_type,
		       aggregate_id, aggregate_version, correlation_id, occurred_at, payload, attempts
		FROM outbox_events
		WHERE insertion_seq > ?
		ORDER BY insertion_seq ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events since seq %d: %w", afterSeq, err)
	}
	defer rows.Close()

	var out []events.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

// OldestRetainedSeq returns the smallest insertion_seq still present, used
// to decide whether a replay request can be served from the retention
// window or must force a resync (spec.md §4.4).
func (r *OutboxRepository) OldestRetainedSeq(ctx context.Context) (int64, bool, error) {
	var seq sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MIN(insertion_seq) FROM outbox_events`).Scan(&seq)
	if err != nil {
		return 0, false, err
	}
	if !seq.Valid {
		return 0, false, nil
	}
	return seq.Int64, true, nil
}

// Claim attempts to lock a specific pending event for processing,
// returning its id if claimed, "" if another worker already claimed it.
func (r *OutboxRepository) Claim(ctx context.Context, exec Executor, eventID string) (string, error) {
	const query = `
		SELECT event_id FROM outbox_events
		WHERE event_id = ? AND shipment_state = 'pending'`

	var claimed string
	err := r.executor(exec).QueryRowContext(ctx, query, eventID).Scan(&claimed)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return claimed, nil
}

// MarkShipped marks an envelope shipped (spec.md §4.2).
func (r *OutboxRepository) MarkShipped(ctx context.Context, exec Executor, eventID string) error {
	const query = `
		UPDATE outbox_events
		SET shipment_state = 'shipped', shipped_at = ?
		WHERE event_id = ?`
	_, err := r.executor(exec).ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339Nano), eventID)
	return err
}

// MarkFailed moves an envelope to the failed state after exhausting
// retries; it is never retried automatically from there (spec.md §4.2).
func (r *OutboxRepository) MarkFailed(ctx context.Context, exec Executor, eventID, errMessage string) error {
	const query = `
		UPDATE outbox_events
		SET shipment_state = 'failed', last_error = ?
		WHERE event_id = ?`
	_, err := r.executor(exec).ExecContext(ctx, query, errMessage, eventID)
	return err
}

// IncrementAttempt bumps the attempts counter and records the error,
// leaving shipment_state as pending so the relay retries it on its next
// poll. No per-row backoff is applied: the row is picked up again after the
// relay's ordinary poll or idle wait.
func (r *OutboxRepository) IncrementAttempt(ctx context.Context, exec Executor, eventID string, errMessage string) (int, error) {
	const update = `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = ?
		WHERE event_id = ?`
	if _, err := r.executor(exec).ExecContext(ctx, update, errMessage, eventID); err != nil {
		return 0, err
	}

	var attempts int
	err := r.executor(exec).QueryRowContext(ctx, `SELECT attempts FROM outbox_events WHERE event_id = ?`, eventID).Scan(&attempts)
	return attempts, err
}

// CleanupShipped deletes shipped envelopes older than cutoff (spec.md §4.2
// retention window, default 24h per spec.md §9's open question).
func (r *OutboxRepository) CleanupShipped(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM outbox_events
		WHERE shipment_state = 'shipped' AND shipped_at < ?`
	result, err := r.db.ExecContext(ctx, query, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEnvelope(rows *sql.Rows) (events.Envelope, error) {
	var env events.Envelope
	var aggVersion sql.NullInt64
	var corrID sql.NullString
	var occurredAt string
	var payloadJSON string

	if err := rows.Scan(
		&env.EventID, &env.InsertionSeq, &env.EventType, &env.SchemaVersion, &env.AggregateType,
		&env.AggregateID, &aggVersion, &corrID, &occurredAt, &payloadJSON, &env.Attempts,
	); err != nil {
		return events.Envelope{}, fmt.Errorf("failed to scan outbox event: %w", err)
	}

	if aggVersion.Valid {
		v := aggVersion.Int64
		env.AggregateVersion = &v
	}
	if corrID.Valid {
		env.CorrelationID = corrID.String
	}
	if t, err := time.Parse(time.RFC3339Nano, occurredAt); err == nil {
		env.OccurredAt = t
	}
	if err := json.Unmarshal([]byte(payloadJSON), &env.Payload); err != nil {
		return events.Envelope{}, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return env, nil
}
