package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/events"
	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/ports"
	"github.com/Liyue-Cheng/cutie-sub002/internal/infrastructure/persistence"
)

// OutboxRelay is spec.md §4.4's Event Relay: a single background task that
// repeatedly claims the oldest pending outbox row, hands it to the
// subscriber (the SSE hub), and marks it shipped — retrying transient
// failures with backoff rather than ever surfacing them to a caller, per
// the §7 taxonomy's OutboxShipmentFailure class.
//
// Grounded on the teacher's relay/worker loop style in
// internal/application/services/outbox_service.go (poll-claim-mark loop)
// generalized from the teacher's fixed poll ticker to the spec's required
// adaptive idle backoff plus an external wakeup channel.
type OutboxRelay struct {
	repo         *persistence.OutboxRepository
	sub          ports.Subscriber
	wake         chan struct{}
	pollInterval time.Duration
	idleBackoff  time.Duration
	retention    time.Duration
	maxAttempts  int
	batchSize    int
	log          *zap.SugaredLogger
}

// NewOutboxRelay creates a relay. wake is the channel the CommandHarness
// signals on after every commit; the relay also owns the returned channel's
// other end conceptually, but in practice both the harness and the relay
// share one instance wired up by the service manager.
func NewOutboxRelay(
	repo *persistence.OutboxRepository,
	sub ports.Subscriber,
	wake chan struct{},
	pollInterval, idleBackoff, retention time.Duration,
	maxAttempts int,
	log *zap.SugaredLogger,
) *OutboxRelay {
	return &OutboxRelay{
		repo:         repo,
		sub:          sub,
		wake:         wake,
		pollInterval: pollInterval,
		idleBackoff:  idleBackoff,
		retention:    retention,
		maxAttempts:  maxAttempts,
		batchSize:    100,
		log:          log,
	}
}

// Run blocks until ctx is cancelled, ferrying outbox rows to the
// subscriber. Call it from its own goroutine; it returns once ctx is done,
// letting the sidecar's graceful shutdown await a bounded drain (spec.md
// §4.3).
func (r *OutboxRelay) Run(ctx context.Context) {
	pruneTicker := time.NewTicker(1 * time.Hour)
	defer pruneTicker.Stop()

	wait := r.pollInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-pruneTicker.C:
			r.prune(ctx)
		case <-time.After(wait):
		case <-r.wake:
		}

		shipped, err := r.drainOnce(ctx)
		if err != nil {
			r.log.Warnw("outbox drain failed", "error", err)
			wait = r.idleBackoff
			continue
		}
		if shipped == 0 {
			wait = r.idleBackoff
		} else {
			wait = r.pollInterval
		}
	}
}

// drainOnce ships up to batchSize currently-pending rows once, in insertion
// order, and returns how many were shipped. A per-row failure increments that row's
// attempt counter and, past maxAttempts, marks it permanently failed
// (dropped silently from the client's perspective — spec.md §7's
// OutboxShipmentFailure is never surfaced to any caller) while the relay
// moves on to the next row so one poisoned event can't stall the spine.
func (r *OutboxRelay) drainOnce(ctx context.Context) (int, error) {
	pending, err := r.repo.GetPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	shipped := 0
	for _, env := range pending {
		if err := r.ship(ctx, env); err != nil {
			r.log.Warnw("event shipment failed", "event_id", env.EventID, "error", err)
			continue
		}
		shipped++
	}
	return shipped, nil
}

func (r *OutboxRelay) ship(ctx context.Context, env events.Envelope) error {
	if err := r.sub.Broadcast(ctx, env); err != nil {
		attempts, markErr := r.repo.IncrementAttempt(ctx, nil, env.EventID, err.Error())
		if markErr != nil {
			return markErr
		}
		if attempts >= r.maxAttempts {
			return r.repo.MarkFailed(ctx, nil, env.EventID, err.Error())
		}
		return err
	}
	return r.repo.MarkShipped(ctx, nil, env.EventID)
}

func (r *OutboxRelay) prune(ctx context.Context) {
	cutoff := time.Now().Add(-r.retention)
	n, err := r.repo.CleanupShipped(ctx, cutoff)
	if err != nil {
		r.log.Warnw("outbox retention prune failed", "error", err)
		return
	}
	if n > 0 {
		r.log.Infow("pruned shipped outbox rows", "count", n, "cutoff", cutoff)
	}
}
