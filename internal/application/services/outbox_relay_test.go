package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/events"
	"github.com/Liyue-Cheng/cutie-sub002/internal/infrastructure/persistence"
)

// fakeSubscriber lets tests control whether Broadcast succeeds, without
// standing up a real SSE hub.
type fakeSubscriber struct {
	mu        sync.Mutex
	delivered []events.Envelope
	failNext  int
}

func (f *fakeSubscriber) Broadcast(ctx context.Context, env events.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("subscriber unavailable")
	}
	f.delivered = append(f.delivered, env)
	return nil
}

func newTestRelay(t *testing.T, sub *fakeSubscriber, maxAttempts int) (*OutboxRelay, *persistence.OutboxRepository) {
	t.Helper()
	db := newServiceTestDB(t)
	repo := persistence.NewOutboxRepository(db)
	relay := NewOutboxRelay(repo, sub, make(chan struct{}, 1), time.Second, time.Second, 24*time.Hour, maxAttempts, zap.NewNop().Sugar())
	return relay, repo
}

func TestOutboxRelay_DrainOnce_ShipsPendingRowsInOrder(t *testing.T) {
	sub := &fakeSubscriber{}
	relay, repo := newTestRelay(t, sub, 3)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, nil, events.Envelope{EventType: events.TaskCreated, AggregateType: "task", AggregateID: "t1", Payload: events.Payload{Data: map[string]interface{}{}}}))
	require.NoError(t, repo.Append(ctx, nil, events.Envelope{EventType: events.TaskUpdated, AggregateType: "task", AggregateID: "t1", Payload: events.Payload{Data: map[string]interface{}{}}}))

	shipped, err := relay.drainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, shipped)
	require.Len(t, sub.delivered, 2)
	assert.Equal(t, events.TaskCreated, sub.delivered[0].EventType)
	assert.Equal(t, events.TaskUpdated, sub.delivered[1].EventType)

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 0)
}

func TestOutboxRelay_Ship_IncrementsAttemptOnFailureAndRetains(t *testing.T) {
	sub := &fakeSubscriber{failNext: 1}
	relay, repo := newTestRelay(t, sub, 3)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, nil, events.Envelope{EventType: events.TaskCreated, AggregateType: "task", AggregateID: "t1", Payload: events.Payload{Data: map[string]interface{}{}}}))
	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	env := pending[0]

	err = relay.ship(ctx, env)
	require.Error(t, err)

	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
}

func TestOutboxRelay_Ship_MarksFailedPastMaxAttempts(t *testing.T) {
	sub := &fakeSubscriber{failNext: 1}
	relay, repo := newTestRelay(t, sub, 1)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, nil, events.Envelope{EventType: events.TaskCreated, AggregateType: "task", AggregateID: "t1", Payload: events.Payload{Data: map[string]interface{}{}}}))
	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	env := pending[0]

	err = relay.ship(ctx, env)
	require.NoError(t, err) // MarkFailed succeeded; the shipment error itself is absorbed

	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 0)
}

func TestOutboxRelay_Prune_RemovesOnlyOlderThanCutoff(t *testing.T) {
	sub := &fakeSubscriber{}
	relay, repo := newTestRelay(t, sub, 3)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, nil, events.Envelope{EventType: events.TaskCreated, AggregateType: "task", AggregateID: "t1", Payload: events.Payload{Data: map[string]interface{}{}}}))
	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, repo.MarkShipped(ctx, nil, pending[0].EventID))

	relay.prune(ctx) // retention is 24h; the just-shipped row must survive
	n, err := repo.CleanupShipped(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
