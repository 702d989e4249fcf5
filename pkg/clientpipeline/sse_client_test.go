package clientpipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEClient_Consume_DispatchesNonEchoedEnvelope(t *testing.T) {
	var applied []RemoteEnvelope
	client := NewSSEClient("http://127.0.0.1:0", NewInterruptTable(time.Second), func(ctx context.Context, env RemoteEnvelope) error {
		applied = append(applied, env)
		return nil
	}, nil)

	body := strings.NewReader("event: task.updated\n" +
		"id: 7\n" +
		`data: {"event_id":"e1","aggregate_id":"t1","aggregate_type":"task","correlation_id":"corr-x","payload":{"task":{"id":"t1"}}}` + "\n\n")

	require.NoError(t, client.consume(context.Background(), body))
	require.Len(t, applied, 1)
	assert.Equal(t, "t1", applied[0].AggregateID)
	assert.Equal(t, int64(7), applied[0].InsertionSeq)
	assert.Equal(t, "corr-x", applied[0].CorrelationID)
	assert.Equal(t, "7", client.lastEventID)
}

func TestSSEClient_Consume_DropsEchoedCorrelationID(t *testing.T) {
	applyCalled := false
	interrupt := NewInterruptTable(time.Second)
	interrupt.Register("corr-x", "task.update")

	client := NewSSEClient("http://127.0.0.1:0", interrupt, func(ctx context.Context, env RemoteEnvelope) error {
		applyCalled = true
		return nil
	}, nil)

	body := strings.NewReader("event: task.updated\n" +
		"id: 7\n" +
		`data: {"event_id":"e1","aggregate_id":"t1","correlation_id":"corr-x","payload":{"task":{"id":"t1"}}}` + "\n\n")

	require.NoError(t, client.consume(context.Background(), body))
	assert.False(t, applyCalled, "an echoed correlation id must be dropped, not reapplied")
}

func TestSSEClient_Consume_ResyncRequiredInvokesHandler(t *testing.T) {
	var reason string
	client := NewSSEClient("http://127.0.0.1:0", NewInterruptTable(time.Second), nil, func(r string) {
		reason = r
	})

	body := strings.NewReader("event: resync-required\n" +
		`data: {"reason":"outside_retention_window"}` + "\n\n")

	require.NoError(t, client.consume(context.Background(), body))
	assert.Equal(t, "outside_retention_window", reason)
}

func TestSSEClient_Consume_IgnoresKeepAliveComments(t *testing.T) {
	applied := 0
	client := NewSSEClient("http://127.0.0.1:0", NewInterruptTable(time.Second), func(ctx context.Context, env RemoteEnvelope) error {
		applied++
		return nil
	}, nil)

	body := strings.NewReader(": keepalive\n\n" +
		"event: task.updated\n" +
		"id: 1\n" +
		`data: {"event_id":"e1","aggregate_id":"t1","payload":{"task":{"id":"t1"}}}` + "\n\n")

	require.NoError(t, client.consume(context.Background(), body))
	assert.Equal(t, 1, applied)
}

func TestSSEClient_Consume_MultilineDataIsJoined(t *testing.T) {
	var captured map[string]interface{}
	client := NewSSEClient("http://127.0.0.1:0", NewInterruptTable(time.Second), func(ctx context.Context, env RemoteEnvelope) error {
		captured = env.Payload
		return nil
	}, nil)

	body := strings.NewReader("event: task.updated\n" +
		"id: 1\n" +
		`data: {"event_id":"e1","aggregate_id":"t1",` + "\n" +
		`data: "payload":{"task":{"id":"t1"}}}` + "\n\n")

	require.NoError(t, client.consume(context.Background(), body))
	require.NotNil(t, captured)
	task, ok := captured["task"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "t1", task["id"])
}

// TestSSEClient_Consume_PayloadMatchesEnvelopeNotWholeFlattenedBody is a
// direct regression test for the wire shape internal/infrastructure/sse's
// Hub actually emits: the top-level envelope carries aggregate_id/type/
// correlation_id, while the aggregate data and side_effects live nested
// one level down under "payload" (events.Envelope/events.Payload's JSON
// shape). RemoteEnvelope.Payload must be that nested document, not the
// whole flattened envelope, so a caller wiring ApplyRemote through the
// same reconciliation hooks WB uses sees the same shape WB does.
func TestSSEClient_Consume_PayloadMatchesEnvelopeNotWholeFlattenedBody(t *testing.T) {
	var captured RemoteEnvelope
	client := NewSSEClient("http://127.0.0.1:0", NewInterruptTable(time.Second), func(ctx context.Context, env RemoteEnvelope) error {
		captured = env
		return nil
	}, nil)

	body := strings.NewReader("event: task.completed\n" +
		"id: 42\n" +
		`data: {"event_id":"e1","insertion_seq":42,"event_type":"task.completed","aggregate_type":"task","aggregate_id":"t1","occurred_at":"2026-01-01T00:00:00Z","payload":{"task":{"id":"t1","is_completed":true},"side_effects":{"time_blocks_deleted":["b1"]}}}` + "\n\n")

	require.NoError(t, client.consume(context.Background(), body))

	require.NotNil(t, captured.Payload)
	assert.NotContains(t, captured.Payload, "event_id", "Payload must not be the whole flattened envelope")
	assert.NotContains(t, captured.Payload, "aggregate_id", "Payload must not be the whole flattened envelope")

	task, ok := captured.Payload["task"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "t1", task["id"])

	sideEffects, ok := captured.Payload["side_effects"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, sideEffects, "time_blocks_deleted")
}
