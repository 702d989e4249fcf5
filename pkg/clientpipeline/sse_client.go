package clientpipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RemoteEnvelope is the client-side decoding of the wire envelope the SSE
// Hub emits (internal/infrastructure/sse.writeEnvelope / events.Envelope's
// flattened JSON shape). clientpipeline only needs enough of the envelope
// to dedup and dispatch; it never needs the outbox-only fields
// (shipment_state, attempts).
type RemoteEnvelope struct {
	EventID          string                 `json:"event_id"`
	InsertionSeq     int64                  `json:"insertion_seq"`
	EventType        string                 `json:"event_type"`
	SchemaVersion    int                    `json:"schema_version"`
	AggregateType    string                 `json:"aggregate_type"`
	AggregateID      string                 `json:"aggregate_id"`
	AggregateVersion *int64                 `json:"aggregate_version,omitempty"`
	CorrelationID    string                 `json:"correlation_id,omitempty"`
	OccurredAt       time.Time              `json:"occurred_at"`
	Payload          map[string]interface{} `json:"-"`
}

// ApplyRemote dispatches a non-echoed envelope (no interrupt-table match)
// through the same reconciliation path WB's commit hooks use, per spec.md
// §4.5: "a miss ... must be applied by dispatching through the same
// reconciliation hooks the WB stage uses."
type ApplyRemote func(ctx context.Context, env RemoteEnvelope) error

// ResyncHandler is invoked when the hub sends a forced-resync close
// (internal/infrastructure/sse.ResyncReason); the caller is expected to
// issue the bulk-fetch endpoints (GET /api/resync) and rebuild local state.
type ResyncHandler func(reason string)

// SSEClient is the single SSE ingress point spec.md §4.5 requires: it owns
// the connection, the Last-Event-ID bookkeeping for reconnects, and the
// interrupt-table lookup that decides drop vs. apply for every arriving
// envelope. There is no third-party SSE client library in the example pack
// to ground this on — reading a line-oriented text/event-stream is a
// handful of bufio.Scanner lines, so it stays on the standard library
// rather than reaching for a dependency with no grounding.
type SSEClient struct {
	baseURL    string
	httpClient *http.Client
	interrupt  *InterruptTable
	apply      ApplyRemote
	onResync   ResyncHandler

	lastEventID string
}

// NewSSEClient builds a client against baseURL (e.g. "http://127.0.0.1:PORT")
// using the shared InterruptTable a Pipeline also writes to.
func NewSSEClient(baseURL string, interrupt *InterruptTable, apply ApplyRemote, onResync ResyncHandler) *SSEClient {
	return &SSEClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		interrupt:  interrupt,
		apply:      apply,
		onResync:   onResync,
	}
}

// Run connects to /api/events and processes the stream until ctx is
// cancelled or the connection drops, at which point it returns so the
// caller can decide whether to reconnect (presenting the last seen
// Last-Event-ID, honoring the hub's replay-or-resync contract).
func (c *SSEClient) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return fmt.Errorf("clientpipeline: build sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.lastEventID != "" {
		req.Header.Set("Last-Event-ID", c.lastEventID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("clientpipeline: sse connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clientpipeline: sse connect: unexpected status %d", resp.StatusCode)
	}

	return c.consume(ctx, resp.Body)
}

// frame accumulates one SSE message's fields across the blank-line-
// terminated block the wire format uses.
type frame struct {
	event string
	id    string
	data  strings.Builder
}

func (c *SSEClient) consume(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var f frame
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()

		switch {
		case line == "":
			if err := c.dispatch(ctx, f); err != nil {
				return err
			}
			f = frame{}
		case strings.HasPrefix(line, ":"):
			// Keep-alive comment; nothing to do.
		case strings.HasPrefix(line, "event:"):
			f.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "id:"):
			f.id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "data:"):
			if f.data.Len() > 0 {
				f.data.WriteByte('\n')
			}
			f.data.WriteString(strings.TrimPrefix(line, "data:"))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("clientpipeline: sse stream read: %w", err)
	}
	return nil
}

func (c *SSEClient) dispatch(ctx context.Context, f frame) error {
	if f.data.Len() == 0 {
		return nil
	}
	if f.id != "" {
		c.lastEventID = f.id
	}

	if f.event == "resync-required" {
		var payload map[string]string
		_ = json.Unmarshal([]byte(f.data.String()), &payload)
		if c.onResync != nil {
			c.onResync(payload["reason"])
		}
		return nil
	}

	var flat map[string]interface{}
	if err := json.Unmarshal([]byte(f.data.String()), &flat); err != nil {
		return fmt.Errorf("clientpipeline: decode envelope: %w", err)
	}
	env := decodeEnvelope(f, flat)

	if c.interrupt.Match(env.CorrelationID) {
		// Our own mutation's echo; already reconciled by WB.
		return nil
	}
	if c.apply == nil {
		return nil
	}
	return c.apply(ctx, env)
}

func decodeEnvelope(f frame, flat map[string]interface{}) RemoteEnvelope {
	env := RemoteEnvelope{EventType: f.event}
	// The envelope's aggregate data and side_effects live one level down,
	// under "payload" (events.Envelope's own JSON shape) — flat is the
	// whole envelope, not just its payload.
	if p, ok := flat["payload"].(map[string]interface{}); ok {
		env.Payload = p
	}
	if seq, err := strconv.ParseInt(f.id, 10, 64); err == nil {
		env.InsertionSeq = seq
	}
	if v, ok := flat["event_id"].(string); ok {
		env.EventID = v
	}
	if v, ok := flat["correlation_id"].(string); ok {
		env.CorrelationID = v
	}
	if v, ok := flat["aggregate_id"].(string); ok {
		env.AggregateID = v
	}
	if v, ok := flat["aggregate_type"].(string); ok {
		env.AggregateType = v
	}
	if v, ok := flat["occurred_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			env.OccurredAt = t
		}
	}
	return env
}
