// Package sse implements the Event Relay's fan-out target: a hub of
// per-connection subscribers with bounded queues and a slow-subscriber
// eviction policy (spec.md §4.4). Grounded in the pack's SSE broker
// reference (other_examples' lyallcooper-gosei internal/sse/broker.go):
// a subscriber map guarded by a mutex, a bounded per-client channel, and a
// ServeHTTP loop that multiplexes the channel, a keep-alive ticker, and
// the request context's cancellation.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sse"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/events"
)

// ResyncReason is the well-known SSE event name a forced-eviction close
// uses. The client reacts to it by issuing the bulk-fetch endpoints
// (spec.md §4.4, §6).
const ResyncReason = "resync-required"

// client is one connected subscriber's server-side state.
type client struct {
	id       string
	queue    chan events.Envelope
	evicted  chan struct{}
	evictOne sync.Once
}

func (c *client) evict() {
	c.evictOne.Do(func() { close(c.evicted) })
}

// Hub owns the subscriber set exclusively; the Event Relay (its only
// caller) and each connection's own read/keep-alive loop are the only
// other goroutines that touch it, and they touch it only through this
// type's synchronized methods (spec.md §5: "a single task runs the
// fan-out loop and owns all hub state").
type Hub struct {
	mu        sync.Mutex
	clients   map[string]*client
	queueSize int
	keepAlive time.Duration
}

// NewHub creates a Hub with the given per-subscriber queue bound and
// keep-alive interval.
func NewHub(queueSize int, keepAlive time.Duration) *Hub {
	return &Hub{
		clients:   make(map[string]*client),
		queueSize: queueSize,
		keepAlive: keepAlive,
	}
}

// Broadcast delivers env to every connected subscriber, evicting any whose
// queue is full (spec.md §4.4 drop policy: slow-subscriber eviction, not
// blocking). It returns once every live subscriber has accepted the
// envelope or been evicted — the acknowledgement the relay waits for
// before marking the envelope shipped.
func (h *Hub) Broadcast(ctx context.Context, env events.Envelope) error {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		select {
		case c.queue <- env:
		default:
			c.evict()
			h.remove(c.id)
		}
	}
	return nil
}

// SubscriberCount reports the number of live subscribers, for observability.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(id string) *client {
	c := &client{
		id:      id,
		queue:   make(chan events.Envelope, h.queueSize),
		evicted: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Replayer is implemented by the outbox repository; it lets the hub decide
// whether a reconnecting subscriber's Last-Event-ID can be served from the
// retention window or must be told to resync (spec.md §4.4).
type Replayer interface {
	GetSince(ctx context.Context, afterSeq int64, limit int) ([]events.Envelope, error)
	OldestRetainedSeq(ctx context.Context) (int64, bool, error)
}

// ServeHTTP handles one SSE connection end to end: optional replay from
// Last-Event-ID, live subscription, keep-alive pings, and slow-subscriber
// eviction.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, replay Replayer, subscriberID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		if !h.replayOrResync(r.Context(), w, flusher, replay, lastID) {
			return
		}
	}

	c := h.register(subscriberID)
	defer h.remove(c.id)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.queue:
			if !ok {
				return
			}
			if err := writeEnvelope(w, env); err != nil {
				return
			}
			flusher.Flush()

		case <-c.evicted:
			writeEvent(w, ResyncReason, map[string]string{"reason": "slow_subscriber"})
			flusher.Flush()
			return

		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// replayOrResync serves envelopes after lastID from the retention window,
// or tells the client to resync if lastID has already fallen out of it.
// Returns false if the connection was terminated (resync sent).
func (h *Hub) replayOrResync(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, replay Replayer, lastID string) bool {
	var afterSeq int64
	if _, err := fmt.Sscanf(lastID, "%d", &afterSeq); err != nil {
		writeEvent(w, ResyncReason, map[string]string{"reason": "invalid_last_event_id"})
		flusher.Flush()
		return false
	}

	oldest, any, err := replay.OldestRetainedSeq(ctx)
	if err != nil || (any && afterSeq+1 < oldest) {
		writeEvent(w, ResyncReason, map[string]string{"reason": "outside_retention_window"})
		flusher.Flush()
		return false
	}

	backlog, err := replay.GetSince(ctx, afterSeq, 1000)
	if err != nil {
		writeEvent(w, ResyncReason, map[string]string{"reason": "replay_failed"})
		flusher.Flush()
		return false
	}

	for _, env := range backlog {
		if err := writeEnvelope(w, env); err != nil {
			return false
		}
	}
	flusher.Flush()
	return true
}

func writeEnvelope(w http.ResponseWriter, env events.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := sse.Event{
		Id:    fmt.Sprintf("%d", env.InsertionSeq),
		Event: string(env.EventType),
		Data:  string(body),
	}
	return sse.Encode(w, msg)
}

func writeEvent(w http.ResponseWriter, eventName string, data interface{}) {
	body, _ := json.Marshal(data)
	_ = sse.Encode(w, sse.Event{Event: eventName, Data: string(body)})
}
