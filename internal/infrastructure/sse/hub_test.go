package sse

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/events"
)

// safeRecorder is a concurrency-safe stand-in for httptest.ResponseRecorder:
// ServeHTTP writes from its own goroutine while the test reads the buffer
// from the main goroutine, which httptest.ResponseRecorder's plain
// bytes.Buffer doesn't tolerate race-free.
type safeRecorder struct {
	mu      sync.Mutex
	header  http.Header
	body    bytes.Buffer
	status  int
	flushed int
}

func newSafeRecorder() *safeRecorder {
	return &safeRecorder{header: make(http.Header)}
}

func (r *safeRecorder) Header() http.Header { return r.header }

func (r *safeRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(b)
}

func (r *safeRecorder) WriteHeader(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *safeRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed++
}

func (r *safeRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

type fakeReplayer struct {
	backlog     []events.Envelope
	oldest      int64
	oldestFound bool
	replayErr   error
}

func (f *fakeReplayer) GetSince(ctx context.Context, afterSeq int64, limit int) ([]events.Envelope, error) {
	if f.replayErr != nil {
		return nil, f.replayErr
	}
	var out []events.Envelope
	for _, e := range f.backlog {
		if e.InsertionSeq > afterSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeReplayer) OldestRetainedSeq(ctx context.Context) (int64, bool, error) {
	return f.oldest, f.oldestFound, nil
}

func TestHub_Broadcast_DeliversToRegisteredClient(t *testing.T) {
	h := NewHub(4, time.Hour)
	c := h.register("sub-1")
	defer h.remove("sub-1")

	env := events.Envelope{EventType: events.TaskCreated, AggregateID: "t1", Payload: events.Payload{Data: map[string]interface{}{}}}
	require.NoError(t, h.Broadcast(context.Background(), env))

	select {
	case got := <-c.queue:
		assert.Equal(t, events.TaskCreated, got.EventType)
	default:
		t.Fatal("expected envelope delivered to subscriber queue")
	}
}

func TestHub_Broadcast_EvictsSlowSubscriber(t *testing.T) {
	h := NewHub(1, time.Hour)
	c := h.register("sub-1")

	env := events.Envelope{EventType: events.TaskCreated, Payload: events.Payload{Data: map[string]interface{}{}}}
	require.NoError(t, h.Broadcast(context.Background(), env)) // fills the bound-1 queue
	require.NoError(t, h.Broadcast(context.Background(), env)) // second send finds it full -> eviction

	assert.Equal(t, 0, h.SubscriberCount())
	select {
	case <-c.evicted:
	default:
		t.Fatal("expected client to be marked evicted")
	}
}

func TestHub_ServeHTTP_StreamsLiveEnvelope(t *testing.T) {
	h := NewHub(8, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := newSafeRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, req, &fakeReplayer{}, "sub-1")
		close(done)
	}()

	waitFor(t, time.Second, func() bool { return h.SubscriberCount() == 1 })

	env := events.Envelope{InsertionSeq: 5, EventType: events.TaskCreated, AggregateID: "t1", Payload: events.Payload{Data: map[string]interface{}{}}}
	require.NoError(t, h.Broadcast(context.Background(), env))

	waitFor(t, time.Second, func() bool { return strings.Contains(rec.String(), "task.created") })
	assert.Contains(t, rec.String(), "id: 5")

	cancel()
	<-done
}

func TestHub_ServeHTTP_ReplaysBacklogFromLastEventID(t *testing.T) {
	h := NewHub(8, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replay := &fakeReplayer{
		oldest:      1,
		oldestFound: true,
		backlog: []events.Envelope{
			{InsertionSeq: 2, EventType: events.TaskUpdated, Payload: events.Payload{Data: map[string]interface{}{}}},
			{InsertionSeq: 3, EventType: events.TaskCompleted, Payload: events.Payload{Data: map[string]interface{}{}}},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := newSafeRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, req, replay, "sub-2")
		close(done)
	}()

	waitFor(t, time.Second, func() bool { return strings.Contains(rec.String(), "task.completed") })
	assert.Contains(t, rec.String(), "task.updated")

	cancel()
	<-done
}

func TestHub_ServeHTTP_ResyncWhenOutsideRetentionWindow(t *testing.T) {
	h := NewHub(8, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replay := &fakeReplayer{oldest: 100, oldestFound: true}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := newSafeRecorder()

	h.ServeHTTP(rec, req, replay, "sub-3") // returns immediately: resync sent, no registration

	assert.Contains(t, rec.String(), ResyncReason)
	assert.Equal(t, 0, h.SubscriberCount())
}
