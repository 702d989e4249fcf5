package clientpipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport lets tests script a sequence of responses/errors per call,
// and records every request it saw.
type fakeTransport struct {
	mu        sync.Mutex
	responses []Response
	errs      []error
	calls     []string
	callCount int
	delay     time.Duration
}

func (f *fakeTransport) Do(ctx context.Context, method, path string, body interface{}, correlationID string) (Response, error) {
	f.mu.Lock()
	idx := f.callCount
	f.callCount++
	f.calls = append(f.calls, method+" "+path)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}

	if idx < len(f.errs) && f.errs[idx] != nil {
		return Response{}, f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func newTaskUpdateRegistry() *Registry {
	reg := NewRegistry()
	reg.Register("task.update", Hooks{
		BuildRequest: func(payload interface{}) (string, string, interface{}) {
			return "PATCH", "/api/tasks", payload
		},
	})
	return reg
}

func TestPipeline_Dispatch_SuccessReachesDoneAndRegistersInterrupt(t *testing.T) {
	transport := &fakeTransport{responses: []Response{{Status: 200, Data: map[string]interface{}{"task": map[string]interface{}{"id": "t1"}}}}}
	interrupt := NewInterruptTable(time.Second)
	p := NewPipeline(newTaskUpdateRegistry(), transport, interrupt, Config{})

	inst, err := p.Dispatch(context.Background(), "task.update", map[string]interface{}{"id": "t1"}, []string{"task:t1"})
	require.NoError(t, err)
	assert.Equal(t, StageDone, inst.Stage)
	assert.True(t, interrupt.Match(inst.CorrelationID), "WB success must register the correlation id for echo dedup")
}

func TestPipeline_Dispatch_FatalStatusRollsBackAndFails(t *testing.T) {
	transport := &fakeTransport{responses: []Response{{Status: 409}}}
	var rolledBack bool
	reg := NewRegistry()
	reg.Register("task.update", Hooks{
		BuildRequest: func(payload interface{}) (string, string, interface{}) { return "PATCH", "/api/tasks", payload },
		OptimisticApply: func(payload interface{}) interface{} { return "snapshot" },
		Rollback: func(snapshot interface{}) { rolledBack = snapshot == "snapshot" },
	})
	p := NewPipeline(reg, transport, NewInterruptTable(time.Second), Config{})

	inst, err := p.Dispatch(context.Background(), "task.update", nil, []string{"task:t1"})
	require.Error(t, err)
	assert.Equal(t, StageFailed, inst.Stage)
	assert.True(t, rolledBack)
	assert.Equal(t, 1, transport.callCount, "a fatal status must not be retried")
}

func TestPipeline_Dispatch_RetriesTransientThenSucceeds(t *testing.T) {
	transport := &fakeTransport{responses: []Response{{Status: 503}, {Status: 200, Data: map[string]interface{}{}}}}
	p := NewPipeline(newTaskUpdateRegistry(), transport, NewInterruptTable(time.Second), Config{RetryBackoff: time.Millisecond})

	inst, err := p.Dispatch(context.Background(), "task.update", nil, []string{"task:t1"})
	require.NoError(t, err)
	assert.Equal(t, StageDone, inst.Stage)
	assert.Equal(t, 2, transport.callCount)
	assert.Equal(t, 1, inst.RetryCount)
}

func TestPipeline_Dispatch_ExhaustsRetriesAndFails(t *testing.T) {
	transport := &fakeTransport{responses: []Response{{Status: 503}}}
	p := NewPipeline(newTaskUpdateRegistry(), transport, NewInterruptTable(time.Second), Config{MaxRetries: 2, RetryBackoff: time.Millisecond})

	inst, err := p.Dispatch(context.Background(), "task.update", nil, []string{"task:t1"})
	require.Error(t, err)
	assert.Equal(t, StageFailed, inst.Stage)
	assert.Equal(t, 3, transport.callCount) // initial attempt + 2 retries
}

func TestPipeline_Dispatch_ValidationFailureNeverReachesTransport(t *testing.T) {
	transport := &fakeTransport{}
	reg := NewRegistry()
	reg.Register("task.update", Hooks{
		Validate: func(payload interface{}) error { return assert.AnError },
		BuildRequest: func(payload interface{}) (string, string, interface{}) { return "PATCH", "/api/tasks", payload },
	})
	p := NewPipeline(reg, transport, NewInterruptTable(time.Second), Config{})

	_, err := p.Dispatch(context.Background(), "task.update", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 0, transport.callCount)
}

func TestPipeline_Dispatch_UnknownInstructionTypeErrors(t *testing.T) {
	p := NewPipeline(NewRegistry(), &fakeTransport{}, NewInterruptTable(time.Second), Config{})
	_, err := p.Dispatch(context.Background(), "nonexistent", nil, nil)
	require.Error(t, err)
}

func TestPipeline_Dispatch_SerializesConflictingResourceKeys(t *testing.T) {
	transport := &timingTransport{delay: 30 * time.Millisecond}
	p := NewPipeline(newTaskUpdateRegistry(), transport, NewInterruptTable(time.Second), Config{SchedulingTimeout: time.Second})

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_, err := p.Dispatch(context.Background(), "task.update", nil, []string{"task:shared"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, transport.spans, 2)
	a, b := transport.spans[0], transport.spans[1]
	overlap := a.start.Before(b.end) && b.start.Before(a.end)
	assert.False(t, overlap, "conflicting resource keys must serialize EX; these two calls overlapped in time")
}

// timingTransport records the wall-clock span of each EX call so the test
// can assert two conflicting dispatches never execute concurrently.
type timingTransport struct {
	mu    sync.Mutex
	delay time.Duration
	spans []struct{ start, end time.Time }
}

func (tt *timingTransport) Do(ctx context.Context, method, path string, body interface{}, correlationID string) (Response, error) {
	start := time.Now()
	time.Sleep(tt.delay)
	end := time.Now()
	tt.mu.Lock()
	tt.spans = append(tt.spans, struct{ start, end time.Time }{start, end})
	tt.mu.Unlock()
	return Response{Status: 200, Data: map[string]interface{}{}}, nil
}

func TestPipeline_Dispatch_SchedulingTimeoutWhenResourceNeverReleases(t *testing.T) {
	transport := &fakeTransport{delay: time.Hour, responses: []Response{{Status: 200}}}
	p := NewPipeline(newTaskUpdateRegistry(), transport, NewInterruptTable(time.Second), Config{SchedulingTimeout: 20 * time.Millisecond})

	// Occupy the resource key with a long-running dispatch in the background.
	go p.Dispatch(context.Background(), "task.update", nil, []string{"task:stuck"})
	time.Sleep(5 * time.Millisecond)

	_, err := p.Dispatch(context.Background(), "task.update", nil, []string{"task:stuck"})
	require.ErrorIs(t, err, ErrSchedulingTimeout)
}
