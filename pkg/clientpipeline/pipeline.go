package clientpipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport is the HTTP boundary EX calls through. A real implementation
// wraps net/http; tests supply a fake. The correlation id is always carried
// as a request header (spec.md §6), never folded into the body.
type Transport interface {
	Do(ctx context.Context, method, path string, body interface{}, correlationID string) (Response, error)
}

// Response is the classified shape of an HTTP round trip, already peeled
// down to what RES needs: the status code (to classify success / retryable
// / fatal per spec.md §7) and the decoded success envelope's data field.
type Response struct {
	Status int
	Data   map[string]interface{}
}

// retryable reports whether a response status warrants a bounded retry
// rather than a fatal rollback — only DatabaseTransient's 503 mapping
// (spec.md §7); everything else (422/404/409/500) is fatal from the
// Pipeline's point of view, since retrying a validation or conflict error
// can never succeed without new input from the user.
func retryable(status int) bool {
	return status == 503
}

func success(status int) bool {
	return status >= 200 && status < 300
}

// Pipeline is the five-stage dispatcher (spec.md §4.5): IF → SCH → EX → RES
// → WB. One Pipeline instance serves one sidecar connection / session.
type Pipeline struct {
	registry  *Registry
	transport Transport
	interrupt *InterruptTable

	schedulingTimeout time.Duration
	executeTimeout    time.Duration
	maxRetries        int
	retryBackoff      time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	inFlight []*Instruction
}

// Config bundles the Pipeline's tunables; zero values fall back to
// conservative defaults.
type Config struct {
	SchedulingTimeout time.Duration
	ExecuteTimeout    time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
}

func (c Config) withDefaults() Config {
	if c.SchedulingTimeout <= 0 {
		c.SchedulingTimeout = 5 * time.Second
	}
	if c.ExecuteTimeout <= 0 {
		c.ExecuteTimeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	return c
}

// NewPipeline builds a Pipeline over the given instruction registry,
// transport, interrupt table, and tunables.
func NewPipeline(registry *Registry, transport Transport, interrupt *InterruptTable, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		registry:          registry,
		transport:         transport,
		interrupt:         interrupt,
		schedulingTimeout: cfg.SchedulingTimeout,
		executeTimeout:    cfg.ExecuteTimeout,
		maxRetries:        cfg.MaxRetries,
		retryBackoff:      cfg.RetryBackoff,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// ErrSchedulingTimeout is returned when an instruction waits longer than
// the configured scheduling timeout for a conflicting instruction to clear.
var ErrSchedulingTimeout = fmt.Errorf("scheduling timeout: resource still locked")

// Dispatch drives a single user-initiated mutation through IF → SCH → EX →
// RES → WB and returns the finished Instruction. An unregistered type or a
// failed Validate returns a nil Instruction and the error. Any later failure
// returns the Instruction in StageFailed together with the error. The
// Rollback hook runs only when the transport fails or the response is not a
// success; a scheduling failure happens before OptimisticApply, and a Commit
// error returns without calling Rollback.
func (p *Pipeline) Dispatch(ctx context.Context, instructionType string, payload interface{}, resourceKeys []string) (*Instruction, error) {
	hooks, ok := p.registry.lookup(instructionType)
	if !ok {
		return nil, fmt.Errorf("clientpipeline: no hooks registered for instruction type %q", instructionType)
	}
	if hooks.Validate != nil {
		if err := hooks.Validate(payload); err != nil {
			return nil, fmt.Errorf("clientpipeline: validation failed: %w", err)
		}
	}

	inst := newInstruction(uuid.NewString(), uuid.NewString(), instructionType, payload, resourceKeys, p.executeTimeout)

	if err := p.schedule(ctx, inst); err != nil {
		inst.enter(StageFailed)
		inst.Err = err
		return inst, err
	}
	defer p.release(inst)

	inst.enter(StageEX)
	var snapshot interface{}
	if hooks.OptimisticApply != nil {
		snapshot = hooks.OptimisticApply(payload)
		inst.OptimisticSnapshot = snapshot
	}

	var resp Response
	var execErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		resp, execErr = p.execute(ctx, hooks, inst)
		inst.enter(StageRES)

		if execErr == nil && success(resp.Status) {
			break
		}
		if execErr == nil && !retryable(resp.Status) {
			// Fatal: a validation/conflict/not-found response. No amount
			// of retrying changes the outcome without new user input.
			break
		}
		inst.RetryCount++
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			execErr = ctx.Err()
			attempt = p.maxRetries
		case <-time.After(p.retryBackoff * time.Duration(attempt+1)):
		}
	}

	inst.enter(StageWB)
	if execErr == nil && success(resp.Status) {
		if hooks.Commit != nil {
			if err := hooks.Commit(ctx, resp.Data, snapshot); err != nil {
				inst.enter(StageFailed)
				inst.Err = err
				return inst, err
			}
		}
		p.interrupt.Register(inst.CorrelationID, inst.Type)
		inst.enter(StageDone)
		return inst, nil
	}

	if hooks.Rollback != nil {
		hooks.Rollback(snapshot)
	}
	inst.enter(StageFailed)
	if execErr != nil {
		inst.Err = execErr
	} else {
		inst.Err = fmt.Errorf("clientpipeline: instruction %s failed with status %d", inst.InstructionID, resp.Status)
	}
	return inst, inst.Err
}

func (p *Pipeline) execute(ctx context.Context, hooks Hooks, inst *Instruction) (Response, error) {
	execCtx, cancel := context.WithTimeout(ctx, p.executeTimeout)
	defer cancel()

	method, path, body := hooks.BuildRequest(inst.Payload)
	return p.transport.Do(execCtx, method, path, body, inst.CorrelationID)
}

// schedule is SCH: it blocks until no in-flight instruction shares a
// resource key with inst, then admits it, or fails with
// ErrSchedulingTimeout once the bound elapses. release's Broadcast wakes
// every waiter each time an instruction clears, so most waits resolve
// as soon as the conflict clears rather than at the deadline timer.
func (p *Pipeline) schedule(ctx context.Context, inst *Instruction) error {
	inst.enter(StageSCH)

	deadline := time.Now().Add(p.schedulingTimeout)

	p.mu.Lock()
	defer p.mu.Unlock()

	for p.conflicts(inst) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return ErrSchedulingTimeout
		}
		p.waitWithTimeout(deadline)
	}
	p.inFlight = append(p.inFlight, inst)
	return nil
}

// waitWithTimeout calls cond.Wait (lock must already be held) but never
// blocks past deadline — sync.Cond has no timed wait, so a timer goroutine
// nudges it with a Broadcast if nothing else does first.
func (p *Pipeline) waitWithTimeout(deadline time.Time) {
	timer := time.AfterFunc(time.Until(deadline), func() {
		p.cond.Broadcast()
	})
	defer timer.Stop()
	p.cond.Wait()
}

func (p *Pipeline) conflicts(inst *Instruction) bool {
	for _, other := range p.inFlight {
		if inst.touches(other) {
			return true
		}
	}
	return false
}

func (p *Pipeline) release(inst *Instruction) {
	p.mu.Lock()
	for i, other := range p.inFlight {
		if other == inst {
			p.inFlight = append(p.inFlight[:i], p.inFlight[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}
