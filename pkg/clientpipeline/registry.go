package clientpipeline

import "context"

// Hooks is the fixed contract an instruction type conforms to (spec.md §9:
// "a data-driven map keyed by instruction type, not a class hierarchy").
// Registry dispatches by Instruction.Type into the matching Hooks value;
// there is no per-type Go type or inheritance involved.
type Hooks struct {
	// Validate rejects a malformed instruction before it ever reaches SCH.
	// A nil Validate means "always valid".
	Validate func(payload interface{}) error

	// BuildRequest turns the instruction's payload into the HTTP request EX
	// issues: method, path, and body.
	BuildRequest func(payload interface{}) (method, path string, body interface{})

	// OptimisticApply predicts the post-state and applies it to local
	// stores immediately, returning a snapshot for Rollback. A nil
	// OptimisticApply means the instruction has no optimistic phase — EX
	// just waits for the round trip.
	OptimisticApply func(payload interface{}) (snapshot interface{})

	// Rollback restores local stores to snapshot after a fatal failure.
	Rollback func(snapshot interface{})

	// Commit reconciles local stores with the authoritative response body
	// on success: replacing temporary ids, applying side_effects, and
	// releasing the optimistic snapshot. It is also the hook a remote
	// (SSE-originated) envelope is dispatched through, per spec.md §4.5's
	// interrupt/dedup rule — apply and commit share one reconciliation
	// path so both are idempotent by construction.
	Commit func(ctx context.Context, responseBody map[string]interface{}, snapshot interface{}) error
}

// Registry maps instruction type to its Hooks.
type Registry struct {
	byType map[string]Hooks
}

// NewRegistry builds an empty registry; callers populate it with Register
// before constructing a Pipeline.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Hooks)}
}

// Register associates an instruction type with its hooks.
func (r *Registry) Register(instructionType string, hooks Hooks) {
	r.byType[instructionType] = hooks
}

func (r *Registry) lookup(instructionType string) (Hooks, bool) {
	h, ok := r.byType[instructionType]
	return h, ok
}
