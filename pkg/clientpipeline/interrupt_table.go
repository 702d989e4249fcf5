package clientpipeline

import (
	"sync"
	"time"
)

// InterruptTable is the client-side, single shared map the sole SSE ingress
// point consults to decide whether an arriving envelope is the echo of a
// just-applied local mutation (spec.md §4.5). Entries expire by TTL rather
// than explicit removal, since a WB that registers an entry has no further
// hook to clear it on.
type InterruptTable struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
}

type entry struct {
	instructionType string
	registeredAt    time.Time
}

// NewInterruptTable builds a table with the given TTL (spec.md §3 suggests
// roughly 10s).
func NewInterruptTable(ttl time.Duration) *InterruptTable {
	return &InterruptTable{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// Register records a correlation id at WB success, per spec.md §4.5.
func (t *InterruptTable) Register(correlationID, instructionType string) {
	if correlationID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[correlationID] = entry{instructionType: instructionType, registeredAt: time.Now()}
}

// Match reports whether correlationID is a live (non-expired) entry, and
// consumes it if so — a match fires exactly once, since a second SSE
// delivery for the same correlation id (e.g. a reconnect replay) must be
// treated as a fresh remote-originated change, not dropped again.
func (t *InterruptTable) Match(correlationID string) bool {
	if correlationID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[correlationID]
	if !ok {
		return false
	}
	delete(t.entries, correlationID)
	if time.Since(e.registeredAt) > t.ttl {
		return false
	}
	return true
}

// Prune removes expired entries. Callers run this periodically; it is not
// required for correctness (Match already checks TTL) but bounds the map's
// memory growth for a long-lived session.
func (t *InterruptTable) Prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for k, e := range t.entries {
		if now.Sub(e.registeredAt) > t.ttl {
			delete(t.entries, k)
		}
	}
}
