// Package endpointtable holds the live set of endpoint.Endpoint state
// machines behind a single mutex, so every admission decision and every
// header-driven update is serialized without requiring per-endpoint locks.
package endpointtable

import (
	"sync"

	"github.com/sprintleague/riftwalker/internal/endpoint"
)

// Table is the shared, concurrency-safe map of endpoint.Id to
// *endpoint.Endpoint. A single mutex guards the whole map: endpoints are
// cheap to evaluate and the access pattern is short bursts of map lookups
// and state transitions, never I/O, so one coarse lock is simpler and no
// slower in practice than a lock per id.
//
// Callers MUST NOT perform network I/O (or anything else that can block for
// an unbounded time) while holding the lock; Table's own methods never do.
// RequestAdmission keeps the *endpoint.Endpoint pointers it looked up across
// its HTTP call, but reads and mutates them only inside a later With call.
type Table struct {
	mu        sync.Mutex
	endpoints map[endpoint.Id]*endpoint.Endpoint
}

// New constructs an empty Table.
func New() *Table {
	return &Table{endpoints: make(map[endpoint.Id]*endpoint.Endpoint)}
}

// GetOrCreate returns the Endpoint for id, creating it in the Unknown state
// on first reference.
func (t *Table) GetOrCreate(id endpoint.Id) *endpoint.Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getOrCreateLocked(id)
}

func (t *Table) getOrCreateLocked(id endpoint.Id) *endpoint.Endpoint {
	ep, ok := t.endpoints[id]
	if !ok {
		ep = endpoint.New()
		t.endpoints[id] = ep
	}
	return ep
}

// With runs fn with the table lock held, passing a lookup function scoped to
// that critical section. It is the primitive RequestAdmission builds on: fn
// must return quickly and must never perform I/O, block on a channel, or
// call back into Table (the mutex is not reentrant).
func (t *Table) With(fn func(get func(endpoint.Id) *endpoint.Endpoint)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.getOrCreateLocked)
}

// Snapshot is a point-in-time copy of one endpoint's externally relevant
// state, safe to read without the table lock. Used by the status API to
// serialize the whole table without holding the lock during JSON encoding.
type Snapshot struct {
	Id         endpoint.Id
	StatusTag  endpoint.StatusTag
	BucketsLen int
}

// Snapshot copies out a Snapshot for every currently known endpoint. The
// table lock is held only for the duration of the copy, never during
// marshaling or transmission.
func (t *Table) Snapshot() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Snapshot, 0, len(t.endpoints))
	for id, ep := range t.endpoints {
		out = append(out, Snapshot{
			Id:         id,
			StatusTag:  ep.Status.Tag,
			BucketsLen: len(ep.Buckets),
		})
	}
	return out
}

// Len reports how many endpoints the table currently tracks.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.endpoints)
}
