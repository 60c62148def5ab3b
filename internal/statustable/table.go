// Package statustable holds the one piece of state mutated from every
// long-lived task (engine, monitor, scheduler, relay-inbound, IPC-inbound):
// the in-memory JobStatus table, keyed by job name.
package statustable

import (
	"sync"

	"github.com/cwt-dev/cwtd/internal/types"
)

// Table is a mutex-guarded map of job name to JobStatus. Callers take the
// lock, clone the minimum needed, drop the lock, then perform I/O.
type Table struct {
	mu sync.RWMutex
	m  map[string]types.JobStatus
}

// New returns an empty Table.
func New() *Table {
	return &Table{m: make(map[string]types.JobStatus)}
}

// Get returns the status for name, or Idle if unset.
func (t *Table) Get(name string) types.JobStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.m[name]; ok {
		return s
	}
	return types.Idle()
}

// Set overwrites the status for name.
func (t *Table) Set(name string, status types.JobStatus) {
	t.mu.Lock()
	t.m[name] = status
	t.mu.Unlock()
}

// All returns a shallow copy of the full table.
func (t *Table) All() map[string]types.JobStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]types.JobStatus, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}
