// Package activeagents tracks the binding from a chat route to the pane
// currently running on its behalf, so chat input is typed into the right
// pane. Entries are created on chat-triggered runs and removed once the
// pane ceases to be busy.
package activeagents

import (
	"sync"

	"github.com/cwt-dev/cwtd/internal/types"
)

// Table is a mutex-guarded map keyed by chat route id.
type Table struct {
	mu sync.RWMutex
	m  map[string]types.ActiveAgent
}

// New returns an empty Table.
func New() *Table {
	return &Table{m: make(map[string]types.ActiveAgent)}
}

// Set records (or replaces) the active agent for a chat route.
func (t *Table) Set(a types.ActiveAgent) {
	t.mu.Lock()
	t.m[a.ChatRouteID] = a
	t.mu.Unlock()
}

// Get returns the active agent bound to chatRouteID, if any.
func (t *Table) Get(chatRouteID string) (types.ActiveAgent, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.m[chatRouteID]
	return a, ok
}

// Remove deletes the binding for chatRouteID.
func (t *Table) Remove(chatRouteID string) {
	t.mu.Lock()
	delete(t.m, chatRouteID)
	t.mu.Unlock()
}

// RemoveByPane deletes any binding pointing at pane, used when a monitor
// detects its pane has stopped being busy.
func (t *Table) RemoveByPane(pane types.PaneHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, a := range t.m {
		if a.Pane == pane {
			delete(t.m, id)
		}
	}
}
