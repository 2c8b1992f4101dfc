// Package revtable implements the shared, process-wide (name, revision)
// table every Host in a process publishes its applied revision into, so
// that get_local_revision(name) can be answered without routing through
// the owning Host's actor mailbox.
package revtable

import (
	"sync"

	"github.com/nordhaven/rsmcore/api"
)

// Table is safe for concurrent use; a process runs exactly one Table
// shared by every Host it hosts.
type Table struct {
	mu   sync.RWMutex
	revs map[string]api.Revision
}

func New() *Table {
	return &Table{revs: make(map[string]api.Revision)}
}

// Register marks name as present in the table, with no applied
// revision yet, so Get returns NoRevision instead of not_running until
// the Host publishes its first revision.
func (t *Table) Register(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.revs[name]; !ok {
		t.revs[name] = api.NoRevision
	}
}

// Unregister removes name once its Host has terminated.
func (t *Table) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.revs, name)
}

// Publish records the latest applied revision for name. Called by the
// owning Host's actor goroutine after every batch of applies.
func (t *Table) Publish(name string, rev api.Revision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revs[name] = rev
}

// Get answers get_local_revision(name): the most recently published
// revision, or ErrNotRunning if name is not currently registered.
func (t *Table) Get(name string) (api.Revision, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rev, ok := t.revs[name]
	if !ok {
		return api.NoRevision, api.ErrNotRunning
	}
	return rev, nil
}
