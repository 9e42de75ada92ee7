package telemetry

import (
	"slices"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cmdsched/internal/scheduler"
)

// Table is the shared telemetry table. It implements scheduler.Publisher
// and scheduler.CancelSource.
//
// Thread-safety: all methods are safe for concurrent use. Publish and
// DrainCancels are called from the tick goroutine; Latest and
// RequestCancel from anywhere else.
type Table struct {
	mu      sync.RWMutex
	latest  scheduler.Snapshot
	ok      bool
	cancels []int64
	pending map[int64]struct{}
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{pending: make(map[int64]struct{})}
}

// Publish stores a copy of snap with display names normalized to NFC.
func (t *Table) Publish(snap scheduler.Snapshot) error {
	stored := scheduler.Snapshot{
		Tick:     snap.Tick,
		Commands: make([]scheduler.CommandInfo, len(snap.Commands)),
	}
	for i, c := range snap.Commands {
		stored.Commands[i] = scheduler.CommandInfo{ID: c.ID, Name: NormalizeName(c.Name)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = stored
	t.ok = true
	return nil
}

// Latest returns the most recent snapshot. ok is false before the first
// publish.
func (t *Table) Latest() (snap scheduler.Snapshot, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ok {
		return scheduler.Snapshot{}, false
	}
	return scheduler.Snapshot{
		Tick:     t.latest.Tick,
		Commands: slices.Clone(t.latest.Commands),
	}, true
}

// RequestCancel queues a cancel for the running command with the given id.
// It returns false when the id is not in the latest snapshot; repeated
// requests for the same id before the next drain are queued once.
func (t *Table) RequestCancel(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	known := slices.ContainsFunc(t.latest.Commands, func(c scheduler.CommandInfo) bool {
		return c.ID == id
	})
	if !known {
		return false
	}
	if _, dup := t.pending[id]; !dup {
		t.pending[id] = struct{}{}
		t.cancels = append(t.cancels, id)
	}
	return true
}

// DrainCancels returns the queued cancel ids in request order and clears
// the queue.
func (t *Table) DrainCancels() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.cancels
	t.cancels = nil
	clear(t.pending)
	return ids
}

// NormalizeName returns s in Unicode NFC so that visually identical
// command names compare equal on the dashboard.
func NormalizeName(s string) string {
	return norm.NFC.String(s)
}
