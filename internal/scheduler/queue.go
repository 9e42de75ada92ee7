package scheduler

import (
	"sync"

	"github.com/roach88/cmdsched/internal/command"
)

// requestKind distinguishes the requests staged between ticks.
type requestKind int

const (
	// requestAdd asks for a command to be admitted.
	requestAdd requestKind = iota + 1
	// requestCancel asks for a running command to be removed.
	requestCancel
)

// request is one staged scheduling request.
type request struct {
	kind requestKind
	cmd  command.Command
}

// requestQueue is the staging area for scheduling requests.
//
// It is the only scheduler structure shared with other goroutines: network
// handlers, operator input and command callbacks all enqueue here, and the
// tick goroutine drains it once per tick. A drain swaps the whole batch out
// under the lock, so anything enqueued while the batch is being processed
// lands in the next tick's batch.
//
// An add for a command that is already waiting in the batch is dropped.
type requestQueue struct {
	mu       sync.Mutex
	requests []request
	adds     map[command.Command]struct{}
}

// newRequestQueue creates an empty queue.
func newRequestQueue() *requestQueue {
	return &requestQueue{
		requests: make([]request, 0, 16),
		adds:     make(map[command.Command]struct{}),
	}
}

// Enqueue appends a request. Returns false when an add for the same command
// is already pending.
// Thread-safe: may be called from any goroutine.
func (q *requestQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch r.kind {
	case requestAdd:
		if _, dup := q.adds[r.cmd]; dup {
			return false
		}
		q.adds[r.cmd] = struct{}{}
	case requestCancel:
		// A later add must not be swallowed by one the cancel supersedes.
		delete(q.adds, r.cmd)
	}
	q.requests = append(q.requests, r)
	return true
}

// Drain removes and returns the current batch in FIFO order.
func (q *requestQueue) Drain() []request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return nil
	}
	batch := q.requests
	q.requests = make([]request, 0, cap(batch))
	clear(q.adds)
	return batch
}

// Clear discards every pending request.
func (q *requestQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Nil out the slots so the discarded commands can be collected.
	clear(q.requests)
	q.requests = q.requests[:0]
	clear(q.adds)
}

// PendingAdd reports whether an add for c is waiting in the batch.
func (q *requestQueue) PendingAdd(c command.Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.adds[c]
	return ok
}

// Len returns the number of pending requests.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}
