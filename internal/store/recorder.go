package store

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/cmdsched/internal/scheduler"
)

// ErrRecorderFull is returned by Publish when the write buffer is full.
var ErrRecorderFull = errors.New("recorder buffer full")

// maxEventBatch bounds how many events are written per transaction.
const maxEventBatch = 128

// Recorder persists a scheduler's events and snapshots into one session.
// It implements scheduler.Sink and scheduler.Publisher.
//
// Record and Publish never block the tick: items go onto a bounded
// channel drained by a single writer goroutine. When the channel is full
// the item is dropped and counted. Snapshots are only queued when the
// running set differs from the last queued one.
type Recorder struct {
	store   *Store
	session string
	logger  *slog.Logger

	mu     sync.RWMutex // guards closed against sends on ch
	closed bool
	ch     chan recorderItem
	done   chan struct{}

	// Tick goroutine only.
	lastCommands []scheduler.CommandInfo
	haveLast     bool

	dropped atomic.Int64
	failed  atomic.Int64
}

type recorderItem struct {
	event    scheduler.Event
	snapshot *scheduler.Snapshot
}

// NewRecorder starts a recorder writing into sessionID. bufferSize is the
// number of pending items it holds before dropping.
func NewRecorder(s *Store, sessionID string, bufferSize int, logger *slog.Logger) *Recorder {
	if bufferSize < 1 {
		bufferSize = 1
	}
	r := &Recorder{
		store:   s,
		session: sessionID,
		logger:  logger.With("component", "recorder", "session", sessionID),
		ch:      make(chan recorderItem, bufferSize),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record implements scheduler.Sink.
func (r *Recorder) Record(ev scheduler.Event) {
	if !r.send(recorderItem{event: ev}) {
		r.dropped.Add(1)
	}
}

// Publish implements scheduler.Publisher. It returns ErrRecorderFull when
// the snapshot had to be dropped.
func (r *Recorder) Publish(snap scheduler.Snapshot) error {
	if r.haveLast && slices.Equal(r.lastCommands, snap.Commands) {
		return nil
	}
	stored := scheduler.Snapshot{Tick: snap.Tick, Commands: slices.Clone(snap.Commands)}
	if stored.Commands == nil {
		stored.Commands = []scheduler.CommandInfo{}
	}
	if !r.send(recorderItem{snapshot: &stored}) {
		r.dropped.Add(1)
		return ErrRecorderFull
	}
	r.lastCommands = stored.Commands
	r.haveLast = true
	return nil
}

// Dropped returns how many items were discarded because the buffer was
// full or the recorder was closed.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Failed returns how many writes the database rejected.
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

// Close stops accepting items and waits for the writer to flush what is
// queued, or for ctx to end. Safe to call more than once.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) send(item recorderItem) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.ch <- item:
		return true
	default:
		return false
	}
}

// loop is the single writer. Consecutive events are batched into one
// transaction; a snapshot flushes pending events first so rows land in
// the order they were produced.
func (r *Recorder) loop() {
	defer close(r.done)

	ctx := context.Background()
	batch := make([]scheduler.Event, 0, maxEventBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.WriteEvents(ctx, r.session, batch); err != nil {
			r.failed.Add(int64(len(batch)))
			r.logger.Error("failed to write events", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for item := range r.ch {
		if item.snapshot != nil {
			flush()
			if err := r.store.WriteSnapshot(ctx, r.session, *item.snapshot); err != nil {
				r.failed.Add(1)
				r.logger.Error("failed to write snapshot", "tick", item.snapshot.Tick, "error", err)
			}
			continue
		}
		batch = append(batch, item.event)
		if len(batch) >= maxEventBatch || len(r.ch) == 0 {
			flush()
		}
	}
	flush()
}
