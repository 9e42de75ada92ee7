package scheduler

import "sync/atomic"

// Clock is a monotonic logical counter.
//
// The scheduler uses one Clock to stamp lifecycle events (so a trace has a
// strict total order independent of wall time) and another to hand out the
// stable numeric command identifiers reported to telemetry.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start. Used when a recorder
// resumes numbering after previously persisted events.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current value without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
