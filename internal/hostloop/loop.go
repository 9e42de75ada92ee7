// Package hostloop drives a scheduler from a periodic control loop.
//
// The loop owns the tick goroutine: every scheduler callback, Remove and
// ResetAll happen on it. Operating-mode changes requested from other
// goroutines are queued and applied at the next tick boundary.
package hostloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler is the part of *scheduler.Scheduler the loop drives.
type Scheduler interface {
	Run() error
	ResetAll()
	SetEnabled(enabled bool)
	Tick() int64
}

// Mode is the robot's operating mode.
type Mode int

const (
	Disabled Mode = iota
	Autonomous
	Teleop
	Test
)

// String returns the mode's config name.
func (m Mode) String() string {
	switch m {
	case Disabled:
		return "disabled"
	case Autonomous:
		return "autonomous"
	case Teleop:
		return "teleop"
	case Test:
		return "test"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a config name to a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Disabled, Autonomous, Teleop, Test} {
		if m.String() == s {
			return m, nil
		}
	}
	return Disabled, fmt.Errorf("unknown mode %q", s)
}

// Config holds loop configuration.
type Config struct {
	// Period is the control cycle period.
	Period time.Duration

	// MaxTicks stops the loop after this many ticks. Zero runs until
	// stopped.
	MaxTicks int64
}

// DefaultConfig returns a 50 Hz loop with no tick limit.
func DefaultConfig() Config {
	return Config{Period: 20 * time.Millisecond}
}

// Loop calls Scheduler.Run once per period.
type Loop struct {
	sched  Scheduler
	config Config
	logger *slog.Logger
	now    func() time.Time

	modeMu    sync.Mutex
	mode      Mode
	requested *Mode

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	ticks    atomic.Int64
	overruns atomic.Int64
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the wall clock used to measure tick duration.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// WithMode sets the initial operating mode. Defaults to Disabled.
func WithMode(m Mode) Option {
	return func(l *Loop) {
		l.mode = m
	}
}

// New creates a loop and enables or disables the scheduler to match the
// initial mode.
func New(s Scheduler, cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	if cfg.Period <= 0 {
		cfg.Period = DefaultConfig().Period
	}
	l := &Loop{
		sched:  s,
		config: cfg,
		logger: logger.With("component", "hostloop"),
		now:    time.Now,
		mode:   Disabled,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	s.SetEnabled(l.mode != Disabled)
	return l
}

// Start runs the loop. Blocks until ctx is canceled, Stop is called or
// MaxTicks ticks have run. Run errors are logged, never fatal.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return fmt.Errorf("hostloop: already started")
	}
	defer close(l.doneCh)

	l.logger.Info("control loop started", "period", l.config.Period, "mode", l.Mode())
	ticker := time.NewTicker(l.config.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("control loop stopping (context cancelled)", "ticks", l.ticks.Load())
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("control loop stopping (stop called)", "ticks", l.ticks.Load())
			return nil
		case <-ticker.C:
			if err := l.Tick(); err != nil {
				l.logger.Error("tick error", "error", err)
			}
			if l.config.MaxTicks > 0 && l.ticks.Load() >= l.config.MaxTicks {
				l.logger.Info("control loop finished", "ticks", l.ticks.Load())
				return nil
			}
		}
	}
}

// Stop ends a running loop and waits for the current tick to finish.
// Calling Stop on a loop that was never started returns immediately.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	if l.started.Load() {
		<-l.doneCh
	}
	return nil
}

// Tick applies a pending mode change and runs one scheduler pass. Start
// calls it on every period; tests call it directly. Tick goroutine only.
func (l *Loop) Tick() error {
	l.applyMode()

	start := l.now()
	err := l.sched.Run()
	elapsed := l.now().Sub(start)
	l.ticks.Add(1)

	if elapsed > l.config.Period {
		l.overruns.Add(1)
		l.logger.Warn("tick overrun",
			"tick", l.sched.Tick(),
			"elapsed", elapsed,
			"period", l.config.Period,
		)
	}
	return err
}

// SetMode requests an operating-mode change. Safe from any goroutine; the
// change takes effect at the start of the next tick.
func (l *Loop) SetMode(m Mode) {
	l.modeMu.Lock()
	defer l.modeMu.Unlock()
	l.requested = &m
}

// Mode returns the mode currently in effect.
func (l *Loop) Mode() Mode {
	l.modeMu.Lock()
	defer l.modeMu.Unlock()
	return l.mode
}

// Ticks returns how many ticks the loop has run.
func (l *Loop) Ticks() int64 {
	return l.ticks.Load()
}

// Overruns returns how many ticks took longer than the period.
func (l *Loop) Overruns() int64 {
	return l.overruns.Load()
}

// applyMode performs a queued transition: every running command is
// interrupted, staged requests and button edges are discarded, and the
// scheduler is enabled unless the new mode is Disabled. Requesting the
// current mode does nothing.
func (l *Loop) applyMode() {
	l.modeMu.Lock()
	req := l.requested
	l.requested = nil
	prev := l.mode
	if req != nil {
		l.mode = *req
	}
	l.modeMu.Unlock()

	if req == nil || *req == prev {
		return
	}
	l.sched.ResetAll()
	l.sched.SetEnabled(*req != Disabled)
	l.logger.Info("mode changed", "from", prev, "to", *req)
}
