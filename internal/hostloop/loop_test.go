package hostloop

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cmdsched/internal/scheduler"
	"github.com/roach88/cmdsched/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeScheduler records the calls the loop makes.
type fakeScheduler struct {
	mu      sync.Mutex
	runs    int
	resets  int
	enabled []bool
	onRun   func()
	err     error
}

func (f *fakeScheduler) Run() error {
	f.mu.Lock()
	f.runs++
	onRun := f.onRun
	f.mu.Unlock()
	if onRun != nil {
		onRun()
	}
	return f.err
}

func (f *fakeScheduler) ResetAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeScheduler) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = append(f.enabled, enabled)
}

func (f *fakeScheduler) Tick() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(f.runs)
}

func (f *fakeScheduler) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func TestMode_StringAndParse(t *testing.T) {
	for _, m := range []Mode{Disabled, Autonomous, Teleop, Test} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("practice")
	assert.Error(t, err)
	assert.Equal(t, "mode(9)", Mode(9).String())
}

func TestNew_AppliesInitialMode(t *testing.T) {
	disabled := &fakeScheduler{}
	New(disabled, DefaultConfig(), discardLogger())
	assert.Equal(t, []bool{false}, disabled.enabled)

	teleop := &fakeScheduler{}
	l := New(teleop, Config{}, discardLogger(), WithMode(Teleop))
	assert.Equal(t, []bool{true}, teleop.enabled)
	assert.Equal(t, Teleop, l.Mode())
	assert.Equal(t, 20*time.Millisecond, l.config.Period, "zero period falls back to the default")
}

func TestLoop_SetMode_AppliedAtNextTick(t *testing.T) {
	f := &fakeScheduler{}
	l := New(f, DefaultConfig(), discardLogger(), WithMode(Teleop))

	l.SetMode(Disabled)
	assert.Equal(t, Teleop, l.Mode(), "not applied until the next tick")
	assert.Zero(t, f.resets)

	require.NoError(t, l.Tick())
	assert.Equal(t, Disabled, l.Mode())
	assert.Equal(t, 1, f.resets)
	assert.Equal(t, []bool{true, false}, f.enabled)

	l.SetMode(Autonomous)
	l.SetMode(Test) // last request wins
	require.NoError(t, l.Tick())
	assert.Equal(t, Test, l.Mode())
	assert.Equal(t, 2, f.resets)
	assert.Equal(t, []bool{true, false, true}, f.enabled)

	l.SetMode(Test) // same mode: no reset
	require.NoError(t, l.Tick())
	assert.Equal(t, 2, f.resets)
	assert.Equal(t, 3, f.Runs())
}

func TestLoop_Tick_Overrun(t *testing.T) {
	clock := testutil.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	f := &fakeScheduler{}
	l := New(f, Config{Period: 20 * time.Millisecond}, discardLogger(), WithClock(clock.Now))

	f.onRun = func() { clock.Advance(5 * time.Millisecond) }
	require.NoError(t, l.Tick())
	assert.Zero(t, l.Overruns())

	f.onRun = func() { clock.Advance(35 * time.Millisecond) }
	require.NoError(t, l.Tick())
	assert.Equal(t, int64(1), l.Overruns())
	assert.Equal(t, int64(2), l.Ticks())
}

func TestLoop_Tick_ReturnsRunError(t *testing.T) {
	want := errors.New("nested run")
	l := New(&fakeScheduler{err: want}, DefaultConfig(), discardLogger())

	assert.ErrorIs(t, l.Tick(), want)
}

func TestLoop_Start_MaxTicks(t *testing.T) {
	f := &fakeScheduler{err: errors.New("logged, not fatal")}
	l := New(f, Config{Period: time.Millisecond, MaxTicks: 5}, discardLogger(), WithMode(Teleop))

	require.NoError(t, l.Start(context.Background()))
	assert.Equal(t, 5, f.Runs())
	assert.NoError(t, l.Stop())
}

func TestLoop_Start_StopAndContext(t *testing.T) {
	t.Run("stop", func(t *testing.T) {
		f := &fakeScheduler{}
		l := New(f, Config{Period: time.Millisecond}, discardLogger())

		done := make(chan error, 1)
		go func() { done <- l.Start(context.Background()) }()
		require.Eventually(t, func() bool { return f.Runs() >= 3 }, 2*time.Second, time.Millisecond)

		require.NoError(t, l.Stop())
		assert.NoError(t, <-done)
		require.NoError(t, l.Stop(), "stop is idempotent")
	})

	t.Run("context", func(t *testing.T) {
		l := New(&fakeScheduler{}, Config{Period: time.Millisecond}, discardLogger())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, l.Start(ctx), context.Canceled)
		assert.Error(t, l.Start(context.Background()), "a loop starts once")
	})

	t.Run("stop before start", func(t *testing.T) {
		l := New(&fakeScheduler{}, DefaultConfig(), discardLogger())
		assert.NoError(t, l.Stop())
	})
}

func TestLoop_WithScheduler_ModeChangeInterruptsCommands(t *testing.T) {
	s := scheduler.New(scheduler.WithLogger(discardLogger()))
	l := New(s, DefaultConfig(), discardLogger(), WithMode(Autonomous))
	auto := testutil.NewProbe("auto-path")

	s.AddCommand(auto)
	require.NoError(t, l.Tick())
	require.True(t, s.IsRunning(auto))

	l.SetMode(Disabled)
	require.NoError(t, l.Tick())
	assert.False(t, s.IsRunning(auto))
	assert.Equal(t, []bool{true}, auto.Interrupts())
	assert.False(t, s.Enabled())
	assert.Equal(t, int64(1), s.Tick(), "disabled scheduler does not advance")

	l.SetMode(Teleop)
	require.NoError(t, l.Tick())
	assert.True(t, s.Enabled())
	assert.Equal(t, int64(2), s.Tick())
}
