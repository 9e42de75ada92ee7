package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/cmdsched/internal/command"
	"github.com/roach88/cmdsched/internal/scheduler"
	"github.com/roach88/cmdsched/internal/scripted"
	"github.com/roach88/cmdsched/internal/store"
	"github.com/roach88/cmdsched/internal/testutil"
)

// recorderBuffer is large enough that no scenario ever drops an event.
const recorderBuffer = 4096

// sessionEpoch stamps every scenario session so stored rows are identical
// across runs.
var sessionEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness is the test execution engine for one scenario.
type Harness struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	world     *scripted.World
	logger    *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and session
// 2. Build the scripted robot on a new scheduler
// 3. Apply steps and run one scheduler pass per frame
// 4. Flush the recorder and read the trace back
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewManualClock(sessionEpoch)

	sess, err := st.CreateSession(ctx, scenario.Name, "Scheduler", clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	rec := store.NewRecorder(st, sess.ID, recorderBuffer, logger)
	sched := scheduler.New(
		scheduler.WithLogger(logger),
		scheduler.WithSink(rec),
		scheduler.WithPublisher(rec),
	)

	world, err := scripted.Build(&scenario.Robot, sched)
	if err != nil {
		_ = rec.Close(ctx)
		return nil, fmt.Errorf("failed to build robot: %w", err)
	}

	h := &Harness{store: st, scheduler: sched, world: world, logger: logger}

	result := NewResult()
	for tick := 1; tick <= scenario.Ticks; tick++ {
		for _, step := range scenario.Steps {
			if step.Tick == tick {
				h.applyStep(step)
			}
		}
		if err := sched.Run(); err != nil {
			_ = rec.Close(ctx)
			return nil, fmt.Errorf("tick %d: %w", tick, err)
		}
		clock.Advance(20 * time.Millisecond)

		result.Frames = append(result.Frames, Frame{Tick: tick, Commands: h.runningNames()})
		if conflict := h.findConflict(); conflict != "" {
			result.Conflicts = append(result.Conflicts, fmt.Sprintf("tick %d: %s", tick, conflict))
		}
	}

	if err := rec.Close(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush recorder: %w", err)
	}
	if n := rec.Dropped() + rec.Failed(); n > 0 {
		return nil, fmt.Errorf("recorder lost %d items", n)
	}

	result.Trace, err = st.ReadEvents(ctx, sess.ID, store.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	snaps, err := st.ReadSnapshots(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	result.Snapshots = len(snaps)

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// applyStep issues a step's requests. Names were checked when the
// scenario was loaded.
func (h *Harness) applyStep(step Step) {
	if step.Enabled != nil {
		h.scheduler.SetEnabled(*step.Enabled)
	}
	if step.ResetAll {
		h.scheduler.ResetAll()
	}
	for _, name := range step.Remove {
		h.scheduler.Remove(h.world.Command(name))
	}
	for _, name := range step.Cancel {
		h.scheduler.Cancel(h.world.Command(name))
	}
	for _, name := range step.Add {
		h.scheduler.AddCommand(h.world.Command(name))
	}
}

func (h *Harness) runningNames() []string {
	running := h.scheduler.Running()
	names := make([]string, 0, len(running))
	for _, c := range running {
		names = append(names, c.Name())
	}
	return names
}

// findConflict reports the first subsystem required by two running
// commands, or "".
func (h *Harness) findConflict() string {
	owner := make(map[*command.Subsystem]string)
	for _, c := range h.scheduler.Running() {
		for _, sub := range c.Requirements() {
			if prev, held := owner[sub]; held {
				return strings.Join([]string{prev, c.Name()}, " and ") + " both hold " + sub.Name()
			}
			owner[sub] = c.Name()
		}
	}
	return ""
}
