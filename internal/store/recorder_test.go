package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cmdsched/internal/command"
	"github.com/roach88/cmdsched/internal/scheduler"
	"github.com/roach88/cmdsched/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func closeRecorder(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func TestRecorder_PersistsSchedulerRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s, "run")
	rec := NewRecorder(s, sess.ID, 64, discardLogger())

	sched := scheduler.New(
		scheduler.WithLogger(discardLogger()),
		scheduler.WithSink(rec),
		scheduler.WithPublisher(rec),
	)
	arm := command.NewSubsystem("arm")
	hold := testutil.NewProbe("hold", testutil.Requiring(arm))
	raise := testutil.NewProbe("raise", testutil.Requiring(arm), testutil.FinishAfter(1))

	sched.AddCommand(hold)
	require.NoError(t, sched.Run())
	require.NoError(t, sched.Run())
	sched.AddCommand(raise)
	require.NoError(t, sched.Run())
	require.NoError(t, sched.Run())
	closeRecorder(t, rec)

	events, err := s.ReadEvents(ctx, sess.ID, EventFilter{})
	require.NoError(t, err)
	var got []string
	for _, ev := range events {
		got = append(got, string(ev.Kind)+":"+ev.Command)
	}
	assert.Equal(t, []string{"admitted:hold", "preempted:hold", "admitted:raise", "finished:raise"}, got)

	// Ticks 1 and 2 share a running set; tick 3 empties it; tick 4 is unchanged.
	snaps, err := s.ReadSnapshots(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(1), snaps[0].Tick)
	assert.Equal(t, int64(3), snaps[1].Tick)

	last, err := snaps[1].Decode()
	require.NoError(t, err)
	assert.Equal(t, int64(3), last.Tick)
	assert.Empty(t, last.Commands)

	assert.Zero(t, rec.Dropped())
	assert.Zero(t, rec.Failed())
}

func TestRecorder_AfterCloseDrops(t *testing.T) {
	s := createTestStore(t)
	sess := createTestSession(t, s, "run")
	rec := NewRecorder(s, sess.ID, 4, discardLogger())

	closeRecorder(t, rec)
	closeRecorder(t, rec) // second close is a no-op

	rec.Record(createTestEvent(1, 1, scheduler.EventAdmitted, "late"))
	err := rec.Publish(scheduler.Snapshot{Tick: 1})

	assert.ErrorIs(t, err, ErrRecorderFull)
	assert.Equal(t, int64(2), rec.Dropped())

	events, err := s.ReadEvents(context.Background(), sess.ID, EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRecorder_WriteFailuresCounted(t *testing.T) {
	s := createTestStore(t)
	// No such session: the foreign key rejects every write.
	rec := NewRecorder(s, "missing", 8, discardLogger())

	rec.Record(createTestEvent(1, 1, scheduler.EventAdmitted, "a"))
	require.NoError(t, rec.Publish(scheduler.Snapshot{Tick: 1}))
	closeRecorder(t, rec)

	assert.Equal(t, int64(2), rec.Failed())
}

func TestRecorder_CloseHonorsContext(t *testing.T) {
	s := createTestStore(t)
	sess := createTestSession(t, s, "run")
	rec := NewRecorder(s, sess.ID, 8, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Either the writer already finished or the canceled context wins.
	err := rec.Close(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	closeRecorder(t, rec)
}
