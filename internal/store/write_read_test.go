package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cmdsched/internal/scheduler"
)

func TestCreateSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sess := createTestSession(t, s, "practice")

	id, err := uuid.Parse(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	got, err := s.ReadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, got)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), got.StartedAt)
}

func TestReadSession_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadSession(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = s.LatestSession(context.Background())
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestListSessions_CreationOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	first := createTestSession(t, s, "first")
	second := createTestSession(t, s, "second")
	third := createTestSession(t, s, "third")

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID},
		[]string{sessions[0].ID, sessions[1].ID, sessions[2].ID})

	latest, err := s.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, third.ID, latest.ID)
}

func TestWriteEvents_ReadBackOrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s, "run")

	// Written out of order across two batches.
	require.NoError(t, s.WriteEvents(ctx, sess.ID, []scheduler.Event{
		createTestEvent(3, 2, scheduler.EventPreempted, "hold"),
		createTestEvent(1, 1, scheduler.EventAdmitted, "hold"),
	}))
	require.NoError(t, s.WriteEvents(ctx, sess.ID, []scheduler.Event{
		{Seq: 2, Tick: 2, Kind: scheduler.EventRejected, CommandID: 2, Command: "stow", Subsystem: "arm", Detail: "held by hold"},
	}))

	events, err := s.ReadEvents(ctx, sess.ID, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{events[0].Seq, events[1].Seq, events[2].Seq})
	assert.Equal(t, scheduler.Event{
		Seq: 2, Tick: 2, Kind: scheduler.EventRejected, CommandID: 2, Command: "stow", Subsystem: "arm", Detail: "held by hold",
	}, events[1])
}

func TestWriteEvents_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s, "run")

	ev := createTestEvent(1, 1, scheduler.EventAdmitted, "a")
	require.NoError(t, s.WriteEvents(ctx, sess.ID, []scheduler.Event{ev}))
	require.NoError(t, s.WriteEvents(ctx, sess.ID, []scheduler.Event{ev}))
	require.NoError(t, s.WriteEvents(ctx, sess.ID, nil))

	events, err := s.ReadEvents(ctx, sess.ID, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWriteEvents_UnknownSession(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteEvents(context.Background(), "missing", []scheduler.Event{createTestEvent(1, 1, scheduler.EventAdmitted, "a")})
	assert.Error(t, err)
}

func TestReadEvents_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s, "run")
	other := createTestSession(t, s, "other")

	require.NoError(t, s.WriteEvents(ctx, sess.ID, []scheduler.Event{
		createTestEvent(1, 1, scheduler.EventAdmitted, "a"),
		createTestEvent(2, 1, scheduler.EventAdmitted, "b"),
		createTestEvent(3, 2, scheduler.EventFinished, "a"),
	}))
	require.NoError(t, s.WriteEvents(ctx, other.ID, []scheduler.Event{
		createTestEvent(1, 1, scheduler.EventAdmitted, "a"),
	}))

	byCommand, err := s.ReadEvents(ctx, sess.ID, EventFilter{Command: "a"})
	require.NoError(t, err)
	assert.Len(t, byCommand, 2)

	byKind, err := s.ReadEvents(ctx, sess.ID, EventFilter{Kind: scheduler.EventAdmitted})
	require.NoError(t, err)
	assert.Len(t, byKind, 2)

	both, err := s.ReadEvents(ctx, sess.ID, EventFilter{Command: "a", Kind: scheduler.EventFinished})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, int64(3), both[0].Seq)

	none, err := s.ReadEvents(ctx, sess.ID, EventFilter{Command: "zzz"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestWriteSnapshot_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s, "run")

	later := scheduler.Snapshot{Tick: 9, Commands: []scheduler.CommandInfo{{ID: 2, Name: "b"}}}
	earlier := scheduler.Snapshot{Tick: 4, Commands: []scheduler.CommandInfo{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}}
	require.NoError(t, s.WriteSnapshot(ctx, sess.ID, later))
	require.NoError(t, s.WriteSnapshot(ctx, sess.ID, earlier))
	require.NoError(t, s.WriteSnapshot(ctx, sess.ID, scheduler.Snapshot{Tick: 9}), "duplicate tick ignored")

	stored, err := s.ReadSnapshots(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(4), stored[0].Tick)

	first, err := stored[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, earlier, first)
	second, err := stored[1].Decode()
	require.NoError(t, err)
	assert.Equal(t, later, second)
}

func TestStoredSnapshot_DecodeGarbage(t *testing.T) {
	_, err := StoredSnapshot{Tick: 1, Payload: []byte{0xff}}.Decode()
	assert.Error(t, err)
}
