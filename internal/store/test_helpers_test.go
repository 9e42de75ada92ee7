package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/cmdsched/internal/scheduler"
)

// createTestStore opens a store in a temp dir, closed at cleanup.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession creates a session with a fixed start time.
func createTestSession(t *testing.T, s *Store, label string) Session {
	t.Helper()
	sess, err := s.CreateSession(context.Background(), label, "Scheduler", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

// createTestEvent creates an event with the fields most tests care about.
func createTestEvent(seq, tick int64, kind scheduler.EventKind, cmd string) scheduler.Event {
	return scheduler.Event{
		Seq:       seq,
		Tick:      tick,
		Kind:      kind,
		CommandID: 1,
		Command:   cmd,
	}
}
