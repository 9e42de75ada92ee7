package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/cmdsched/internal/codec"
	"github.com/roach88/cmdsched/internal/scheduler"
)

// Session is one recorded scheduler run.
type Session struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Scheduler string    `json:"scheduler"`
	StartedAt time.Time `json:"started_at"`
}

// CreateSession inserts a new session with a fresh UUIDv7 id. UUIDv7 ids
// sort by creation time, so ListSessions returns runs oldest first.
func (s *Store) CreateSession(ctx context.Context, label, schedulerName string, startedAt time.Time) (Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("create session: generate id: %w", err)
	}

	sess := Session{
		ID:        id.String(),
		Label:     label,
		Scheduler: schedulerName,
		StartedAt: startedAt.UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, label, scheduler, started_at)
		VALUES (?, ?, ?, ?)
	`,
		sess.ID,
		sess.Label,
		sess.Scheduler,
		sess.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// WriteEvents appends events to a session in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency: an event whose seq is
// already stored for the session is silently ignored.
//
// Note: the session must exist (foreign key constraint).
func (s *Store) WriteEvents(ctx context.Context, sessionID string, events []scheduler.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(session_id, seq, tick, kind, command_id, command, subsystem, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			sessionID,
			ev.Seq,
			ev.Tick,
			string(ev.Kind),
			ev.CommandID,
			ev.Command,
			ev.Subsystem,
			ev.Detail,
		); err != nil {
			return fmt.Errorf("write events: seq %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}

// WriteSnapshot stores the CBOR encoding of snap for its tick.
// A second snapshot for the same tick is silently ignored.
func (s *Store) WriteSnapshot(ctx context.Context, sessionID string, snap scheduler.Snapshot) error {
	payload, err := codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("write snapshot: encode: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, tick, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id, tick) DO NOTHING
	`, sessionID, snap.Tick, payload)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
