package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cmdsched/internal/codec"
	"github.com/roach88/cmdsched/internal/scheduler"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// EventFilter narrows ReadEvents. Zero fields match everything.
type EventFilter struct {
	Command string
	Kind    scheduler.EventKind
}

// StoredSnapshot is a persisted snapshot payload.
type StoredSnapshot struct {
	Tick    int64
	Payload []byte
}

// Decode unmarshals the CBOR payload.
func (s StoredSnapshot) Decode() (scheduler.Snapshot, error) {
	var snap scheduler.Snapshot
	if err := codec.Unmarshal(s.Payload, &snap); err != nil {
		return scheduler.Snapshot{}, fmt.Errorf("decode snapshot at tick %d: %w", s.Tick, err)
	}
	return snap, nil
}

// ListSessions returns every session ordered by id. Ids are UUIDv7, so
// this is creation order.
//
// Returns an empty slice (not nil) if there are no sessions.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, scheduler, started_at
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession returns one session. Returns ErrSessionNotFound if the id
// is unknown.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, scheduler, started_at
		FROM sessions
		WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, err
}

// LatestSession returns the most recently created session.
// Returns ErrSessionNotFound if the store is empty.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, scheduler, started_at
		FROM sessions
		ORDER BY id COLLATE BINARY DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return sess, err
}

// ReadEvents returns a session's events ordered by seq.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, sessionID string, filter EventFilter) ([]scheduler.Event, error) {
	var (
		where = []string{"session_id = ?"}
		args  = []any{sessionID}
	)
	if filter.Command != "" {
		where = append(where, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tick, kind, command_id, command, subsystem, detail
		FROM events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []scheduler.Event{}
	for rows.Next() {
		var (
			ev   scheduler.Event
			kind string
		)
		if err := rows.Scan(&ev.Seq, &ev.Tick, &kind, &ev.CommandID, &ev.Command, &ev.Subsystem, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = scheduler.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadSnapshots returns a session's stored snapshots ordered by tick.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadSnapshots(ctx context.Context, sessionID string) ([]StoredSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, payload
		FROM snapshots
		WHERE session_id = ?
		ORDER BY tick ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []StoredSnapshot{}
	for rows.Next() {
		var snap StoredSnapshot
		if err := rows.Scan(&snap.Tick, &snap.Payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess      Session
		startedAt string
	)
	if err := row.Scan(&sess.ID, &sess.Label, &sess.Scheduler, &startedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse started_at of session %s: %w", sess.ID, err)
	}
	sess.StartedAt = t
	return sess, nil
}
