// Package store provides SQLite-backed durable storage for scheduler runs.
//
// The store is an append-only log with:
//   - Sessions: one per recorded run, identified by a UUIDv7
//   - Events: the scheduler's lifecycle trace
//   - Snapshots: CBOR-encoded running sets, written when the set changes
//
// # Ordering
//
// Events are ordered by seq, the scheduler's logical clock, never by wall
// time. Every read uses ORDER BY seq ASC (events) or ORDER BY tick ASC
// (snapshots) so that a recorded run reads back identically every time.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// The scheduler never writes here directly. A Recorder is plugged in as an
// event sink and telemetry publisher and writes from its own goroutine, so
// the control loop is never blocked on disk.
package store
