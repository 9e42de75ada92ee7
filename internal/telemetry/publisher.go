package telemetry

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/roach88/cmdsched/internal/scheduler"
)

// LogPublisher logs the running set whenever it differs from the one
// published on the previous tick. Identical consecutive snapshots are not
// logged.
type LogPublisher struct {
	logger *slog.Logger
	last   []scheduler.CommandInfo
	seen   bool
}

// NewLogPublisher creates a publisher logging at info level.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "telemetry")}
}

// Publish implements scheduler.Publisher.
func (p *LogPublisher) Publish(snap scheduler.Snapshot) error {
	if p.seen && slices.Equal(p.last, snap.Commands) {
		return nil
	}
	p.seen = true
	p.last = slices.Clone(snap.Commands)

	names := make([]string, len(snap.Commands))
	for i, c := range snap.Commands {
		names[i] = c.Name
	}
	p.logger.Info("running commands changed", "tick", snap.Tick, "commands", names)
	return nil
}

// Fanout publishes every snapshot to each publisher in order. A failing
// publisher does not stop the others; their errors are joined.
type Fanout []scheduler.Publisher

// Publish implements scheduler.Publisher.
func (f Fanout) Publish(snap scheduler.Snapshot) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
