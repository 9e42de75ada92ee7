package command

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrMisconfigured is wrapped by every default-command assignment error.
var ErrMisconfigured = errors.New("misconfigured default command")

var (
	// ErrDefaultMissingRequirement is returned when a default command does
	// not require the subsystem it is assigned to.
	ErrDefaultMissingRequirement = fmt.Errorf("%w: command does not require the subsystem", ErrMisconfigured)

	// ErrDefaultExceedsSubsystem is returned when, after ticking has
	// started, a default command requires more than its own subsystem.
	ErrDefaultExceedsSubsystem = fmt.Errorf("%w: command requires subsystems beyond its owner", ErrMisconfigured)
)

// Subsystem is a named, exclusive hardware resource. Identity is the
// pointer; the name is for diagnostics only.
//
// Which command currently holds a Subsystem is tracked by the scheduler,
// not here. The Subsystem only knows its default command.
type Subsystem struct {
	name   string
	sealed atomic.Bool

	mu         sync.Mutex
	defaultCmd Command
}

// NewSubsystem creates a subsystem with the given diagnostic name.
func NewSubsystem(name string) *Subsystem {
	return &Subsystem{name: name}
}

// Name returns the diagnostic name.
func (s *Subsystem) Name() string {
	return s.name
}

// String implements fmt.Stringer.
func (s *Subsystem) String() string {
	return s.name
}

// DefaultCommand returns the command run whenever the subsystem is idle,
// or nil.
func (s *Subsystem) DefaultCommand() Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultCmd
}

// SetDefaultCommand assigns the command the scheduler falls back to when no
// other command holds the subsystem. Passing nil clears it.
//
// The command must require this subsystem. Once the scheduler has started
// ticking, its requirements must be exactly this subsystem so that an idle
// fallback can never starve a subsystem it does not own.
func (s *Subsystem) SetDefaultCommand(c Command) error {
	if c == nil {
		s.mu.Lock()
		s.defaultCmd = nil
		s.mu.Unlock()
		return nil
	}

	if !Requires(c, s) {
		return fmt.Errorf("subsystem %s, command %s: %w", s.name, c.Name(), ErrDefaultMissingRequirement)
	}
	if s.sealed.Load() {
		for _, r := range c.Requirements() {
			if r != s {
				return fmt.Errorf("subsystem %s, command %s: %w", s.name, c.Name(), ErrDefaultExceedsSubsystem)
			}
		}
	}

	s.mu.Lock()
	s.defaultCmd = c
	s.mu.Unlock()
	return nil
}

// Seal marks the subsystem as live. The scheduler calls it on every
// registered subsystem when it runs its first tick; afterwards default
// commands are restricted to this subsystem alone.
func (s *Subsystem) Seal() {
	s.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (s *Subsystem) Sealed() bool {
	return s.sealed.Load()
}
