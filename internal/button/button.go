// Package button binds operator inputs to commands.
//
// A Button samples a Trigger once per tick and, on the edges selected by its
// Mode, stages requests on a Target (normally the scheduler). Buttons never
// admit or remove commands directly: every action lands in the next tick's
// request batch.
package button

import (
	"fmt"

	"github.com/roach88/cmdsched/internal/command"
)

// Trigger reports whether the input is currently active.
type Trigger func() bool

// Target receives the requests a button stages. *scheduler.Scheduler
// satisfies it.
type Target interface {
	AddCommand(c command.Command)
	Cancel(c command.Command)
	IsScheduled(c command.Command) bool
}

// Mode selects which edges of the trigger act on the command.
type Mode int

const (
	// OnPress adds the command on a false to true transition.
	OnPress Mode = iota + 1
	// OnRelease adds the command on a true to false transition.
	OnRelease
	// WhileHeld adds the command on press and cancels it on release.
	WhileHeld
	// Toggle cancels the command on press if it is scheduled, otherwise adds it.
	Toggle
)

// String returns the mode's config name.
func (m Mode) String() string {
	switch m {
	case OnPress:
		return "on_press"
	case OnRelease:
		return "on_release"
	case WhileHeld:
		return "while_held"
	case Toggle:
		return "toggle"
	default:
		return "unknown"
	}
}

// ParseMode converts a config name back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "on_press":
		return OnPress, nil
	case "on_release":
		return OnRelease, nil
	case "while_held":
		return WhileHeld, nil
	case "toggle":
		return Toggle, nil
	default:
		return 0, fmt.Errorf("unknown button mode %q", s)
	}
}

// edge is the tri-state previous trigger value.
type edge int

const (
	edgeUnset edge = iota
	edgeLow
	edgeHigh
)

// Button is an edge-triggered binding between a Trigger and a command.
//
// Poll and Reset are called from the tick goroutine only.
type Button struct {
	name    string
	trigger Trigger
	mode    Mode
	cmd     command.Command
	target  Target
	prev    edge
}

// New creates a button. The first poll after New (or Reset) only records the
// trigger value, so an input that is already held does not fire.
func New(name string, trigger Trigger, mode Mode, cmd command.Command, target Target) *Button {
	return &Button{
		name:    name,
		trigger: trigger,
		mode:    mode,
		cmd:     cmd,
		target:  target,
	}
}

// Name returns the button's diagnostic name.
func (b *Button) Name() string {
	return b.name
}

// Mode returns the activation mode.
func (b *Button) Mode() Mode {
	return b.mode
}

// Command returns the bound command.
func (b *Button) Command() command.Command {
	return b.cmd
}

// Poll samples the trigger once and stages the action for any edge.
func (b *Button) Poll() {
	cur := b.trigger()
	prev := b.prev
	if cur {
		b.prev = edgeHigh
	} else {
		b.prev = edgeLow
	}

	if prev == edgeUnset {
		return
	}
	pressed := prev == edgeLow && cur
	released := prev == edgeHigh && !cur

	switch b.mode {
	case OnPress:
		if pressed {
			b.target.AddCommand(b.cmd)
		}
	case OnRelease:
		if released {
			b.target.AddCommand(b.cmd)
		}
	case WhileHeld:
		if pressed {
			b.target.AddCommand(b.cmd)
		} else if released {
			b.target.Cancel(b.cmd)
		}
	case Toggle:
		if !pressed {
			return
		}
		if b.target.IsScheduled(b.cmd) {
			b.target.Cancel(b.cmd)
		} else {
			b.target.AddCommand(b.cmd)
		}
	}
}

// Reset forgets the previous trigger value.
func (b *Button) Reset() {
	b.prev = edgeUnset
}

// Sequence returns a Trigger that replays values, one per call. Once the
// values run out the last one is held; an empty sequence is always false.
func Sequence(values ...bool) Trigger {
	i := 0
	return func() bool {
		if len(values) == 0 {
			return false
		}
		v := values[min(i, len(values)-1)]
		i++
		return v
	}
}
