package scripted

import (
	"fmt"
	"sort"

	"github.com/roach88/cmdsched/internal/button"
	"github.com/roach88/cmdsched/internal/command"
	"github.com/roach88/cmdsched/internal/scheduler"
)

// Host is the scheduler surface Build wires into. *scheduler.Scheduler
// satisfies it.
type Host interface {
	button.Target
	RegisterSubsystem(sub *command.Subsystem)
	SetDefaultCommand(sub *command.Subsystem, c command.Command) error
	AddButton(b scheduler.Button)
}

var _ Host = (*scheduler.Scheduler)(nil)

// World holds the objects built from a Robot, addressable by name.
type World struct {
	subsystems map[string]*command.Subsystem
	commands   map[string]*Command
	buttons    []*button.Button
}

// Build validates robot, creates its subsystems, commands and buttons and
// registers them with host. Default commands are assigned through host so
// a rejected assignment is recorded like any other misconfiguration.
func Build(robot *Robot, host Host) (*World, error) {
	if err := robot.Validate(); err != nil {
		return nil, fmt.Errorf("invalid robot: %w", err)
	}

	w := &World{
		subsystems: make(map[string]*command.Subsystem, len(robot.Subsystems)),
		commands:   make(map[string]*Command, len(robot.Commands)),
	}

	for _, s := range robot.Subsystems {
		sub := command.NewSubsystem(s.Name)
		w.subsystems[s.Name] = sub
		host.RegisterSubsystem(sub)
	}

	for _, spec := range robot.Commands {
		c := newCommand(spec, host)
		for _, req := range spec.Requires {
			c.Requires(w.subsystems[req])
		}
		w.commands[spec.Name] = c
	}
	for _, spec := range robot.Commands {
		c := w.commands[spec.Name]
		for _, name := range spec.Schedules {
			c.starts = append(c.starts, w.commands[name])
		}
		for _, name := range spec.Cancels {
			c.stops = append(c.stops, w.commands[name])
		}
	}

	for _, s := range robot.Subsystems {
		if s.Default == "" {
			continue
		}
		if err := host.SetDefaultCommand(w.subsystems[s.Name], w.commands[s.Default]); err != nil {
			return nil, fmt.Errorf("subsystem %s: %w", s.Name, err)
		}
	}

	for _, b := range robot.Buttons {
		mode, _ := button.ParseMode(b.Mode)
		btn := button.New(b.Name, button.Sequence(b.Pattern...), mode, w.commands[b.Command], host)
		w.buttons = append(w.buttons, btn)
		host.AddButton(btn)
	}

	return w, nil
}

// Command returns the named command, or nil.
func (w *World) Command(name string) *Command {
	return w.commands[name]
}

// Subsystem returns the named subsystem, or nil.
func (w *World) Subsystem(name string) *command.Subsystem {
	return w.subsystems[name]
}

// Buttons returns the buttons in registration order.
func (w *World) Buttons() []*button.Button {
	return append([]*button.Button(nil), w.buttons...)
}

// CommandNames returns every command name, sorted.
func (w *World) CommandNames() []string {
	names := make([]string, 0, len(w.commands))
	for name := range w.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves names to commands, failing on the first unknown name.
func (w *World) Lookup(names ...string) ([]command.Command, error) {
	out := make([]command.Command, 0, len(names))
	for _, name := range names {
		c, ok := w.commands[name]
		if !ok {
			return nil, fmt.Errorf("unknown command %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}
