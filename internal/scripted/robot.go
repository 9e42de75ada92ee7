// Package scripted builds subsystems, commands and buttons from a
// declarative robot description.
//
// Scripted commands stand in for real robot behavior in scenarios and in
// the demo host: they hold subsystems, run for a fixed number of ticks and
// may schedule or cancel peers, which is enough to exercise every
// scheduling rule without hardware.
package scripted

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"github.com/roach88/cmdsched/internal/button"
	"gopkg.in/yaml.v3"
)

// Robot describes a robot's subsystems, commands and operator bindings.
type Robot struct {
	Subsystems []SubsystemSpec `yaml:"subsystems"`
	Commands   []CommandSpec   `yaml:"commands"`
	Buttons    []ButtonSpec    `yaml:"buttons,omitempty"`
}

// SubsystemSpec declares a subsystem and, optionally, its default command.
type SubsystemSpec struct {
	Name    string `yaml:"name"`
	Default string `yaml:"default,omitempty"`
}

// CommandSpec declares a scripted command.
type CommandSpec struct {
	Name     string   `yaml:"name"`
	Requires []string `yaml:"requires,omitempty"`

	// Interruptible defaults to true.
	Interruptible *bool `yaml:"interruptible,omitempty"`

	// FinishAfter is the number of Execute calls before IsFinished reports
	// true. Zero runs until interrupted.
	FinishAfter int `yaml:"finish_after,omitempty"`

	// Schedules names commands added on the first Execute after admission.
	Schedules []string `yaml:"schedules,omitempty"`

	// Cancels names commands canceled on the first Execute after admission.
	Cancels []string `yaml:"cancels,omitempty"`

	// PanicIn makes one callback panic: initialize, execute, is_finished
	// or end.
	PanicIn string `yaml:"panic_in,omitempty"`
}

// ButtonSpec binds a replayed input pattern to a command.
type ButtonSpec struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode"`
	Command string `yaml:"command"`

	// Pattern is the trigger value per tick, starting at tick 1. The last
	// value is held.
	Pattern []bool `yaml:"pattern"`
}

var panicPhases = []string{"", PanicInitialize, PanicExecute, PanicIsFinished, PanicEnd}

// Callback names accepted by CommandSpec.PanicIn.
const (
	PanicInitialize = "initialize"
	PanicExecute    = "execute"
	PanicIsFinished = "is_finished"
	PanicEnd        = "end"
)

// Validate checks names are unique and every reference resolves.
func (r *Robot) Validate() error {
	subs := make(map[string]bool, len(r.Subsystems))
	for i, s := range r.Subsystems {
		if s.Name == "" {
			return fmt.Errorf("subsystems[%d]: name is required", i)
		}
		if subs[s.Name] {
			return fmt.Errorf("subsystems[%d]: duplicate subsystem %q", i, s.Name)
		}
		subs[s.Name] = true
	}

	cmds := make(map[string]bool, len(r.Commands))
	for i, c := range r.Commands {
		if c.Name == "" {
			return fmt.Errorf("commands[%d]: name is required", i)
		}
		if cmds[c.Name] {
			return fmt.Errorf("commands[%d]: duplicate command %q", i, c.Name)
		}
		cmds[c.Name] = true
	}

	for i, c := range r.Commands {
		for _, req := range c.Requires {
			if !subs[req] {
				return fmt.Errorf("commands[%d] %s: unknown subsystem %q", i, c.Name, req)
			}
		}
		for _, peer := range slices.Concat(c.Schedules, c.Cancels) {
			if !cmds[peer] {
				return fmt.Errorf("commands[%d] %s: unknown command %q", i, c.Name, peer)
			}
		}
		if c.FinishAfter < 0 {
			return fmt.Errorf("commands[%d] %s: finish_after must be non-negative", i, c.Name)
		}
		if !slices.Contains(panicPhases, c.PanicIn) {
			return fmt.Errorf("commands[%d] %s: unknown panic_in %q", i, c.Name, c.PanicIn)
		}
	}

	for i, s := range r.Subsystems {
		if s.Default != "" && !cmds[s.Default] {
			return fmt.Errorf("subsystems[%d] %s: unknown default command %q", i, s.Name, s.Default)
		}
	}

	btns := make(map[string]bool, len(r.Buttons))
	for i, b := range r.Buttons {
		if b.Name == "" {
			return fmt.Errorf("buttons[%d]: name is required", i)
		}
		if btns[b.Name] {
			return fmt.Errorf("buttons[%d]: duplicate button %q", i, b.Name)
		}
		btns[b.Name] = true
		if _, err := button.ParseMode(b.Mode); err != nil {
			return fmt.Errorf("buttons[%d] %s: %w", i, b.Name, err)
		}
		if !cmds[b.Command] {
			return fmt.Errorf("buttons[%d] %s: unknown command %q", i, b.Name, b.Command)
		}
		if len(b.Pattern) == 0 {
			return fmt.Errorf("buttons[%d] %s: pattern is required", i, b.Name)
		}
	}
	return nil
}

// LoadRobot reads a robot description from a YAML file. Unknown fields are
// rejected.
func LoadRobot(path string) (*Robot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read robot: %w", err)
	}
	return ParseRobot(data)
}

// ParseRobot decodes and validates a YAML robot description.
func ParseRobot(data []byte) (*Robot, error) {
	var r Robot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("parse robot: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid robot: %w", err)
	}
	return &r, nil
}
