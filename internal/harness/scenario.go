package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cmdsched/internal/scheduler"
	"github.com/roach88/cmdsched/internal/scripted"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Robot declares the subsystems, commands and buttons under test.
	Robot scripted.Robot `yaml:"robot"`

	// Steps are the requests made between frames.
	Steps []Step `yaml:"steps,omitempty"`

	// Ticks is the number of host frames to run.
	Ticks int `yaml:"ticks"`

	// Assertions validate the trace and the per-frame running sets.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is a batch of requests applied before the scheduler pass of Tick.
// Within a step the order is: enabled, reset_all, remove, cancel, add.
type Step struct {
	Tick     int      `yaml:"tick"`
	Add      []string `yaml:"add,omitempty"`
	Cancel   []string `yaml:"cancel,omitempty"`
	Remove   []string `yaml:"remove,omitempty"`
	ResetAll bool     `yaml:"reset_all,omitempty"`

	// Enabled switches the scheduler on or off when set.
	Enabled *bool `yaml:"enabled,omitempty"`
}

// Assertion validates the trace or the running sets.
type Assertion struct {
	// Type is one of running_at, trace_contains, trace_order,
	// trace_count or never_conflicts.
	Type string `yaml:"type"`

	// Tick is the frame inspected by running_at.
	Tick int `yaml:"tick,omitempty"`

	// Commands is the expected running set for running_at. An empty list
	// asserts nothing is running.
	Commands []string `yaml:"commands,omitempty"`

	// Kind is the event kind for trace_contains and trace_count.
	Kind string `yaml:"kind,omitempty"`

	// Command narrows trace_contains and trace_count to one command.
	Command string `yaml:"command,omitempty"`

	// Count is the expected number of matches for trace_count.
	Count int `yaml:"count,omitempty"`

	// Events lists kind:command pairs for trace_order.
	Events []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertRunningAt      = "running_at"
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertNeverConflicts = "never_conflicts"
)

var eventKinds = []scheduler.EventKind{
	scheduler.EventAdmitted,
	scheduler.EventRejected,
	scheduler.EventPreempted,
	scheduler.EventFinished,
	scheduler.EventCanceled,
	scheduler.EventCallbackFailed,
	scheduler.EventReentrantRun,
	scheduler.EventTelemetryFailed,
	scheduler.EventMisconfigured,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Ticks < 1 {
		return fmt.Errorf("ticks must be at least 1")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if err := s.Robot.Validate(); err != nil {
		return fmt.Errorf("robot: %w", err)
	}

	known := make(map[string]bool, len(s.Robot.Commands))
	for _, c := range s.Robot.Commands {
		known[c.Name] = true
	}

	for i, step := range s.Steps {
		if step.Tick < 1 || step.Tick > s.Ticks {
			return fmt.Errorf("steps[%d]: tick %d outside 1..%d", i, step.Tick, s.Ticks)
		}
		for _, name := range slices.Concat(step.Add, step.Cancel, step.Remove) {
			if !known[name] {
				return fmt.Errorf("steps[%d]: unknown command %q", i, name)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, s.Ticks); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, ticks int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRunningAt:
		if a.Tick < 1 || a.Tick > ticks {
			return fmt.Errorf("assertions[%d]: tick %d outside 1..%d for running_at", index, a.Tick, ticks)
		}
	case AssertTraceContains, AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for %s", index, a.Type)
		}
		if !slices.Contains(eventKinds, scheduler.EventKind(a.Kind)) {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
		for _, ev := range a.Events {
			kind, _, ok := strings.Cut(ev, ":")
			if !ok || !slices.Contains(eventKinds, scheduler.EventKind(kind)) {
				return fmt.Errorf("assertions[%d]: event %q is not kind:command", index, ev)
			}
		}
	case AssertNeverConflicts:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
