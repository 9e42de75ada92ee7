package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/cmdsched/internal/scheduler"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string            // Assertion type for categorization
	Expected string            // Human-readable expected outcome
	Actual   string            // Human-readable actual outcome
	Trace    []scheduler.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] tick %d %s %s\n", ev.Seq, ev.Tick, ev.Kind, ev.Command)
		}
	}

	return buf.String()
}

// matches reports whether ev has the given kind and, when command is set,
// that command name.
func matches(ev scheduler.Event, kind, command string) bool {
	return string(ev.Kind) == kind && (command == "" || ev.Command == command)
}

func describe(kind, command string) string {
	if command == "" {
		return kind
	}
	return kind + ":" + command
}

// assertRunningAt compares the running set after a frame, order included.
func assertRunningAt(result *Result, assertion Assertion) error {
	if assertion.Tick < 1 || assertion.Tick > len(result.Frames) {
		return &AssertionError{
			Type:     AssertRunningAt,
			Expected: fmt.Sprintf("frame %d", assertion.Tick),
			Actual:   fmt.Sprintf("only %d frames ran", len(result.Frames)),
		}
	}
	actual := result.RunningAt(assertion.Tick)
	expected := assertion.Commands
	if expected == nil {
		expected = []string{}
	}
	if slices.Equal(actual, expected) {
		return nil
	}
	return &AssertionError{
		Type:     AssertRunningAt,
		Expected: fmt.Sprintf("tick %d running %v", assertion.Tick, expected),
		Actual:   fmt.Sprintf("%v", actual),
		Trace:    result.Trace,
	}
}

// assertTraceContains checks that some event matches kind and command.
func assertTraceContains(trace []scheduler.Event, assertion Assertion) error {
	for _, ev := range trace {
		if matches(ev, assertion.Kind, assertion.Command) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(assertion.Kind, assertion.Command),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the listed events appear as a subsequence
// of the trace. Intervening events are allowed.
func assertTraceOrder(trace []scheduler.Event, assertion Assertion) error {
	next := 0
	for _, ev := range trace {
		if next == len(assertion.Events) {
			break
		}
		kind, cmd, _ := strings.Cut(assertion.Events[next], ":")
		if matches(ev, kind, cmd) {
			next++
		}
	}
	if next == len(assertion.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("events in order: %v", assertion.Events),
		Actual:   fmt.Sprintf("no %s after %v", assertion.Events[next], assertion.Events[:next]),
		Trace:    trace,
	}
}

// assertTraceCount checks the exact number of matching events.
func assertTraceCount(trace []scheduler.Event, assertion Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, assertion.Kind, assertion.Command) {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s exactly %d times", describe(assertion.Kind, assertion.Command), assertion.Count),
		Actual:   fmt.Sprintf("%d times", count),
		Trace:    trace,
	}
}

func assertNeverConflicts(result *Result) error {
	if len(result.Conflicts) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNeverConflicts,
		Expected: "no subsystem held by two running commands",
		Actual:   strings.Join(result.Conflicts, "; "),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRunningAt:
			err = assertRunningAt(result, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertNeverConflicts:
			err = assertNeverConflicts(result)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
