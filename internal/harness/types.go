package harness

import "github.com/roach88/cmdsched/internal/scheduler"

// Frame is the running set observed after one host frame.
type Frame struct {
	Tick     int      `json:"tick"`
	Commands []string `json:"commands"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace is the lifecycle trace read back from the session store.
	Trace []scheduler.Event `json:"trace"`

	// Frames holds the running set after every frame, starting at tick 1.
	Frames []Frame `json:"frames"`

	// Conflicts describes every frame where two running commands shared a
	// subsystem. Always empty for a correct scheduler.
	Conflicts []string `json:"conflicts,omitempty"`

	// Snapshots is the number of telemetry snapshots the recorder stored.
	Snapshots int `json:"snapshots"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []scheduler.Event{},
		Frames: []Frame{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// RunningAt returns the running set after frame tick, or nil when the
// frame was never run.
func (r *Result) RunningAt(tick int) []string {
	if tick < 1 || tick > len(r.Frames) {
		return nil
	}
	return r.Frames[tick-1].Commands
}
