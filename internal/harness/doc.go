// Package harness runs scheduler conformance scenarios.
//
// A scenario describes a scripted robot, the requests made between ticks
// and assertions about the resulting lifecycle trace. Each scenario runs a
// real scheduler with its events recorded through a store.Recorder into an
// in-memory SQLite database; the trace checked by the assertions is read
// back from that database.
//
// # Scenario Format
//
//	name: preemption
//	description: "A newer command takes the arm from the default"
//	robot:
//	  subsystems:
//	    - name: arm
//	      default: arm-hold
//	  commands:
//	    - name: arm-hold
//	      requires: [arm]
//	    - name: arm-raise
//	      requires: [arm]
//	      finish_after: 2
//	steps:
//	  - tick: 3
//	    add: [arm-raise]
//	ticks: 6
//	assertions:
//	  - type: running_at
//	    tick: 3
//	    commands: [arm-raise]
//	  - type: trace_order
//	    events: ["admitted:arm-hold", "preempted:arm-hold", "admitted:arm-raise"]
//
// Steps apply before the scheduler pass of their tick. add and cancel
// stage requests that the same pass drains; remove interrupts immediately.
// Ticks are host frames: a frame where the scheduler is disabled still
// counts, even though the scheduler's own tick counter does not advance.
//
// # Assertion Types
//
//   - running_at: the running set after the given frame, in running-set order
//   - trace_contains: an event of the given kind (and command) exists
//   - trace_order: the listed kind:command events occur as a subsequence
//   - trace_count: exactly count events of the given kind (and command)
//   - never_conflicts: no two running commands ever shared a subsystem
//
// # Golden Traces
//
// RunWithGolden compares the recorded trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
