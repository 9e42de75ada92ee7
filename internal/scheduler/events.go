package scheduler

// EventKind names a lifecycle transition observed by the scheduler.
type EventKind string

const (
	// EventAdmitted: the command entered the running set and was initialized.
	EventAdmitted EventKind = "admitted"
	// EventRejected: the command was dropped because a required subsystem
	// is held by a non-interruptible command.
	EventRejected EventKind = "rejected"
	// EventPreempted: the command was interrupted to make room for a new one.
	EventPreempted EventKind = "preempted"
	// EventFinished: IsFinished returned true and End(false) was called.
	EventFinished EventKind = "finished"
	// EventCanceled: the command was removed explicitly and End(true) was called.
	EventCanceled EventKind = "canceled"
	// EventCallbackFailed: a callback panicked; the panic was recovered.
	EventCallbackFailed EventKind = "callback_failed"
	// EventReentrantRun: a nested Run call was ignored.
	EventReentrantRun EventKind = "reentrant_run"
	// EventTelemetryFailed: publishing the tick snapshot failed.
	EventTelemetryFailed EventKind = "telemetry_failed"
	// EventMisconfigured: a default command assignment was rejected.
	EventMisconfigured EventKind = "misconfigured"
)

// Event is one entry of the scheduler's lifecycle trace.
type Event struct {
	// Seq is a strictly increasing logical timestamp.
	Seq int64 `json:"seq"`

	// Tick is the tick during which the event happened (0 before the first tick).
	Tick int64 `json:"tick"`

	Kind EventKind `json:"kind"`

	// CommandID is the stable numeric id of the command, or 0.
	CommandID int64 `json:"command_id,omitempty"`

	Command string `json:"command,omitempty"`

	// Subsystem names the contested subsystem for rejected/preempted events.
	Subsystem string `json:"subsystem,omitempty"`

	Detail string `json:"detail,omitempty"`
}

// Sink receives every lifecycle event, in order, on the tick goroutine.
// Implementations must not block.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Record calls f(ev).
func (f SinkFunc) Record(ev Event) { f(ev) }

// CommandInfo identifies one running command in a telemetry snapshot.
type CommandInfo struct {
	ID   int64  `json:"id" cbor:"1,keyasint"`
	Name string `json:"name" cbor:"2,keyasint"`
}

// Snapshot is the state published to telemetry once per tick.
type Snapshot struct {
	Tick int64 `json:"tick" cbor:"1,keyasint"`

	// Commands lists running commands in running-set order.
	Commands []CommandInfo `json:"commands" cbor:"2,keyasint"`
}

// Publisher is the telemetry collaborator that receives tick snapshots.
// Publishing is best-effort: errors and panics are logged and recorded but
// never abort a tick.
type Publisher interface {
	Publish(Snapshot) error
}

// CancelSource supplies cancellation requests keyed by command id, e.g.
// from an operator dashboard. The scheduler drains it at the start of every
// tick and removes the matching running commands.
type CancelSource interface {
	DrainCancels() []int64
}

// Button is a polled input binding. The scheduler polls every registered
// button once per tick in registration order. Poll may only enqueue
// requests; it must never admit or remove commands directly.
type Button interface {
	Poll()
	// Reset forgets the stored edge state.
	Reset()
}
