package command

// Command is the capability interface every schedulable behavior implements.
//
// All callbacks run on the tick goroutine and must not block.
type Command interface {
	// Name is the display name used for diagnostics and telemetry.
	Name() string

	// Requirements returns the subsystems this command needs exclusively.
	// The set must not change once the command has been scheduled.
	Requirements() []*Subsystem

	// Interruptible reports whether a newly requested command may preempt
	// this one when they share a subsystem.
	Interruptible() bool

	// Initialize is called exactly once when the command is admitted.
	Initialize()

	// Execute is called once per tick while the command is running.
	Execute()

	// IsFinished is checked after every Execute. Returning true retires
	// the command at the end of the same tick.
	IsFinished() bool

	// End is called once when the command leaves the running set.
	// interrupted is false on normal completion and true when the command
	// was preempted or canceled.
	End(interrupted bool)
}

// State is the run state of a command as seen by the scheduler.
type State int

const (
	// NotScheduled means the command is not in the running set.
	NotScheduled State = iota
	// Initialized means Initialize has returned but Execute has not run yet.
	Initialized
	// Running means Execute has been called at least once.
	Running
	// Ending means End is currently being called.
	Ending
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case NotScheduled:
		return "not_scheduled"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Ending:
		return "ending"
	default:
		return "unknown"
	}
}

// Requires reports whether c lists sub among its requirements.
func Requires(c Command, sub *Subsystem) bool {
	if c == nil || sub == nil {
		return false
	}
	for _, r := range c.Requirements() {
		if r == sub {
			return true
		}
	}
	return false
}

// Base carries the bookkeeping shared by most commands. It implements every
// Command method except the lifecycle callbacks' behavior, which default to
// no-ops (IsFinished defaults to false).
type Base struct {
	name            string
	requirements    []*Subsystem
	uninterruptible bool
}

// NewBase creates a Base with the given display name. Commands are
// interruptible unless SetInterruptible(false) is called.
func NewBase(name string) Base {
	return Base{name: name}
}

// Name returns the display name.
func (b *Base) Name() string {
	return b.name
}

// Requires adds subsystems to the requirement set. Duplicates and nils are
// ignored; declaration order is preserved.
func (b *Base) Requires(subs ...*Subsystem) {
	for _, s := range subs {
		if s == nil || b.has(s) {
			continue
		}
		b.requirements = append(b.requirements, s)
	}
}

func (b *Base) has(s *Subsystem) bool {
	for _, r := range b.requirements {
		if r == s {
			return true
		}
	}
	return false
}

// Requirements returns a copy of the requirement set.
func (b *Base) Requirements() []*Subsystem {
	out := make([]*Subsystem, len(b.requirements))
	copy(out, b.requirements)
	return out
}

// SetInterruptible sets whether the command may be preempted. The scheduler
// reads it once, when the command is admitted.
func (b *Base) SetInterruptible(interruptible bool) {
	b.uninterruptible = !interruptible
}

// Interruptible reports whether the command may be preempted.
func (b *Base) Interruptible() bool {
	return !b.uninterruptible
}

// Initialize is a no-op.
func (b *Base) Initialize() {}

// Execute is a no-op.
func (b *Base) Execute() {}

// IsFinished returns false; commands embedding Base run until canceled
// unless they override it.
func (b *Base) IsFinished() bool { return false }

// End is a no-op.
func (b *Base) End(bool) {}
