package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/cmdsched/internal/command"
)

// Scheduler is the cooperative command scheduler.
//
// The host control loop calls Run once per control cycle. Run admits staged
// commands, polls buttons, executes the running set, retires finished
// commands and stages default commands for idle subsystems, in that order.
//
// Thread-safety model:
//   - AddCommand, Cancel, AddButton, RegisterSubsystem, SetEnabled, Enabled
//     and Tick: safe from any goroutine
//   - Run, Remove, RemoveAll, ResetAll and the running-set queries: tick
//     goroutine only (the host loop and command callbacks)
//
// INVARIANTS:
//   - at most one running command holds any subsystem
//   - staged requests are drained at exactly one point per tick; requests
//     made while draining wait for the next tick
//   - the running set is iterated in admission order
type Scheduler struct {
	name   string
	logger *slog.Logger

	seq  *Clock // event ordering
	ids  *Clock // command identifiers
	tick atomic.Int64

	queue *requestQueue

	buttonsMu sync.Mutex
	buttons   []Button

	subsMu     sync.Mutex
	subsystems []*command.Subsystem
	registered map[*command.Subsystem]struct{}

	publisher Publisher
	cancels   CancelSource
	sinks     []Sink

	// Tick-goroutine state.
	running []*entry
	entries map[command.Command]*entry
	byID    map[int64]*entry
	holders map[*command.Subsystem]int64
	idOf    map[command.Command]int64

	inRun   atomic.Bool
	enabled atomic.Bool
	started atomic.Bool
}

// entry is the scheduler's record of one admitted command. Name,
// requirements and interruptibility are read once at admission.
type entry struct {
	cmd           command.Command
	id            int64
	name          string
	reqs          []*command.Subsystem
	interruptible bool
	state         command.State
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithName sets the scheduler's display name. Defaults to "Scheduler".
func WithName(name string) Option {
	return func(s *Scheduler) {
		s.name = name
	}
}

// WithPublisher sets the telemetry collaborator that receives a snapshot
// at the end of every tick.
func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) {
		s.publisher = p
	}
}

// WithCancelSource sets the source of id-keyed cancellation requests.
func WithCancelSource(c CancelSource) Option {
	return func(s *Scheduler) {
		s.cancels = c
	}
}

// WithSink adds a lifecycle event sink. May be given more than once.
func WithSink(sink Sink) Option {
	return func(s *Scheduler) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithSeqClock sets the clock used to stamp events. Used to resume event
// numbering from a previously persisted trace.
func WithSeqClock(c *Clock) Option {
	return func(s *Scheduler) {
		s.seq = c
	}
}

// New creates an enabled scheduler with no subsystems, buttons or commands.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		name:       "Scheduler",
		logger:     slog.Default(),
		seq:        NewClock(),
		ids:        NewClock(),
		queue:      newRequestQueue(),
		registered: make(map[*command.Subsystem]struct{}),
		entries:    make(map[command.Command]*entry),
		byID:       make(map[int64]*entry),
		holders:    make(map[*command.Subsystem]int64),
		idOf:       make(map[command.Command]int64),
	}
	s.enabled.Store(true)

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")

	return s
}

// Name returns the scheduler's display name.
func (s *Scheduler) Name() string {
	return s.name
}

// AddCommand stages c for admission at the start of the next tick.
//
// Safe to call from any goroutine, including from inside a command callback
// or a button action. Nil is ignored. A command already staged in the
// current batch is staged only once.
func (s *Scheduler) AddCommand(c command.Command) {
	if c == nil {
		return
	}
	if !s.queue.Enqueue(request{kind: requestAdd, cmd: c}) {
		s.logger.Debug("add ignored: already pending", "command", fmt.Sprintf("%T", c))
	}
}

// Cancel stages removal of c for the start of the next tick. Unlike Remove
// it is safe from any goroutine. Canceling a command that is not running
// when the request is drained is a no-op.
func (s *Scheduler) Cancel(c command.Command) {
	if c == nil {
		return
	}
	s.queue.Enqueue(request{kind: requestCancel, cmd: c})
}

// AddButton registers a button. Buttons are polled in registration order.
// Safe from any goroutine.
func (s *Scheduler) AddButton(b Button) {
	if b == nil {
		return
	}
	s.buttonsMu.Lock()
	defer s.buttonsMu.Unlock()
	s.buttons = append(s.buttons, b)
}

// RegisterSubsystem makes sub eligible for default-command fill. Registering
// the same subsystem twice is a no-op.
func (s *Scheduler) RegisterSubsystem(sub *command.Subsystem) {
	if sub == nil {
		return
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if _, ok := s.registered[sub]; ok {
		return
	}
	s.registered[sub] = struct{}{}
	s.subsystems = append(s.subsystems, sub)
	if s.started.Load() {
		sub.Seal()
	}
}

// SetDefaultCommand assigns a default command to sub, recording a
// misconfiguration event when the assignment is rejected. The error comes
// straight from Subsystem.SetDefaultCommand.
func (s *Scheduler) SetDefaultCommand(sub *command.Subsystem, c command.Command) error {
	if sub == nil {
		return fmt.Errorf("set default command: nil subsystem")
	}
	if err := sub.SetDefaultCommand(c); err != nil {
		s.logger.Error("default command rejected",
			"subsystem", sub.Name(),
			"error", &SchedulerError{Code: ErrCodeMisconfigured, Message: err.Error(), Tick: s.tick.Load()},
		)
		s.emit(Event{Kind: EventMisconfigured, Command: c.Name(), Subsystem: sub.Name(), Detail: err.Error()})
		return err
	}
	return nil
}

// SetEnabled turns ticking on or off. A disabled scheduler's Run is a
// no-op: running commands are frozen, not canceled.
func (s *Scheduler) SetEnabled(enabled bool) {
	if s.enabled.Swap(enabled) != enabled {
		s.logger.Info("scheduler enabled changed", "enabled", enabled)
	}
}

// Enabled reports whether Run does anything.
func (s *Scheduler) Enabled() bool {
	return s.enabled.Load()
}

// Tick returns the number of ticks run so far.
func (s *Scheduler) Tick() int64 {
	return s.tick.Load()
}

// Run performs one scheduling pass.
//
// Run must be called from the control-loop goroutine. A nested call made
// while a pass is in progress (e.g. from a command callback) does nothing
// and returns a REENTRANT_RUN SchedulerError. No other failure escapes Run:
// panicking callbacks and telemetry errors are contained, logged and
// recorded as events.
func (s *Scheduler) Run() error {
	if !s.inRun.CompareAndSwap(false, true) {
		err := newReentrantError(s.tick.Load())
		s.logger.Warn("nested run ignored", "error", err)
		s.emit(Event{Kind: EventReentrantRun, Detail: err.Message})
		return err
	}
	defer s.inRun.Store(false)

	if !s.enabled.Load() {
		return nil
	}
	if s.started.CompareAndSwap(false, true) {
		s.sealSubsystems()
	}
	s.tick.Add(1)

	// 1. Admit staged commands.
	s.drain()

	// 2. Poll buttons; their actions stage requests for the next tick.
	s.pollButtons()

	// 3. Execute the running set.
	finished := s.execute()

	// 4. Retire finished commands.
	for _, e := range finished {
		if s.isLive(e) {
			s.removeEntry(e, EventFinished, false)
		}
	}

	// 5. Stage defaults for idle subsystems.
	s.fillDefaults()

	// 6. Publish state.
	s.publish()

	return nil
}

// Remove interrupts c if it is running: End(true) is called and its
// subsystems are released. Unknown or idle commands are ignored.
// Tick goroutine only; use Cancel from elsewhere.
func (s *Scheduler) Remove(c command.Command) {
	if c == nil {
		return
	}
	e, ok := s.entries[c]
	if !ok {
		return
	}
	s.removeEntry(e, EventCanceled, true)
}

// RemoveAll interrupts every running command in running-set order.
func (s *Scheduler) RemoveAll() {
	for _, e := range append([]*entry(nil), s.running...) {
		if s.isLive(e) {
			s.removeEntry(e, EventCanceled, true)
		}
	}
}

// ResetAll interrupts every running command, discards staged requests and
// forgets every button's edge state. Used on operating-mode transitions.
func (s *Scheduler) ResetAll() {
	s.RemoveAll()
	s.queue.Clear()

	for _, b := range s.snapshotButtons() {
		b.Reset()
	}
	s.logger.Debug("scheduler reset", "tick", s.tick.Load())
}

// IsRunning reports whether c is in the running set.
func (s *Scheduler) IsRunning(c command.Command) bool {
	e, ok := s.entries[c]
	return ok && e.state != command.Ending
}

// IsScheduled reports whether c is running or staged for admission.
func (s *Scheduler) IsScheduled(c command.Command) bool {
	return s.IsRunning(c) || s.queue.PendingAdd(c)
}

// State returns the run state of c.
func (s *Scheduler) State(c command.Command) command.State {
	if e, ok := s.entries[c]; ok {
		return e.state
	}
	return command.NotScheduled
}

// Running returns the running commands in running-set order.
func (s *Scheduler) Running() []command.Command {
	out := make([]command.Command, 0, len(s.running))
	for _, e := range s.running {
		out = append(out, e.cmd)
	}
	return out
}

// CurrentCommand returns the command holding sub, or nil.
func (s *Scheduler) CurrentCommand(sub *command.Subsystem) command.Command {
	id, ok := s.holders[sub]
	if !ok {
		return nil
	}
	if e, ok := s.byID[id]; ok {
		return e.cmd
	}
	return nil
}

// CommandID returns the stable numeric id assigned to c when it was first
// admitted. The id survives re-admission of the same instance, so the
// scheduler keeps one id per distinct instance ever admitted; robot code
// should reuse command instances rather than build one per activation.
func (s *Scheduler) CommandID(c command.Command) (int64, bool) {
	id, ok := s.idOf[c]
	return id, ok
}

// drain applies telemetry cancellations and then the staged batch, FIFO.
func (s *Scheduler) drain() {
	if s.cancels != nil {
		for _, id := range s.drainCancels() {
			e, ok := s.byID[id]
			if !ok {
				s.logger.Debug("cancel ignored",
					"error", &SchedulerError{Code: ErrCodeStaleReference, Message: "no running command with this id", CommandID: id, Tick: s.tick.Load()},
				)
				continue
			}
			s.removeEntry(e, EventCanceled, true)
		}
	}

	for _, r := range s.queue.Drain() {
		switch r.kind {
		case requestAdd:
			s.admit(r.cmd)
		case requestCancel:
			s.Remove(r.cmd)
		}
	}
}

// drainCancels reads the cancel source, containing any panic.
func (s *Scheduler) drainCancels() (ids []int64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cancel source panicked", "panic", r)
			ids = nil
		}
	}()
	return s.cancels.DrainCancels()
}

// admit resolves c's requirement conflicts and, if every holder can be
// interrupted, preempts them and starts c. A candidate blocked by a
// non-interruptible holder is dropped, not retried.
func (s *Scheduler) admit(c command.Command) {
	if _, running := s.entries[c]; running {
		return
	}

	e, ok := s.inspect(c)
	if !ok {
		return
	}
	for _, sub := range e.reqs {
		holder := s.holderOf(sub)
		if holder == nil || holder.interruptible {
			continue
		}
		err := newConflictError(e.name, s.idOf[c], holder.name, sub.Name(), s.tick.Load())
		s.logger.Debug("command rejected", "error", err)
		s.emit(Event{
			Kind:      EventRejected,
			CommandID: s.idOf[c],
			Command:   e.name,
			Subsystem: sub.Name(),
			Detail:    "held by " + holder.name,
		})
		return
	}

	for _, sub := range e.reqs {
		if holder := s.holderOf(sub); holder != nil {
			s.removeEntryFor(holder, EventPreempted, sub.Name())
		}
	}

	e.id = s.idFor(c)
	e.state = command.Initialized
	for _, sub := range e.reqs {
		s.holders[sub] = e.id
	}
	s.running = append(s.running, e)
	s.entries[c] = e
	s.byID[e.id] = e

	s.emit(Event{Kind: EventAdmitted, CommandID: e.id, Command: e.name})
	if !s.guard(e, "initialize", c.Initialize) {
		s.fail(e)
	}
}

// inspect reads the candidate's name, requirements and interruptibility.
// A panic in any of them drops the candidate with a callback_failed event.
func (s *Scheduler) inspect(c command.Command) (e *entry, ok bool) {
	e = &entry{cmd: c, id: s.idOf[c]}
	defer func() {
		if r := recover(); r != nil {
			err := newCallbackError(e, "inspect", r, s.tick.Load())
			s.logger.Error("command callback failed", "error", err)
			s.emit(Event{Kind: EventCallbackFailed, CommandID: e.id, Command: e.name, Detail: err.Message})
			ok = false
		}
	}()
	e.name = c.Name()
	e.reqs = c.Requirements()
	e.interruptible = c.Interruptible()
	return e, true
}

// pollButtons polls every registered button in registration order.
func (s *Scheduler) pollButtons() {
	for _, b := range s.snapshotButtons() {
		s.pollButton(b)
	}
}

func (s *Scheduler) pollButton(b Button) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("button poll panicked", "panic", r, "tick", s.tick.Load())
		}
	}()
	b.Poll()
}

func (s *Scheduler) snapshotButtons() []Button {
	s.buttonsMu.Lock()
	defer s.buttonsMu.Unlock()
	return append([]Button(nil), s.buttons...)
}

// execute runs Execute and IsFinished on every running command and returns
// those that reported completion. A command removed earlier in the pass
// (by a peer calling Remove) is skipped.
func (s *Scheduler) execute() []*entry {
	var finished []*entry
	for _, e := range append([]*entry(nil), s.running...) {
		if !s.isLive(e) {
			continue
		}
		e.state = command.Running
		if !s.guard(e, "execute", e.cmd.Execute) {
			s.fail(e)
			continue
		}
		if !s.isLive(e) {
			// Removed itself from inside Execute.
			continue
		}

		var done bool
		if !s.guard(e, "is_finished", func() { done = e.cmd.IsFinished() }) {
			s.fail(e)
			continue
		}
		if done {
			finished = append(finished, e)
		}
	}
	return finished
}

// fillDefaults stages the default command of every idle subsystem. The
// default is admitted on the next tick through the normal admission path.
func (s *Scheduler) fillDefaults() {
	s.subsMu.Lock()
	subs := append([]*command.Subsystem(nil), s.subsystems...)
	s.subsMu.Unlock()

	for _, sub := range subs {
		if _, held := s.holders[sub]; held {
			continue
		}
		if def := sub.DefaultCommand(); def != nil {
			s.AddCommand(def)
		}
	}
}

// publish sends the tick snapshot to the telemetry collaborator.
func (s *Scheduler) publish() {
	if s.publisher == nil {
		return
	}
	snap := Snapshot{Tick: s.tick.Load(), Commands: make([]CommandInfo, 0, len(s.running))}
	for _, e := range s.running {
		snap.Commands = append(snap.Commands, CommandInfo{ID: e.id, Name: e.name})
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("publisher panicked: %v", r)
			}
		}()
		return s.publisher.Publish(snap)
	}()
	if err != nil {
		se := &SchedulerError{Code: ErrCodeTelemetryFailed, Message: err.Error(), Tick: snap.Tick}
		s.logger.Warn("telemetry publish failed", "error", se)
		s.emit(Event{Kind: EventTelemetryFailed, Detail: err.Error()})
	}
}

// removeEntry takes e out of the running set, releases its subsystems and
// calls End(interrupted). Reentrant removal of an entry already ending is
// ignored so End runs at most once per admission.
func (s *Scheduler) removeEntry(e *entry, kind EventKind, interrupted bool) {
	s.removeEntryWith(e, kind, interrupted, "")
}

// removeEntryFor preempts e on behalf of a candidate needing subsystem.
func (s *Scheduler) removeEntryFor(e *entry, kind EventKind, subsystem string) {
	s.removeEntryWith(e, kind, true, subsystem)
}

func (s *Scheduler) removeEntryWith(e *entry, kind EventKind, interrupted bool, subsystem string) {
	if !s.isLive(e) {
		return
	}
	e.state = command.Ending

	for _, sub := range e.reqs {
		if s.holders[sub] == e.id {
			delete(s.holders, sub)
		}
	}
	for i, r := range s.running {
		if r == e {
			s.running = append(s.running[:i], s.running[i+1:]...)
			break
		}
	}
	delete(s.byID, e.id)

	s.emit(Event{Kind: kind, CommandID: e.id, Command: e.name, Subsystem: subsystem})
	s.guard(e, "end", func() { e.cmd.End(interrupted) })

	delete(s.entries, e.cmd)
	e.state = command.NotScheduled
}

// fail removes a command whose callback panicked.
func (s *Scheduler) fail(e *entry) {
	s.removeEntry(e, EventCanceled, true)
}

// guard runs fn, recovering a panic. A recovered panic is logged and
// recorded, and guard returns false.
func (s *Scheduler) guard(e *entry, phase string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err := newCallbackError(e, phase, r, s.tick.Load())
			s.logger.Error("command callback failed", "error", err)
			s.emit(Event{Kind: EventCallbackFailed, CommandID: e.id, Command: e.name, Detail: err.Message})
			ok = false
		}
	}()
	fn()
	return true
}

// emit stamps ev and hands it to every sink.
func (s *Scheduler) emit(ev Event) {
	ev.Seq = s.seq.Next()
	ev.Tick = s.tick.Load()

	s.logger.Debug("command event",
		"seq", ev.Seq,
		"tick", ev.Tick,
		"kind", ev.Kind,
		"command", ev.Command,
		"command_id", ev.CommandID,
	)
	for _, sink := range s.sinks {
		s.record(sink, ev)
	}
}

func (s *Scheduler) record(sink Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event sink panicked", "panic", r, "seq", ev.Seq)
		}
	}()
	sink.Record(ev)
}

// isLive reports whether e is the current, non-ending record for its command.
func (s *Scheduler) isLive(e *entry) bool {
	cur, ok := s.entries[e.cmd]
	return ok && cur == e && e.state != command.Ending
}

// holderOf returns the running entry holding sub, or nil.
func (s *Scheduler) holderOf(sub *command.Subsystem) *entry {
	id, ok := s.holders[sub]
	if !ok {
		return nil
	}
	return s.byID[id]
}

// idFor returns c's stable id, assigning the next one on first admission.
func (s *Scheduler) idFor(c command.Command) int64 {
	if id, ok := s.idOf[c]; ok {
		return id
	}
	id := s.ids.Next()
	s.idOf[c] = id
	return id
}

func (s *Scheduler) sealSubsystems() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subsystems {
		sub.Seal()
	}
}
