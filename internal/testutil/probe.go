package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/cmdsched/internal/command"
)

// CallLog records lifecycle callbacks from several probes in call order.
//
// Entries look like "arm-up:init", "arm-up:exec", "arm-up:end" and
// "arm-up:end(interrupted)".
type CallLog struct {
	mu      sync.Mutex
	entries []string
}

// NewCallLog creates an empty log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

func (l *CallLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (l *CallLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Reset discards every entry.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Probe is a Command that records every callback it receives.
//
// By default a probe is interruptible, requires nothing and never finishes.
// Use the ProbeOption helpers to change that.
type Probe struct {
	command.Base

	mu           sync.Mutex
	inits        int
	execs        int
	ends         int
	interrupts   []bool
	finishAfter  int
	finished     bool
	log          *CallLog
	onInitialize func()
	onExecute    func()
	onEnd        func(interrupted bool)
}

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// Requiring declares the probe's requirements.
func Requiring(subs ...*command.Subsystem) ProbeOption {
	return func(p *Probe) {
		p.Requires(subs...)
	}
}

// Uninterruptible makes the probe non-interruptible.
func Uninterruptible() ProbeOption {
	return func(p *Probe) {
		p.SetInterruptible(false)
	}
}

// FinishAfter makes IsFinished return true once Execute has run n times.
func FinishAfter(n int) ProbeOption {
	return func(p *Probe) {
		p.finishAfter = n
	}
}

// LoggingTo records callbacks into log.
func LoggingTo(log *CallLog) ProbeOption {
	return func(p *Probe) {
		p.log = log
	}
}

// OnInitialize runs fn inside Initialize, after it has been counted.
func OnInitialize(fn func()) ProbeOption {
	return func(p *Probe) {
		p.onInitialize = fn
	}
}

// OnExecute runs fn inside Execute, after it has been counted.
func OnExecute(fn func()) ProbeOption {
	return func(p *Probe) {
		p.onExecute = fn
	}
}

// OnEnd runs fn inside End, after it has been counted.
func OnEnd(fn func(interrupted bool)) ProbeOption {
	return func(p *Probe) {
		p.onEnd = fn
	}
}

// NewProbe creates a recording command.
func NewProbe(name string, opts ...ProbeOption) *Probe {
	p := &Probe{Base: command.NewBase(name)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize records the call.
func (p *Probe) Initialize() {
	p.mu.Lock()
	p.inits++
	p.mu.Unlock()
	p.note("init")
	if p.onInitialize != nil {
		p.onInitialize()
	}
}

// Execute records the call.
func (p *Probe) Execute() {
	p.mu.Lock()
	p.execs++
	p.mu.Unlock()
	p.note("exec")
	if p.onExecute != nil {
		p.onExecute()
	}
}

// IsFinished reports completion per FinishAfter or SetFinished.
func (p *Probe) IsFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return true
	}
	return p.finishAfter > 0 && p.execs >= p.finishAfter
}

// End records the call and its interrupted flag.
func (p *Probe) End(interrupted bool) {
	p.mu.Lock()
	p.ends++
	p.interrupts = append(p.interrupts, interrupted)
	p.mu.Unlock()
	if interrupted {
		p.note("end(interrupted)")
	} else {
		p.note("end")
	}
	if p.onEnd != nil {
		p.onEnd(interrupted)
	}
}

// SetFinished forces IsFinished to return done.
func (p *Probe) SetFinished(done bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = done
}

// Inits returns how many times Initialize ran.
func (p *Probe) Inits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inits
}

// Execs returns how many times Execute ran.
func (p *Probe) Execs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.execs
}

// Ends returns how many times End ran.
func (p *Probe) Ends() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ends
}

// Interrupts returns the interrupted flag of every End call, in order.
func (p *Probe) Interrupts() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.interrupts...)
}

// LastInterrupted returns the flag of the most recent End call. ok is
// false if End never ran.
func (p *Probe) LastInterrupted() (interrupted, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.interrupts) == 0 {
		return false, false
	}
	return p.interrupts[len(p.interrupts)-1], true
}

// String implements fmt.Stringer for readable assertion output.
func (p *Probe) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("%s{inits=%d execs=%d ends=%d}", p.Name(), p.inits, p.execs, p.ends)
}

func (p *Probe) note(what string) {
	if p.log != nil {
		p.log.add(p.Name() + ":" + what)
	}
}
