package scripted

import (
	"fmt"

	"github.com/roach88/cmdsched/internal/command"
)

// Command is a command driven entirely by its CommandSpec.
type Command struct {
	command.Base

	spec   CommandSpec
	host   Host
	starts []command.Command
	stops  []command.Command

	execs int
	fired bool
}

var _ command.Command = (*Command)(nil)

func newCommand(spec CommandSpec, host Host) *Command {
	c := &Command{Base: command.NewBase(spec.Name), spec: spec, host: host}
	c.SetInterruptible(spec.Interruptible == nil || *spec.Interruptible)
	return c
}

// Initialize resets the per-admission counters.
func (c *Command) Initialize() {
	c.execs = 0
	c.fired = false
	c.maybePanic(PanicInitialize)
}

// Execute counts the call and, on the first one, stages the scripted peer
// requests.
func (c *Command) Execute() {
	c.execs++
	if !c.fired {
		c.fired = true
		for _, peer := range c.starts {
			c.host.AddCommand(peer)
		}
		for _, peer := range c.stops {
			c.host.Cancel(peer)
		}
	}
	c.maybePanic(PanicExecute)
}

// IsFinished reports true once FinishAfter executions have happened.
func (c *Command) IsFinished() bool {
	c.maybePanic(PanicIsFinished)
	return c.spec.FinishAfter > 0 && c.execs >= c.spec.FinishAfter
}

// End releases nothing; scripted commands hold no resources.
func (c *Command) End(bool) {
	c.maybePanic(PanicEnd)
}

// Executions returns the number of Execute calls since the last admission.
func (c *Command) Executions() int {
	return c.execs
}

func (c *Command) maybePanic(phase string) {
	if c.spec.PanicIn == phase {
		panic(fmt.Sprintf("%s: scripted failure in %s", c.spec.Name, phase))
	}
}
