package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cmdsched/internal/command"
)

func TestProbe_Defaults(t *testing.T) {
	p := NewProbe("idle")

	assert.Equal(t, "idle", p.Name())
	assert.True(t, p.Interruptible())
	assert.Empty(t, p.Requirements())
	assert.False(t, p.IsFinished())

	_, ok := p.LastInterrupted()
	assert.False(t, ok)
}

func TestProbe_CountsAndLog(t *testing.T) {
	log := NewCallLog()
	arm := command.NewSubsystem("arm")
	p := NewProbe("lift", Requiring(arm), Uninterruptible(), FinishAfter(2), LoggingTo(log))

	p.Initialize()
	p.Execute()
	assert.False(t, p.IsFinished())
	p.Execute()
	assert.True(t, p.IsFinished())
	p.End(false)

	assert.Equal(t, 1, p.Inits())
	assert.Equal(t, 2, p.Execs())
	assert.Equal(t, 1, p.Ends())
	assert.False(t, p.Interruptible())
	assert.Equal(t, []*command.Subsystem{arm}, p.Requirements())

	interrupted, ok := p.LastInterrupted()
	require.True(t, ok)
	assert.False(t, interrupted)

	assert.Equal(t, []string{"lift:init", "lift:exec", "lift:exec", "lift:end"}, log.Entries())

	log.Reset()
	assert.Empty(t, log.Entries())
}

func TestProbe_Hooks(t *testing.T) {
	var seen []string
	p := NewProbe("hooked",
		OnInitialize(func() { seen = append(seen, "i") }),
		OnExecute(func() { seen = append(seen, "e") }),
		OnEnd(func(interrupted bool) {
			if interrupted {
				seen = append(seen, "x")
			}
		}),
	)

	p.Initialize()
	p.Execute()
	p.End(true)

	assert.Equal(t, []string{"i", "e", "x"}, seen)
	assert.Equal(t, []bool{true}, p.Interrupts())
}

func TestProbe_SetFinished(t *testing.T) {
	p := NewProbe("manual")
	assert.False(t, p.IsFinished())
	p.SetFinished(true)
	assert.True(t, p.IsFinished())
	assert.Equal(t, "manual{inits=0 execs=0 ends=0}", p.String())
}
