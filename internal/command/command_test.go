package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase_DefaultsInterruptible(t *testing.T) {
	b := NewBase("idle")
	assert.Equal(t, "idle", b.Name())
	assert.True(t, b.Interruptible())
	assert.False(t, b.IsFinished())
	assert.Empty(t, b.Requirements())

	b.SetInterruptible(false)
	assert.False(t, b.Interruptible())
}

func TestBase_Requires_DeduplicatesAndKeepsOrder(t *testing.T) {
	arm := NewSubsystem("arm")
	drive := NewSubsystem("drive")

	b := NewBase("score")
	b.Requires(drive, nil, arm, drive)

	assert.Equal(t, []*Subsystem{drive, arm}, b.Requirements())
}

func TestBase_Requirements_ReturnsCopy(t *testing.T) {
	arm := NewSubsystem("arm")
	b := NewBase("lift")
	b.Requires(arm)

	got := b.Requirements()
	got[0] = nil

	assert.Equal(t, []*Subsystem{arm}, b.Requirements())
}

func TestRequires(t *testing.T) {
	arm := NewSubsystem("arm")
	drive := NewSubsystem("drive")
	c := NewFunc("lift", FuncOptions{Requires: []*Subsystem{arm}})

	assert.True(t, Requires(c, arm))
	assert.False(t, Requires(c, drive))
	assert.False(t, Requires(nil, arm))
	assert.False(t, Requires(c, nil))
}

func TestFunc_CallbacksInvoked(t *testing.T) {
	var calls []string
	finished := false
	c := NewFunc("probe", FuncOptions{
		OnInitialize: func() { calls = append(calls, "init") },
		OnExecute:    func() { calls = append(calls, "exec") },
		Finished:     func() bool { return finished },
		OnEnd: func(interrupted bool) {
			if interrupted {
				calls = append(calls, "end:interrupted")
			} else {
				calls = append(calls, "end")
			}
		},
	})

	c.Initialize()
	c.Execute()
	assert.False(t, c.IsFinished())
	finished = true
	assert.True(t, c.IsFinished())
	c.End(true)

	assert.Equal(t, []string{"init", "exec", "end:interrupted"}, calls)
}

func TestFunc_NilCallbacksAreSafe(t *testing.T) {
	c := NewFunc("empty", FuncOptions{Uninterruptible: true})

	assert.NotPanics(t, func() {
		c.Initialize()
		c.Execute()
		c.End(false)
	})
	assert.False(t, c.IsFinished())
	assert.False(t, c.Interruptible())
}

func TestInstantFunc_FinishesImmediately(t *testing.T) {
	ran := 0
	arm := NewSubsystem("arm")
	c := InstantFunc("zero", func() { ran++ }, arm)

	c.Initialize()
	assert.Equal(t, 1, ran)
	assert.True(t, c.IsFinished())
	assert.Equal(t, []*Subsystem{arm}, c.Requirements())
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{NotScheduled, "not_scheduled"},
		{Initialized, "initialized"},
		{Running, "running"},
		{Ending, "ending"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestSubsystem_SetDefaultCommand(t *testing.T) {
	arm := NewSubsystem("arm")
	drive := NewSubsystem("drive")

	hold := NewFunc("hold", FuncOptions{Requires: []*Subsystem{arm}})
	require.NoError(t, arm.SetDefaultCommand(hold))
	assert.Same(t, hold, arm.DefaultCommand())

	require.NoError(t, arm.SetDefaultCommand(nil))
	assert.Nil(t, arm.DefaultCommand())

	other := NewFunc("cruise", FuncOptions{Requires: []*Subsystem{drive}})
	err := arm.SetDefaultCommand(other)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDefaultMissingRequirement)
	assert.ErrorIs(t, err, ErrMisconfigured)
	assert.Nil(t, arm.DefaultCommand())
}

func TestSubsystem_SetDefaultCommand_SealedRestrictsToOwner(t *testing.T) {
	arm := NewSubsystem("arm")
	drive := NewSubsystem("drive")
	both := NewFunc("both", FuncOptions{Requires: []*Subsystem{arm, drive}})

	// Before the scheduler starts ticking a wider default is accepted.
	require.NoError(t, arm.SetDefaultCommand(both))

	arm.Seal()
	assert.True(t, arm.Sealed())

	err := arm.SetDefaultCommand(both)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefaultExceedsSubsystem))

	only := NewFunc("only", FuncOptions{Requires: []*Subsystem{arm}})
	require.NoError(t, arm.SetDefaultCommand(only))
	assert.Same(t, only, arm.DefaultCommand())
}

func TestSubsystem_Name(t *testing.T) {
	s := NewSubsystem("intake")
	assert.Equal(t, "intake", s.Name())
	assert.Equal(t, "intake", s.String())
	assert.False(t, s.Sealed())
}
