package command

// FuncOptions configures a Func command. Every callback is optional.
type FuncOptions struct {
	Requires        []*Subsystem
	Uninterruptible bool

	OnInitialize func()
	OnExecute    func()
	Finished     func() bool
	OnEnd        func(interrupted bool)
}

// Func is a Command assembled from closures. It is convenient for small
// behaviors and tests that do not warrant a named type.
type Func struct {
	Base
	opts FuncOptions
}

// NewFunc returns a closure-backed command.
func NewFunc(name string, opts FuncOptions) *Func {
	f := &Func{Base: NewBase(name), opts: opts}
	f.Requires(opts.Requires...)
	f.SetInterruptible(!opts.Uninterruptible)
	return f
}

// Initialize calls OnInitialize.
func (f *Func) Initialize() {
	if f.opts.OnInitialize != nil {
		f.opts.OnInitialize()
	}
}

// Execute calls OnExecute.
func (f *Func) Execute() {
	if f.opts.OnExecute != nil {
		f.opts.OnExecute()
	}
}

// IsFinished calls Finished. Without it the command runs until canceled.
func (f *Func) IsFinished() bool {
	if f.opts.Finished != nil {
		return f.opts.Finished()
	}
	return false
}

// End calls OnEnd.
func (f *Func) End(interrupted bool) {
	if f.opts.OnEnd != nil {
		f.opts.OnEnd(interrupted)
	}
}

// InstantFunc returns a command that runs fn once in Initialize and
// finishes on its first tick.
func InstantFunc(name string, fn func(), requires ...*Subsystem) *Func {
	return NewFunc(name, FuncOptions{
		Requires:     requires,
		OnInitialize: fn,
		Finished:     func() bool { return true },
	})
}
