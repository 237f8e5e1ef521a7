package executor

import "errors"

// ErrShutdown is returned by Submit once the executor stopped accepting work.
var ErrShutdown = errors.New("executor is shut down")

// Executor schedules units of work for eventual execution.
type Executor interface {
	// Submit schedules task. It returns ErrShutdown if the executor no longer
	// accepts work. Implementations may block until capacity is available.
	Submit(task func()) error
}

// Shutdowner is implemented by executors that own goroutines.
type Shutdowner interface {
	// Shutdown stops accepting new tasks. Accepted tasks still run.
	// Calling Shutdown more than once has no further effect.
	Shutdown()
}

// Func adapts a plain function to the Executor interface.
// Func(func(task func()) { go task() }) spawns a goroutine per task.
type Func func(task func())

// Submit calls f(task).
func (f Func) Submit(task func()) error {
	f(task)
	return nil
}

// Go is an unbounded executor that runs every task on its own goroutine.
var Go Executor = Func(func(task func()) { go task() })
