package pipeline

import "context"

// workItem pairs a source position with the single-assignment result of its computation.
type workItem[U any] struct {
	index int
	done  chan struct{}
	val   U
	err   error
}

func newWorkItem[U any](index int) *workItem[U] {
	return &workItem[U]{index: index, done: make(chan struct{})}
}

// complete stores the result. It must be called exactly once.
func (w *workItem[U]) complete(val U, err error) {
	w.val = val
	w.err = err
	close(w.done)
}

// failed returns a work item that is already completed with err.
func failed[U any](index int, err error) *workItem[U] {
	w := newWorkItem[U](index)
	var zero U
	w.complete(zero, err)
	return w
}

// await blocks until the result is available or one of the contexts is done.
// It returns nil once val and err are readable, or the interruption cause.
// A completed result wins over a concurrent cancellation.
func (w *workItem[U]) await(ctx, run context.Context) error {
	select {
	case <-w.done:
		return nil
	default:
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-run.Done():
		return context.Cause(run)
	}
}
