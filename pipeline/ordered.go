package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/orderedpipe/errors"
	"github.com/kbukum/orderedpipe/executor"
	"github.com/kbukum/orderedpipe/logger"
	"github.com/kbukum/orderedpipe/observability"
)

// Traversal outcomes reported to metrics.
const (
	outcomeCompleted   = "completed"
	outcomeInterrupted = "interrupted"
	outcomeClosed      = "closed"
)

// QueueCapacity returns the submission queue capacity used for factor:
// 2·(factor−1), never below 1.
func QueueCapacity(factor int) int {
	return max(1, 2*(factor-1))
}

// acquireFunc hands an executor to a traversal together with its release hook.
type acquireFunc func(log *logger.Logger) (executor.Executor, func())

// ownedExecutor creates the per-traversal pool of ParallelTransform.
var ownedExecutor = func(factor int) (executor.Executor, func()) {
	pool := executor.NewPool(factor)
	return pool, pool.Shutdown
}

// ParallelTransform applies fn to up to factor values concurrently and yields
// the results in source order.
//
// Each traversal creates its own worker pool of factor goroutines when the
// first value is submitted, and shuts it down once the consumer reaches the
// end of the sequence or closes the iterator. An empty source starts no pool.
// A non-positive factor is rejected immediately.
func ParallelTransform[T, U any](p *Pipeline[T], fn func(context.Context, T) (U, error), factor int, opts ...Option) (*Pipeline[U], error) {
	create, err := ownedTransform(p, fn, factor, opts)
	if err != nil {
		return nil, err
	}
	return &Pipeline[U]{create: create}, nil
}

// ParallelTransformWith is ParallelTransform on a caller-supplied executor.
// The executor is never shut down by the pipeline.
//
// With factor > 1, exec must be able to run at least two tasks at once for
// the computations to overlap. On a single-worker executor results are still
// correct and ordered but computed one at a time, and computations that wait
// for each other deadlock.
func ParallelTransformWith[T, U any](p *Pipeline[T], fn func(context.Context, T) (U, error), factor int, exec executor.Executor, opts ...Option) (*Pipeline[U], error) {
	create, err := borrowedTransform(p, fn, factor, exec, opts)
	if err != nil {
		return nil, err
	}
	return &Pipeline[U]{create: create}, nil
}

// ownedTransform validates the arguments of ParallelTransform and returns the
// traversal factory. The pool is created when the first value is submitted.
func ownedTransform[T, U any](p *Pipeline[T], fn func(context.Context, T) (U, error), factor int, opts []Option) (func(context.Context) Iterator[U], error) {
	if factor <= 0 {
		return nil, errors.InvalidFactor(factor)
	}
	acquire := func(log *logger.Logger) (executor.Executor, func()) {
		exec, shutdown := ownedExecutor(factor)
		return exec, func() {
			shutdown()
			log.Debug("owned executor shut down")
		}
	}
	return ordered(p, fn, factor, acquire, applyOptions(opts)), nil
}

func borrowedTransform[T, U any](p *Pipeline[T], fn func(context.Context, T) (U, error), factor int, exec executor.Executor, opts []Option) (func(context.Context) Iterator[U], error) {
	if factor <= 0 {
		return nil, errors.InvalidFactor(factor)
	}
	if exec == nil {
		return nil, errors.InvalidArgument("executor", "must not be nil")
	}
	acquire := func(*logger.Logger) (executor.Executor, func()) {
		return exec, func() {}
	}
	return ordered(p, fn, factor, acquire, applyOptions(opts)), nil
}

// ordered returns a factory of traversals rather than a *Pipeline[U]: the
// filter stage instantiates it with a wrapper type, and a Pipeline of that
// type would recursively instantiate the filter methods.
func ordered[T, U any](p *Pipeline[T], fn func(context.Context, T) (U, error), factor int, acquire acquireFunc, o options) func(context.Context) Iterator[U] {
	return func(ctx context.Context) Iterator[U] {
		runCtx, cancel := context.WithCancelCause(ctx)
		runID := uuid.NewString()
		return &orderedIter[T, U]{
			source:  p.create(runCtx),
			fn:      fn,
			factor:  factor,
			acquire: acquire,
			opts:    o,
			runID:   runID,
			runCtx:  runCtx,
			cancel:  cancel,
			queue:   make(chan *workItem[U], QueueCapacity(factor)),
			stopped: make(chan struct{}),
			log: o.log.WithComponent("pipeline").WithFields(logger.Fields(
				logger.FieldPipeline, o.name,
				logger.FieldRunID, runID,
			)),
		}
	}
}

// orderedIter is one traversal of an ordered pipeline.
//
// A driver goroutine pulls the source, submits each value to the executor and
// pushes the pending work item onto a bounded FIFO queue. The consumer pops
// work items in the same order and waits for each one's result, so output
// order equals source order whatever order the workers finish in.
type orderedIter[T, U any] struct {
	source  Iterator[T]
	fn      func(context.Context, T) (U, error)
	factor  int
	acquire acquireFunc
	opts    options
	log     *logger.Logger
	runID   string

	runCtx context.Context
	cancel context.CancelCauseFunc
	span   trace.Span

	queue    chan *workItem[U]
	finished atomic.Bool // set by the driver once the last item is queued
	reading  atomic.Bool // driver is inside source.Next
	stopped  chan struct{}

	// written by the driver before queue and stopped are closed
	sourceErr error
	submitted int

	// exec is acquired by the driver on the first submit and released once by
	// the consumer; execMu orders the two.
	execMu      sync.Mutex
	exec        executor.Executor
	release     func()
	released    bool
	releaseOnce sync.Once

	// consumer-side state
	started   bool
	startedAt time.Time
	terminal  bool
	termErr   error
	closed    bool
	closeErr  error
}

func (it *orderedIter[T, U]) Next(ctx context.Context) (U, bool, error) {
	var zero U
	if it.terminal {
		return zero, false, it.termErr
	}
	if !it.started {
		it.start()
	}
	if err := it.runCtx.Err(); err != nil {
		return zero, false, it.interrupt(context.Cause(it.runCtx))
	}

	var item *workItem[U]
	select {
	case w, ok := <-it.queue:
		if !ok {
			return it.end()
		}
		item = w
	case <-ctx.Done():
		return zero, false, it.interrupt(ctx.Err())
	}

	if cause := item.await(ctx, it.runCtx); cause != nil {
		return zero, false, it.interrupt(cause)
	}
	if item.err != nil {
		return zero, false, item.err
	}
	return item.val, true, nil
}

func (it *orderedIter[T, U]) Close() error {
	if it.closed {
		return it.closeErr
	}
	it.closed = true
	it.cancel(context.Canceled)
	if it.started {
		// A source that ignores cancellation can keep the driver in Next
		// indefinitely; the driver closes the source itself once Next returns.
		if !it.reading.Load() {
			<-it.stopped
			it.closeErr = it.sourceErr
		}
	} else {
		it.closeErr = it.source.Close()
	}
	if !it.terminal {
		it.log.Debug("traversal closed before end of sequence")
		it.finish(outcomeClosed)
		it.terminal = true
		it.termErr = errors.Interrupted(context.Canceled)
	}
	return it.closeErr
}

// start launches the driver on first demand.
func (it *orderedIter[T, U]) start() {
	it.started = true
	it.startedAt = time.Now()
	it.runCtx, it.span = it.opts.tracer.Start(it.runCtx, observability.SpanTraversal, trace.WithAttributes(
		attribute.String(observability.AttrPipeline, it.opts.name),
		attribute.String(observability.AttrRunID, it.runID),
		attribute.Int(observability.AttrFactor, it.factor),
	))
	it.log.Debug("driver starting", logger.Fields(
		logger.FieldFactor, it.factor,
		logger.FieldCapacity, cap(it.queue),
	))
	go it.drive()
}

// drive runs on its own goroutine. It is the only reader of the source and the
// only writer of the queue.
func (it *orderedIter[T, U]) drive() {
	defer close(it.stopped)
	defer close(it.queue)
	defer func() { it.sourceErr = it.source.Close() }()

	for index := 0; ; index++ {
		val, ok, err := it.read()
		if it.runCtx.Err() != nil {
			return
		}
		if err != nil {
			if it.push(failed[U](index, errors.SourceFailed(index, err))) {
				it.finished.Store(true)
			}
			return
		}
		if !ok {
			it.submitted = index
			it.finished.Store(true)
			it.log.Debug("source exhausted", logger.Fields(logger.FieldItems, index))
			return
		}

		item := newWorkItem[U](index)
		if err := it.submit(item, val); err != nil {
			if it.push(failed[U](index, errors.ExecutorShutdown(err))) {
				it.finished.Store(true)
			}
			return
		}
		if !it.push(item) {
			return
		}
	}
}

// read pulls the next source value. reading is raised before the
// cancellation check so that Close either sees it or the driver sees the
// cancellation.
func (it *orderedIter[T, U]) read() (T, bool, error) {
	it.reading.Store(true)
	defer it.reading.Store(false)
	if err := it.runCtx.Err(); err != nil {
		var zero T
		return zero, false, err
	}
	return it.source.Next(it.runCtx)
}

// push blocks until the queue has room or the traversal is cancelled.
func (it *orderedIter[T, U]) push(item *workItem[U]) bool {
	if it.runCtx.Err() != nil {
		return false
	}
	select {
	case it.queue <- item:
		return true
	case <-it.runCtx.Done():
		return false
	}
}

// acquireExecutor returns the traversal's executor, acquiring it on first use.
func (it *orderedIter[T, U]) acquireExecutor() (executor.Executor, error) {
	it.execMu.Lock()
	defer it.execMu.Unlock()
	if it.released {
		return nil, executor.ErrShutdown
	}
	if it.exec == nil {
		it.exec, it.release = it.acquire(it.log)
	}
	return it.exec, nil
}

func (it *orderedIter[T, U]) submit(item *workItem[U], val T) error {
	exec, err := it.acquireExecutor()
	if err != nil {
		return err
	}
	it.opts.metrics.RecordSubmit(it.runCtx, it.opts.name)
	err = exec.Submit(func() {
		start := time.Now()
		ctx, span := it.opts.tracer.Start(it.runCtx, observability.SpanItem, trace.WithAttributes(
			attribute.Int(observability.AttrIndex, item.index),
		))
		out, err := it.call(ctx, item.index, val)
		if err != nil {
			observability.SetSpanError(span, err)
			it.log.Debug("item failed", logger.Fields(logger.FieldIndex, item.index, logger.FieldError, err.Error()))
		}
		span.End()
		it.opts.metrics.RecordComplete(it.runCtx, it.opts.name, time.Since(start), err)
		item.complete(out, err)
	})
	if err != nil {
		it.opts.metrics.RecordComplete(it.runCtx, it.opts.name, 0, err)
	}
	return err
}

// call runs fn, converting a returned error or a panic into a positional error.
func (it *orderedIter[T, U]) call(ctx context.Context, index int, val T) (out U, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero U
			out, err = zero, errors.Panicked(index, r)
		}
	}()
	out, err = it.fn(ctx, val)
	if err != nil {
		var zero U
		return zero, errors.ItemFailed(index, err)
	}
	return out, nil
}

// end handles a closed queue: end of sequence if the source was exhausted,
// interruption otherwise.
func (it *orderedIter[T, U]) end() (U, bool, error) {
	var zero U
	if !it.finished.Load() {
		return zero, false, it.interrupt(context.Cause(it.runCtx))
	}
	it.terminal = true
	it.log.Debug("end of sequence", logger.Fields(
		logger.FieldItems, it.submitted,
		logger.FieldDuration, time.Since(it.startedAt).Milliseconds(),
	))
	it.span.SetAttributes(attribute.Int(observability.AttrItems, it.submitted))
	it.finish(outcomeCompleted)
	return zero, false, nil
}

// interrupt moves the traversal to its terminal interrupted state and stops the driver.
func (it *orderedIter[T, U]) interrupt(cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	err := errors.Interrupted(cause)
	it.cancel(cause)
	it.terminal = true
	it.termErr = err
	it.log.Debug("traversal interrupted", logger.Fields(logger.FieldError, cause.Error()))
	observability.SetSpanError(it.span, err)
	it.finish(outcomeInterrupted)
	return err
}

// finish releases the executor and ends the traversal span. Only the first call has effect.
func (it *orderedIter[T, U]) finish(outcome string) {
	it.releaseOnce.Do(func() {
		it.execMu.Lock()
		it.released = true
		release := it.release
		it.execMu.Unlock()
		if release != nil {
			release()
		}
		if it.span != nil {
			it.span.SetAttributes(attribute.String(observability.AttrOutcome, outcome))
			it.span.End()
		}
		it.opts.metrics.RecordTraversal(context.WithoutCancel(it.runCtx), it.opts.name, outcome)
	})
}
