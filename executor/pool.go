package executor

import (
	"sync"
	"sync/atomic"

	"github.com/kbukum/orderedpipe/logger"
)

// Pool is a fixed-size worker pool with an unbounded FIFO task queue.
type Pool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	tasks    []func()
	closed   bool

	workers   int
	wg        sync.WaitGroup
	submitted atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64

	log *logger.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger used to report recovered task panics.
func WithPoolLogger(l *logger.Logger) PoolOption {
	return func(p *Pool) { p.log = l }
}

// NewPool starts a pool with the given number of workers.
// Values below 1 are treated as 1.
func NewPool(workers int, opts ...PoolOption) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{workers: workers, log: logger.Nop()}
	p.notEmpty = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

// Submit enqueues task. It never blocks.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrShutdown
	}
	p.tasks = append(p.tasks, task)
	p.submitted.Add(1)
	p.notEmpty.Signal()
	return nil
}

// Shutdown stops accepting tasks. Queued tasks are still executed.
// It does not wait; use Wait for that.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.notEmpty.Broadcast()
}

// Wait blocks until Shutdown was called and every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// IsShutdown reports whether Shutdown has been called.
func (p *Pool) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// Submitted returns the number of accepted tasks.
func (p *Pool) Submitted() int64 { return p.submitted.Load() }

// Completed returns the number of finished tasks, including panicked ones.
func (p *Pool) Completed() int64 { return p.completed.Load() }

// Pending returns the number of queued tasks not yet picked by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		task, ok := p.next()
		if !ok {
			return
		}
		p.run(task)
	}
}

// next blocks until a task is available or the pool is closed and drained.
func (p *Pool) next() (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.tasks) == 0 {
		if p.closed {
			return nil, false
		}
		p.notEmpty.Wait()
	}
	task := p.tasks[0]
	p.tasks[0] = nil
	p.tasks = p.tasks[1:]
	return task, true
}

func (p *Pool) run(task func()) {
	defer func() {
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.log.Error("task panicked", logger.Fields("panic", r))
		}
	}()
	task()
}
