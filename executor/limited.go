package executor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/orderedpipe/logger"
)

// Limited runs each task on its own goroutine, with at most limit running at once.
// Submit blocks while the limit is reached.
type Limited struct {
	g      errgroup.Group
	limit  int
	mu     sync.RWMutex
	closed bool
	panics atomic.Int64
	log    *logger.Logger
}

// LimitedOption configures a Limited executor.
type LimitedOption func(*Limited)

// WithLimitedLogger sets the logger used to report recovered task panics.
func WithLimitedLogger(l *logger.Logger) LimitedOption {
	return func(e *Limited) { e.log = l }
}

// NewLimited creates a Limited executor. Values below 1 are treated as 1.
func NewLimited(limit int, opts ...LimitedOption) *Limited {
	if limit < 1 {
		limit = 1
	}
	l := &Limited{limit: limit, log: logger.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	l.g.SetLimit(limit)
	return l
}

// Submit runs task once a slot is free.
//
// The read lock is held until the task is handed to the group, so a Shutdown
// followed by Wait never misses a task accepted concurrently.
func (l *Limited) Submit(task func()) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrShutdown
	}
	l.g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				l.panics.Add(1)
				l.log.Error("task panicked", logger.Fields("panic", r))
			}
		}()
		task()
		return nil
	})
	return nil
}

// Shutdown stops accepting tasks. Running tasks are not interrupted; a Submit
// waiting for a free slot is let through first.
func (l *Limited) Shutdown() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// Wait blocks until every submitted task has returned.
func (l *Limited) Wait() {
	_ = l.g.Wait()
}

// Limit returns the maximum number of concurrently running tasks.
func (l *Limited) Limit() int { return l.limit }
