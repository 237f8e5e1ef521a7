// Package executor provides the work-scheduling abstraction used by the
// ordered pipeline.
//
// An Executor accepts units of work and runs them eventually, on some
// goroutine. Two implementations are provided:
//
//   - Pool: a fixed number of worker goroutines draining an unbounded FIFO
//     task queue. Submit never blocks.
//   - Limited: an errgroup with a concurrency limit. Submit blocks until a
//     slot is free.
//
// Executors that own goroutines implement Shutdowner. Shutdown stops accepting
// new work; already accepted tasks still run to completion.
//
// # Usage
//
//	pool := executor.NewPool(4)
//	defer pool.Shutdown()
//	_ = pool.Submit(func() { work() })
//
// A Pool with a single worker serializes every task. Pipelines that need
// their in-flight tasks to overlap (for example, tasks that rendezvous with
// each other) deadlock on such a pool.
package executor
