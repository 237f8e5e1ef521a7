// Package pipeline provides lazy, pull-based pipelines with an ordered,
// bounded-concurrency transform.
//
// Pipelines are lazy: no work happens until values are pulled via Collect,
// Drain, ForEach, Iter or Seq. Each pull starts a fresh traversal from the
// source factory, so a pipeline built with FromSlice, FromFunc or FromSeq can
// be traversed any number of times.
//
// # Operators
//
// Synchronous (consumer goroutine):
//
//   - Map: transform each value
//   - Filter: keep values matching a predicate
//   - Tap: side-effect without altering the value
//   - Reduce: accumulate all values into one result
//   - Concat: join pipelines sequentially
//
// Concurrent:
//
//   - ParallelTransform: apply a function to up to factor values at once,
//     yielding results in source order
//   - ParallelFilter: evaluate a predicate to up to factor values at once,
//     yielding the kept values in source order
//
// Both come in a With variant taking a caller-owned executor.Executor. The
// plain variants create a worker pool per traversal and shut it down when the
// consumer reaches the end or closes the iterator.
//
// # Ordering and backpressure
//
// A driver goroutine reads the source and submits one task per value. Pending
// results wait in a FIFO queue of capacity 2·(factor−1) (at least 1); the
// driver blocks when it is full. The consumer takes results from the head of
// the queue, so a slow item holds back the ones after it but never reorders
// them.
//
// # Errors
//
// A failed or panicking computation surfaces at its own position as an
// errors.ITEM_FAILED or errors.PANIC error carrying the item index; calling
// Next again continues with the following item. Cancelling the context passed
// to Next, or closing the iterator, stops the driver and ends the traversal
// with an errors.INTERRUPTED error.
//
// An iterator that is dropped without reaching the end and without Close
// keeps its driver blocked on the full queue and, for owned pools, keeps the
// pool's goroutines alive. Always Close iterators obtained with Iter.
//
// Close does not wait for a driver that is blocked in a source's Next: a
// source that ignores cancellation is closed by the driver once its Next
// returns, and its Close error is then not reported.
//
// # Usage
//
//	src := pipeline.FromSlice([]int{1, 2, 3})
//	doubled, err := pipeline.ParallelTransform(src, func(_ context.Context, n int) (int, error) {
//	    return n * 2, nil
//	}, 2)
//	if err != nil {
//	    return err
//	}
//	results, err := pipeline.Collect(ctx, doubled) // [2 4 6]
package pipeline
