package pipeline

import (
	"context"

	"github.com/kbukum/orderedpipe/executor"
)

// matched carries a value together with its predicate outcome.
type matched[T any] struct {
	val  T
	keep bool
}

// ParallelFilter evaluates pred on up to factor values concurrently and yields
// the values it holds for, in source order.
//
// Only the predicate runs concurrently: dropping the rejected values happens
// on the consumer's goroutine. The worker pool is owned by each traversal, as
// in ParallelTransform.
func ParallelFilter[T any](p *Pipeline[T], pred func(context.Context, T) (bool, error), factor int, opts ...Option) (*Pipeline[T], error) {
	create, err := ownedTransform(p, tag(pred), factor, opts)
	if err != nil {
		return nil, err
	}
	return kept(create), nil
}

// ParallelFilterWith is ParallelFilter on a caller-supplied executor, which is
// never shut down by the pipeline.
func ParallelFilterWith[T any](p *Pipeline[T], pred func(context.Context, T) (bool, error), factor int, exec executor.Executor, opts ...Option) (*Pipeline[T], error) {
	create, err := borrowedTransform(p, tag(pred), factor, exec, opts)
	if err != nil {
		return nil, err
	}
	return kept(create), nil
}

// ParallelFilter is the chainable form of the package-level ParallelFilter.
func (p *Pipeline[T]) ParallelFilter(pred func(context.Context, T) (bool, error), factor int, opts ...Option) (*Pipeline[T], error) {
	return ParallelFilter(p, pred, factor, opts...)
}

// ParallelFilterWith is the chainable form of the package-level ParallelFilterWith.
func (p *Pipeline[T]) ParallelFilterWith(pred func(context.Context, T) (bool, error), factor int, exec executor.Executor, opts ...Option) (*Pipeline[T], error) {
	return ParallelFilterWith(p, pred, factor, exec, opts...)
}

func tag[T any](pred func(context.Context, T) (bool, error)) func(context.Context, T) (matched[T], error) {
	return func(ctx context.Context, v T) (matched[T], error) {
		keep, err := pred(ctx, v)
		return matched[T]{val: v, keep: keep}, err
	}
}

// kept wraps a tagged traversal factory into a pipeline of the kept values.
func kept[T any](create func(context.Context) Iterator[matched[T]]) *Pipeline[T] {
	return &Pipeline[T]{
		create: func(ctx context.Context) Iterator[T] {
			return &keptIter[T]{source: create(ctx)}
		},
	}
}

// keptIter drops rejected values on the consumer's goroutine.
type keptIter[T any] struct {
	source Iterator[matched[T]]
}

func (it *keptIter[T]) Next(ctx context.Context) (T, bool, error) {
	for {
		m, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			var zero T
			return zero, false, err
		}
		if m.keep {
			return m.val, true, nil
		}
	}
}

func (it *keptIter[T]) Close() error { return it.source.Close() }
