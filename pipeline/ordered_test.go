package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/kbukum/orderedpipe/errors"
	"github.com/kbukum/orderedpipe/executor"
	"github.com/kbukum/orderedpipe/logger"
	"github.com/kbukum/orderedpipe/observability"
)

// --- Helpers ---

func double(_ context.Context, n int) (int, error) { return n * 2, nil }

// ownedTracker replaces the owned pool factory for the duration of a test.
type ownedTracker struct {
	created   atomic.Int32
	shutdowns atomic.Int32
}

func trackOwned(t *testing.T) *ownedTracker {
	t.Helper()
	tr := &ownedTracker{}
	prev := ownedExecutor
	ownedExecutor = func(factor int) (executor.Executor, func()) {
		tr.created.Add(1)
		pool := executor.NewPool(factor)
		return pool, func() {
			tr.shutdowns.Add(1)
			pool.Shutdown()
		}
	}
	t.Cleanup(func() { ownedExecutor = prev })
	return tr
}

// countingExec runs each task on its own goroutine and counts submissions.
type countingExec struct {
	submitted atomic.Int32
}

func (e *countingExec) Submit(task func()) error {
	e.submitted.Add(1)
	go task()
	return nil
}

// naturals is an endless source 0, 1, 2, ... that honours cancellation.
type naturals struct {
	n      int
	closed atomic.Bool
}

func (s *naturals) Next(ctx context.Context) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	v := s.n
	s.n++
	return v, true, nil
}

func (s *naturals) Close() error {
	s.closed.Store(true)
	return nil
}

// rendezvous opens once parties goroutines have arrived, or when opened manually.
type rendezvous struct {
	parties int32
	arrived atomic.Int32
	once    sync.Once
	ch      chan struct{}
}

func newRendezvous(parties int32) *rendezvous {
	return &rendezvous{parties: parties, ch: make(chan struct{})}
}

func (r *rendezvous) arrive() {
	if r.arrived.Add(1) == r.parties {
		r.open()
	}
	<-r.ch
}

func (r *rendezvous) open() { r.once.Do(func() { close(r.ch) }) }

// syncBuffer is a bytes.Buffer safe for the driver and consumer goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

// --- Construction ---

func TestQueueCapacity(t *testing.T) {
	tests := []struct{ factor, want int }{
		{1, 1},
		{2, 2},
		{3, 4},
		{8, 14},
	}
	for _, tc := range tests {
		if got := QueueCapacity(tc.factor); got != tc.want {
			t.Errorf("QueueCapacity(%d) = %d, want %d", tc.factor, got, tc.want)
		}
	}
}

func TestParallelTransform_InvalidFactor(t *testing.T) {
	for _, factor := range []int{0, -1} {
		p, err := ParallelTransform(FromSlice([]int{1}), double, factor)
		if !apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument) {
			t.Errorf("factor %d: expected INVALID_ARGUMENT, got %v", factor, err)
		}
		if p != nil {
			t.Errorf("factor %d: expected nil pipeline", factor)
		}
		if _, err := ParallelTransformWith(FromSlice([]int{1}), double, factor, executor.Go); !apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument) {
			t.Errorf("factor %d: expected INVALID_ARGUMENT from With variant, got %v", factor, err)
		}
	}
}

func TestParallelTransformWith_NilExecutor(t *testing.T) {
	_, err := ParallelTransformWith(FromSlice([]int{1}), double, 2, nil)
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
	if appErr.Details["field"] != "executor" {
		t.Errorf("expected field=executor, got %v", appErr.Details["field"])
	}
}

func TestParallelTransform_Lazy(t *testing.T) {
	tr := trackOwned(t)
	calls := 0
	src := FromFunc(func(context.Context) Iterator[int] {
		calls++
		return &sliceIter[int]{items: []int{1}}
	})
	p, err := ParallelTransform(src, double, 2)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 0 || tr.created.Load() != 0 {
		t.Errorf("expected no work before traversal, got %d sources and %d pools", calls, tr.created.Load())
	}
	if _, err := Collect(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if calls != 1 || tr.created.Load() != 1 {
		t.Errorf("expected one source and one pool, got %d and %d", calls, tr.created.Load())
	}
}

// --- Results ---

func TestParallelTransform_Doubles(t *testing.T) {
	p, err := ParallelTransform(FromSlice([]int{1, 2, 3}), double, 2)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !intSliceEqual(got, []int{2, 4, 6}) {
		t.Errorf("got %v, want [2 4 6]", got)
	}
}

func TestParallelTransform_PreservesOrder(t *testing.T) {
	const n = 60
	src := make([]int, n)
	for i := range src {
		src[i] = i
	}
	slow := func(_ context.Context, v int) (int, error) {
		time.Sleep(time.Duration(rand.IntN(2000)) * time.Microsecond)
		return v * 10, nil
	}
	for factor := 1; factor <= 8; factor++ {
		p, err := ParallelTransform(FromSlice(src), slow, factor)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Collect(context.Background(), p)
		if err != nil {
			t.Fatalf("factor %d: %v", factor, err)
		}
		if len(got) != n {
			t.Fatalf("factor %d: expected %d results, got %d", factor, n, len(got))
		}
		for i, v := range got {
			if v != i*10 {
				t.Fatalf("factor %d: position %d holds %d", factor, i, v)
			}
		}
	}
}

func TestParallelTransform_EachValueOnce(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]int{}
	fn := func(_ context.Context, v int) (int, error) {
		mu.Lock()
		seen[v]++
		mu.Unlock()
		return v, nil
	}
	p, err := ParallelTransform(FromSlice([]int{5, 6, 7, 8, 9}), fn, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Collect(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	for v := 5; v <= 9; v++ {
		if seen[v] != 1 {
			t.Errorf("value %d computed %d times", v, seen[v])
		}
	}
}

func TestParallelTransform_EmptySource(t *testing.T) {
	exec := &countingExec{}
	p, err := ParallelTransformWith(FromSlice([]int{}), double, 4, exec)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
	if exec.submitted.Load() != 0 {
		t.Errorf("expected no submissions, got %d", exec.submitted.Load())
	}
}

func TestParallelTransform_TypeConversion(t *testing.T) {
	p, err := ParallelTransform(FromSlice([]string{"a", "bb", "ccc"}), func(_ context.Context, s string) (int, error) {
		return len(s), nil
	}, 3)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !intSliceEqual(got, []int{1, 2, 3}) {
		t.Errorf("got %v, want [1 2 3]", got)
	}
}

func TestParallelTransform_Retraversable(t *testing.T) {
	tr := trackOwned(t)
	p, err := ParallelTransform(FromSlice([]int{1, 2}), double, 2)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		got, err := Collect(context.Background(), p)
		if err != nil {
			t.Fatal(err)
		}
		if !intSliceEqual(got, []int{2, 4}) {
			t.Errorf("got %v, want [2 4]", got)
		}
	}
	if tr.created.Load() != 2 || tr.shutdowns.Load() != 2 {
		t.Errorf("expected one pool per traversal, got %d created, %d shut down", tr.created.Load(), tr.shutdowns.Load())
	}
}

// --- Errors ---

func TestParallelTransform_ItemError(t *testing.T) {
	errBad := errors.New("bad value")
	fn := func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, errBad
		}
		return n * 2, nil
	}
	p, err := ParallelTransform(FromSlice([]int{1, 2, 3}), fn, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	it := p.Iter(ctx)
	defer it.Close()

	if v, ok, err := it.Next(ctx); err != nil || !ok || v != 2 {
		t.Fatalf("first: val=%d ok=%v err=%v", v, ok, err)
	}
	_, ok, err := it.Next(ctx)
	if ok || !apperrors.IsCode(err, apperrors.ErrCodeItemFailed) {
		t.Fatalf("second: expected ITEM_FAILED, got ok=%v err=%v", ok, err)
	}
	if !errors.Is(err, errBad) {
		t.Error("expected the item error to wrap the computation error")
	}
	if idx, _ := apperrors.ItemIndex(err); idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}
	if v, ok, err := it.Next(ctx); err != nil || !ok || v != 6 {
		t.Fatalf("third: val=%d ok=%v err=%v", v, ok, err)
	}
	if _, ok, err := it.Next(ctx); err != nil || ok {
		t.Fatalf("expected end of sequence, got ok=%v err=%v", ok, err)
	}
}

func TestParallelTransform_Panic(t *testing.T) {
	fn := func(_ context.Context, n int) (int, error) {
		if n == 1 {
			panic("nil map")
		}
		return n, nil
	}
	p, err := ParallelTransform(FromSlice([]int{0, 1, 2}), fn, 2)
	if err != nil {
		t.Fatal(err)
	}
	var vals []int
	var errs []error
	for v, err := range p.Seq(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		vals = append(vals, v)
	}
	if !intSliceEqual(vals, []int{0, 2}) {
		t.Errorf("got %v, want [0 2]", vals)
	}
	if len(errs) != 1 || !apperrors.IsCode(errs[0], apperrors.ErrCodePanic) {
		t.Fatalf("expected one PANIC error, got %v", errs)
	}
	if idx, _ := apperrors.ItemIndex(errs[0]); idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}
}

func TestParallelTransform_SourceError(t *testing.T) {
	errRead := errors.New("read failed")
	n := 0
	src := FromFunc(func(context.Context) Iterator[int] {
		return &funcIter[int]{next: func(context.Context) (int, bool, error) {
			n++
			if n == 2 {
				return 0, false, errRead
			}
			return n, true, nil
		}}
	})
	p, err := ParallelTransform(src, double, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	it := p.Iter(ctx)
	defer it.Close()

	if v, ok, err := it.Next(ctx); err != nil || !ok || v != 2 {
		t.Fatalf("first: val=%d ok=%v err=%v", v, ok, err)
	}
	_, _, err = it.Next(ctx)
	if !apperrors.IsCode(err, apperrors.ErrCodeSourceFailed) || !errors.Is(err, errRead) {
		t.Fatalf("expected SOURCE_FAILED wrapping the read error, got %v", err)
	}
	if idx, _ := apperrors.ItemIndex(err); idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}
	if _, ok, err := it.Next(ctx); err != nil || ok {
		t.Fatalf("expected end of sequence, got ok=%v err=%v", ok, err)
	}
}

func TestParallelTransformWith_ExecutorRejects(t *testing.T) {
	pool := executor.NewPool(1)
	pool.Shutdown()
	pool.Wait()

	p, err := ParallelTransformWith(FromSlice([]int{1, 2}), double, 2, pool)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Collect(context.Background(), p)
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
	if !apperrors.IsCode(err, apperrors.ErrCodeExecutorShutdown) || !errors.Is(err, executor.ErrShutdown) {
		t.Errorf("expected EXECUTOR_SHUTDOWN, got %v", err)
	}
}

// --- Concurrency ---

func TestParallelTransformWith_Overlap(t *testing.T) {
	pool := executor.NewPool(2)
	defer pool.Shutdown()
	r := newRendezvous(2)
	fn := func(_ context.Context, v int) (int, error) {
		r.arrive()
		return v, nil
	}
	p, err := ParallelTransformWith(FromSlice([]int{1, 2}), fn, 2, pool)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := Collect(ctx, p)
	if err != nil {
		t.Fatalf("expected both computations to meet, got %v", err)
	}
	if !intSliceEqual(got, []int{1, 2}) {
		t.Errorf("got %v, want [1 2]", got)
	}
}

func TestParallelTransformWith_SingleWorkerCannotOverlap(t *testing.T) {
	pool := executor.NewPool(1)
	defer func() {
		pool.Shutdown()
		pool.Wait()
	}()
	r := newRendezvous(2)
	defer r.open()
	fn := func(_ context.Context, v int) (int, error) {
		r.arrive()
		return v, nil
	}
	p, err := ParallelTransformWith(FromSlice([]int{1, 2}), fn, 2, pool)
	if err != nil {
		t.Fatal(err)
	}
	it := p.Iter(context.Background())
	defer it.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, err = it.Next(ctx)
	if !apperrors.IsInterrupted(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected interruption by deadline, got %v", err)
	}
	if r.arrived.Load() != 1 {
		t.Errorf("expected exactly one computation to start, got %d", r.arrived.Load())
	}
}

func TestParallelTransformWith_Backpressure(t *testing.T) {
	pool := executor.NewPool(4)
	defer pool.Shutdown()
	src := &naturals{}
	p, err := ParallelTransformWith(From[int](src), double, 2, pool)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	it := p.Iter(ctx)

	time.Sleep(20 * time.Millisecond)
	if pool.Submitted() != 0 {
		t.Fatalf("expected no submissions before the first pull, got %d", pool.Submitted())
	}

	if v, ok, err := it.Next(ctx); err != nil || !ok || v != 0 {
		t.Fatalf("first: val=%d ok=%v err=%v", v, ok, err)
	}
	// One consumed, QueueCapacity(2) queued, one held by the blocked driver.
	want := int64(1 + QueueCapacity(2) + 1)
	waitFor(t, func() bool { return pool.Submitted() == want })
	time.Sleep(30 * time.Millisecond)
	if pool.Submitted() != want {
		t.Errorf("expected submissions to stay at %d, got %d", want, pool.Submitted())
	}

	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if !src.closed.Load() {
		t.Error("expected Close to close the source")
	}
}

// --- Cancellation and shutdown ---

func TestParallelTransform_ContextCancel(t *testing.T) {
	tr := trackOwned(t)
	src := &naturals{}
	p, err := ParallelTransform(From[int](src), double, 3)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	it := p.Iter(ctx)

	if _, ok, err := it.Next(ctx); err != nil || !ok {
		t.Fatalf("first: ok=%v err=%v", ok, err)
	}
	cancel()
	_, ok, err := it.Next(ctx)
	if ok || !apperrors.IsInterrupted(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected INTERRUPTED wrapping context.Canceled, got ok=%v err=%v", ok, err)
	}
	if _, _, again := it.Next(ctx); !apperrors.IsInterrupted(again) {
		t.Errorf("expected interruption to be terminal, got %v", again)
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, src.closed.Load)
	if tr.shutdowns.Load() != 1 {
		t.Errorf("expected 1 shutdown, got %d", tr.shutdowns.Load())
	}
}

func TestParallelTransform_CloseMidStream(t *testing.T) {
	tr := trackOwned(t)
	src := &naturals{}
	p, err := ParallelTransform(From[int](src), double, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	it := p.Iter(ctx)
	for i := range 3 {
		if v, ok, err := it.Next(ctx); err != nil || !ok || v != i*2 {
			t.Fatalf("pull %d: val=%d ok=%v err=%v", i, v, ok, err)
		}
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := it.Next(ctx); ok || !apperrors.IsInterrupted(err) {
		t.Errorf("expected INTERRUPTED after Close, got ok=%v err=%v", ok, err)
	}
	waitFor(t, src.closed.Load)
	if tr.created.Load() != 1 || tr.shutdowns.Load() != 1 {
		t.Errorf("expected 1 pool shut down once, got %d created, %d shut down", tr.created.Load(), tr.shutdowns.Load())
	}
}

func TestParallelTransform_CloseBeforePull(t *testing.T) {
	tr := trackOwned(t)
	src := &naturals{}
	p, err := ParallelTransform(From[int](src), double, 2)
	if err != nil {
		t.Fatal(err)
	}
	it := p.Iter(context.Background())
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if tr.created.Load() != 0 {
		t.Errorf("expected no pool, got %d", tr.created.Load())
	}
	if !src.closed.Load() {
		t.Error("expected source to be closed")
	}
}

func TestParallelTransform_SourceIgnoringCancellation(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	src := FromSeq(func(yield func(int) bool) {
		if !yield(1) {
			return
		}
		<-release
		yield(2)
	})
	p, err := ParallelTransform(src, double, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := Collect(ctx, p)
		done <- err
	}()
	select {
	case err := <-done:
		if !apperrors.IsInterrupted(err) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected INTERRUPTED wrapping the deadline, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Collect still blocked after the deadline")
	}
}

// rejectAfter accepts limit tasks and rejects the rest.
type rejectAfter struct {
	limit     int32
	submitted atomic.Int32
}

func (e *rejectAfter) Submit(task func()) error {
	if e.submitted.Add(1) > e.limit {
		return executor.ErrShutdown
	}
	go task()
	return nil
}

func TestParallelTransformWith_CancelledRejectionIsNotEndOfSequence(t *testing.T) {
	exec := &rejectAfter{limit: 1}
	p, err := ParallelTransformWith(FromSlice([]int{1, 2, 3}), double, 1, exec)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	it := p.Iter(ctx).(*orderedIter[int, int])
	defer it.Close()

	// The queue holds the first item, so the rejection cannot be queued.
	it.start()
	waitFor(t, func() bool { return exec.submitted.Load() == 2 })
	cancel()
	<-it.stopped
	if it.finished.Load() {
		t.Fatal("driver reported end of sequence for a rejection it never queued")
	}
	if _, ok, err := it.Next(ctx); ok || !apperrors.IsInterrupted(err) {
		t.Errorf("expected INTERRUPTED, got ok=%v err=%v", ok, err)
	}
}

func TestParallelTransform_EmptySourceCreatesNoPool(t *testing.T) {
	tr := trackOwned(t)
	p, err := ParallelTransform(FromSlice([]int{}), double, 4)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
	if tr.created.Load() != 0 || tr.shutdowns.Load() != 0 {
		t.Errorf("expected no pool, got %d created, %d shut down", tr.created.Load(), tr.shutdowns.Load())
	}
}

func TestParallelTransform_OwnedShutdownOnce(t *testing.T) {
	tr := trackOwned(t)
	p, err := ParallelTransform(FromSlice([]int{1, 2, 3}), double, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	it := p.Iter(ctx)
	for {
		_, ok, err := it.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
	}
	if tr.shutdowns.Load() != 1 {
		t.Fatalf("expected shutdown at end of sequence, got %d", tr.shutdowns.Load())
	}
	if _, ok, err := it.Next(ctx); ok || err != nil {
		t.Errorf("expected repeated end of sequence, got ok=%v err=%v", ok, err)
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if tr.shutdowns.Load() != 1 {
		t.Errorf("expected exactly one shutdown, got %d", tr.shutdowns.Load())
	}
}

func TestParallelTransformWith_BorrowedNeverShutDown(t *testing.T) {
	pool := executor.NewPool(2)
	defer pool.Shutdown()
	p, err := ParallelTransformWith(FromSlice([]int{1, 2, 3}), double, 2, pool)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if _, err := Collect(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
	if pool.IsShutdown() {
		t.Error("borrowed pool must not be shut down")
	}
}

func TestParallelTransformWith_Limited(t *testing.T) {
	l := executor.NewLimited(3)
	defer l.Shutdown()
	p, err := ParallelTransformWith(FromSlice([]int{1, 2, 3, 4, 5}), double, 3, l)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !intSliceEqual(got, []int{2, 4, 6, 8, 10}) {
		t.Errorf("got %v", got)
	}
}

// --- Options ---

func TestParallelTransform_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, err := observability.NewPipelineMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}

	fn := func(_ context.Context, n int) (int, error) {
		if n == 3 {
			return 0, errors.New("odd one out")
		}
		return n, nil
	}
	p, err := ParallelTransform(FromSlice([]int{1, 2, 3}), fn, 2, WithName("metered"), WithMetrics(metrics))
	if err != nil {
		t.Fatal(err)
	}
	for range p.Seq(context.Background()) {
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	want := map[string]int64{
		observability.MetricItemsSubmitted: 3,
		observability.MetricItemsCompleted: 3,
		observability.MetricItemsFailed:    1,
		observability.MetricInflight:       0,
		observability.MetricTraversals:     1,
	}
	for name, v := range want {
		if got := int64Sum(rm, name); got != v {
			t.Errorf("%s: expected %d, got %d", name, v, got)
		}
	}
}

func int64Sum(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestParallelTransform_Tracer(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	p, err := ParallelTransform(FromSlice([]int{1, 2, 3}), double, 2, WithTracer(tp.Tracer("test")))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Collect(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	var traversal tracetest.SpanStub
	var items []tracetest.SpanStub
	for _, s := range exporter.GetSpans() {
		switch s.Name {
		case observability.SpanTraversal:
			traversal = s
		case observability.SpanItem:
			items = append(items, s)
		}
	}
	if traversal.Name == "" {
		t.Fatal("expected a traversal span")
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 item spans, got %d", len(items))
	}
	for _, s := range items {
		if s.Parent.SpanID() != traversal.SpanContext.SpanID() {
			t.Error("expected item spans to be children of the traversal span")
		}
	}
}

func TestParallelTransform_Logger(t *testing.T) {
	var buf syncBuffer
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", &buf)
	p, err := ParallelTransform(FromSlice([]int{1, 2}), double, 2, WithName("logged"), WithLogger(log))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Collect(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"end of sequence", `"pipeline":"logged"`, `"run_id":`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in log output:\n%s", want, out)
		}
	}
}

// funcIter adapts a function to Iterator.
type funcIter[T any] struct {
	next func(context.Context) (T, bool, error)
}

func (it *funcIter[T]) Next(ctx context.Context) (T, bool, error) { return it.next(ctx) }

func (it *funcIter[T]) Close() error { return nil }
