package syncevent

import (
	"context"
	"sync"
)

// Future holds the outcome of a pending wait. It settles exactly once,
// either resolved with a value or rejected with an error. Futures are
// returned by the non-blocking Await family of [Hub].
type Future[T any] struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	val     T
	err     error

	// cleanup runs once on settlement before onSettle callbacks.
	cleanup  []func()
	onSettle []func()
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Done returns a channel that is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the future settles or ctx is done. Abandoning a Get
// through ctx does not cancel the future.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled outcome, or ErrPending if the future has not
// settled yet.
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
		var zero T
		return zero, ErrPending
	}
}

// Settled reports whether the future has settled.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Cancel rejects the future with ErrCanceled and releases its listener and
// timer. It reports false if the future had already settled.
func (f *Future[T]) Cancel() bool {
	return f.reject(ErrCanceled)
}

func (f *Future[T]) resolve(v T) bool {
	return f.settle(v, nil)
}

func (f *Future[T]) reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.val = v
	f.err = err
	cleanup, callbacks := f.cleanup, f.onSettle
	f.cleanup, f.onSettle = nil, nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range cleanup {
		fn()
	}
	for _, fn := range callbacks {
		fn()
	}
	return true
}

// addCleanup runs fn on settlement, or right away if already settled.
func (f *Future[T]) addCleanup(fn func()) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		fn()
		return
	}
	f.cleanup = append(f.cleanup, fn)
	f.mu.Unlock()
}

// whenSettled is addCleanup for observers; it runs after all cleanups.
func (f *Future[T]) whenSettled(fn func()) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		fn()
		return
	}
	f.onSettle = append(f.onSettle, fn)
	f.mu.Unlock()
}

// await blocks on f until it settles or ctx is done. On ctx it cancels f,
// unless f won the race and settled first.
func await[T any](ctx context.Context, f *Future[T]) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		if f.Cancel() {
			var zero T
			return zero, ctx.Err()
		}
		<-f.done
		return f.val, f.err
	}
}
