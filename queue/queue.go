package queue

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/baxromumarov/syncevent"
)

var (
	// ErrClosed is returned by operations on a closed queue or channel.
	ErrClosed = errors.New("queue: closed")

	// ErrReset is returned to callers blocked across a Reset.
	ErrReset = errors.New("queue: reset")
)

// Unbounded is reported by Cap and RemainingCapacity of a queue created
// with capacity 0.
const Unbounded = math.MaxInt

type signal uint8

const (
	sigPushed signal = iota + 1
	sigConsumed
	sigClosed
	sigReset
)

// Queue is a FIFO safe for any number of producers and consumers. Push
// blocks while the queue is full and Read blocks while it is empty.
//
// A Queue moves between open and closed: Close fails every pending and
// later call and drops the content, Reset drops the content, fails
// pending calls and leaves the queue open.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool
	gen      uint64

	signals *syncevent.Hub[signal, struct{}]
}

// New returns an open queue holding at most capacity items. Zero means
// unbounded. It panics if capacity is negative.
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		panic("queue: New requires capacity >= 0")
	}
	return &Queue[T]{
		capacity: capacity,
		signals:  syncevent.New[signal, struct{}](),
	}
}

// Push appends items in order, blocking whenever the queue is full. It
// returns how many items were appended. On a closed queue it returns
// (0, ErrClosed) without touching the queue; a Close or Reset while
// blocked ends it with ErrClosed or ErrReset.
func (q *Queue[T]) Push(ctx context.Context, items ...T) (int, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, ErrClosed
	}
	gen := q.gen
	q.mu.Unlock()

	pushed := 0
	for pushed < len(items) {
		q.mu.Lock()
		if err := q.checkLocked(gen); err != nil {
			q.mu.Unlock()
			return pushed, err
		}
		if q.fullLocked() {
			f := q.awaitLocked(sigConsumed)
			q.mu.Unlock()
			if err := wait(ctx, f); err != nil {
				return pushed, err
			}
			continue
		}
		for pushed < len(items) && !q.fullLocked() {
			q.items = append(q.items, items[pushed])
			pushed++
		}
		q.mu.Unlock()
		q.signals.Emit(sigPushed, struct{}{})
	}
	return pushed, nil
}

// TryPush appends all items or none. It fails if the queue is closed or
// cannot take every item right now.
func (q *Queue[T]) TryPush(items ...T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.capacity > 0 && len(q.items)+len(items) > q.capacity {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, items...)
	q.mu.Unlock()

	if len(items) > 0 {
		q.signals.Emit(sigPushed, struct{}{})
	}
	return true
}

// Read removes and returns the oldest item, blocking while the queue is
// empty.
func (q *Queue[T]) Read(ctx context.Context) (T, error) {
	var zero T

	q.mu.Lock()
	gen := q.gen
	for {
		if err := q.checkLocked(gen); err != nil {
			q.mu.Unlock()
			return zero, err
		}
		if len(q.items) > 0 {
			v := q.popLocked()
			q.mu.Unlock()
			q.signals.Emit(sigConsumed, struct{}{})
			return v, nil
		}
		f := q.awaitLocked(sigPushed)
		q.mu.Unlock()
		if err := wait(ctx, f); err != nil {
			return zero, err
		}
		q.mu.Lock()
	}
}

// TryRead removes and returns the oldest item. It fails if the queue is
// closed or empty.
func (q *Queue[T]) TryRead() (T, bool) {
	q.mu.Lock()
	if q.closed || len(q.items) == 0 {
		q.mu.Unlock()
		var zero T
		return zero, false
	}
	v := q.popLocked()
	q.mu.Unlock()
	q.signals.Emit(sigConsumed, struct{}{})
	return v, true
}

// Peek returns the oldest item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

// Close marks the queue closed, drops its content and fails every blocked
// caller with ErrClosed. Closing twice is a no-op.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.signals.Emit(sigClosed, struct{}{})
}

// Reset drops the content, fails every blocked caller with ErrReset and
// reopens the queue if it was closed.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	q.closed = false
	q.items = nil
	q.gen++
	q.mu.Unlock()
	q.signals.Emit(sigReset, struct{}{})
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the capacity, or Unbounded.
func (q *Queue[T]) Cap() int {
	if q.capacity == 0 {
		return Unbounded
	}
	return q.capacity
}

// RemainingCapacity returns how many more items fit, or Unbounded.
func (q *Queue[T]) RemainingCapacity() int {
	if q.capacity == 0 {
		return Unbounded
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - len(q.items)
}

func (q *Queue[T]) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fullLocked()
}

func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) fullLocked() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}

func (q *Queue[T]) popLocked() T {
	var zero T
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return v
}

// checkLocked fails a call that started in generation gen once the queue
// has been closed or reset.
func (q *Queue[T]) checkLocked(gen uint64) error {
	if q.gen != gen {
		return ErrReset
	}
	if q.closed {
		return ErrClosed
	}
	return nil
}

// awaitLocked registers a wait for progress, close or reset. It must be
// called with q.mu held so that a signal emitted after the caller unlocks
// is observed.
func (q *Queue[T]) awaitLocked(progress signal) *syncevent.Future[syncevent.Fired[signal, struct{}]] {
	f, _ := q.signals.AwaitRace(
		syncevent.WaitSpec[signal, struct{}]{Event: progress},
		syncevent.WaitSpec[signal, struct{}]{Event: sigClosed},
		syncevent.WaitSpec[signal, struct{}]{Event: sigReset},
	)
	return f
}

// wait blocks until f settles. If ctx ends first f is cancelled, which
// releases its listeners.
func wait[T any](ctx context.Context, f *syncevent.Future[T]) error {
	if _, err := f.Get(ctx); err != nil {
		f.Cancel()
		return err
	}
	return nil
}
