package syncevent

import (
	"context"
	"sync"
)

type ringSignal uint8

const (
	ringRead ringSignal = iota + 1
	ringWrite
)

// RingBuffer is a fixed-capacity FIFO whose Write blocks while full and
// whose Read blocks while empty. Blocked callers are woken through an
// internal hub signalled on every read and write.
type RingBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity uint64
	readIdx  uint64
	writeIdx uint64

	// indices are folded back below capacity once writeIdx passes this
	normalizeAt uint64

	signals *Hub[ringSignal, struct{}]
}

// NewRingBuffer returns an empty buffer holding at most capacity items.
// It panics if capacity <= 0.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("syncevent: NewRingBuffer requires capacity > 0")
	}
	c := uint64(capacity)
	return &RingBuffer[T]{
		items:       make([]T, capacity),
		capacity:    c,
		normalizeAt: c * 10,
		signals:     New[ringSignal, struct{}](),
	}
}

// Write inserts v, blocking while the buffer is full. It returns ctx.Err()
// if ctx is done first.
func (rb *RingBuffer[T]) Write(ctx context.Context, v T) error {
	for {
		rb.mu.Lock()
		if !rb.full() {
			rb.put(v)
			rb.mu.Unlock()
			rb.signals.Emit(ringWrite, struct{}{})
			return nil
		}
		// Registered before unlocking so a read in between is not missed.
		f, _ := rb.signals.Await(WaitSpec[ringSignal, struct{}]{Event: ringRead})
		rb.mu.Unlock()

		if _, err := await(ctx, f); err != nil {
			return err
		}
	}
}

// TryWrite inserts v if there is room and reports whether it did.
func (rb *RingBuffer[T]) TryWrite(v T) bool {
	rb.mu.Lock()
	if rb.full() {
		rb.mu.Unlock()
		return false
	}
	rb.put(v)
	rb.mu.Unlock()
	rb.signals.Emit(ringWrite, struct{}{})
	return true
}

// Overwrite inserts v, evicting the oldest item when the buffer is full.
// It returns the evicted item and whether one was evicted.
func (rb *RingBuffer[T]) Overwrite(v T) (evicted T, replaced bool) {
	rb.mu.Lock()
	if rb.full() {
		evicted = rb.take()
		replaced = true
	}
	rb.put(v)
	rb.mu.Unlock()

	if replaced {
		rb.signals.Emit(ringRead, struct{}{})
	}
	rb.signals.Emit(ringWrite, struct{}{})
	return evicted, replaced
}

// WriteAll writes vs one by one, blocking on each as Write does. On error
// it returns how many were written.
func (rb *RingBuffer[T]) WriteAll(ctx context.Context, vs ...T) (int, error) {
	for i, v := range vs {
		if err := rb.Write(ctx, v); err != nil {
			return i, err
		}
	}
	return len(vs), nil
}

// Read removes and returns the oldest item, blocking while the buffer is
// empty.
func (rb *RingBuffer[T]) Read(ctx context.Context) (T, error) {
	for {
		rb.mu.Lock()
		if rb.len() > 0 {
			v := rb.take()
			rb.mu.Unlock()
			rb.signals.Emit(ringRead, struct{}{})
			return v, nil
		}
		f, _ := rb.signals.Await(WaitSpec[ringSignal, struct{}]{Event: ringWrite})
		rb.mu.Unlock()

		if _, err := await(ctx, f); err != nil {
			var zero T
			return zero, err
		}
	}
}

// TryRead removes and returns the oldest item if there is one.
func (rb *RingBuffer[T]) TryRead() (T, bool) {
	rb.mu.Lock()
	if rb.len() == 0 {
		rb.mu.Unlock()
		var zero T
		return zero, false
	}
	v := rb.take()
	rb.mu.Unlock()
	rb.signals.Emit(ringRead, struct{}{})
	return v, true
}

// ReadAll blocks until the buffer is non-empty and then drains it.
func (rb *RingBuffer[T]) ReadAll(ctx context.Context) ([]T, error) {
	for {
		rb.mu.Lock()
		if n := rb.len(); n > 0 {
			out := make([]T, 0, n)
			for rb.len() > 0 {
				out = append(out, rb.take())
			}
			rb.mu.Unlock()
			rb.signals.Emit(ringRead, struct{}{})
			return out, nil
		}
		f, _ := rb.signals.Await(WaitSpec[ringSignal, struct{}]{Event: ringWrite})
		rb.mu.Unlock()

		if _, err := await(ctx, f); err != nil {
			return nil, err
		}
	}
}

// Len returns the number of buffered items.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return int(rb.len())
}

// Cap returns the capacity.
func (rb *RingBuffer[T]) Cap() int {
	return int(rb.capacity)
}

func (rb *RingBuffer[T]) IsEmpty() bool {
	return rb.Len() == 0
}

func (rb *RingBuffer[T]) IsFull() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.full()
}

func (rb *RingBuffer[T]) len() uint64 {
	return rb.writeIdx - rb.readIdx
}

func (rb *RingBuffer[T]) full() bool {
	return rb.len() >= rb.capacity
}

func (rb *RingBuffer[T]) put(v T) {
	rb.items[rb.writeIdx%rb.capacity] = v
	rb.writeIdx++
	if rb.writeIdx > rb.normalizeAt {
		base := rb.readIdx - rb.readIdx%rb.capacity
		rb.readIdx -= base
		rb.writeIdx -= base
	}
}

func (rb *RingBuffer[T]) take() T {
	var zero T
	i := rb.readIdx % rb.capacity
	v := rb.items[i]
	rb.items[i] = zero
	rb.readIdx++
	return v
}
