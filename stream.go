package syncevent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// FullStrategy selects what a bounded stream does with a dispatch arriving
// while its buffer is full.
type FullStrategy int

const (
	// ReplaceOldest evicts the oldest buffered cell to make room.
	ReplaceOldest FullStrategy = iota
	// DropNewest discards the arriving cell.
	DropNewest
)

func (s FullStrategy) String() string {
	switch s {
	case ReplaceOldest:
		return "replace"
	case DropNewest:
		return "drop"
	default:
		return "unknown"
	}
}

// StreamStrategy configures an [EventStream]. A zero Capacity buffers
// without bound.
type StreamStrategy struct {
	Capacity int
	WhenFull FullStrategy
}

func (s StreamStrategy) validate() error {
	if s.Capacity < 0 {
		return newValidationError("stream capacity", "must not be negative")
	}
	if s.WhenFull != ReplaceOldest && s.WhenFull != DropNewest {
		return newValidationError("stream strategy", "must be ReplaceOldest or DropNewest")
	}
	return nil
}

// EventStream is a pull-based view of the dispatches of a set of events.
//
// Note: EventStream is meant for a single consumer. Concurrent Next calls
// are safe but the order in which consumers receive cells is unspecified.
type EventStream[K comparable, P any] struct {
	listener *Listener[K, P]

	mu      sync.Mutex
	ring    *RingBuffer[Fired[K, P]]
	pending []Fired[K, P]
	policy  FullStrategy

	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	dropped  atomic.Int64
	replaced atomic.Int64
}

// Stream subscribes to events and buffers their dispatches as [Fired]
// cells until they are pulled with Next. Close releases the subscription.
/* Example:
	s, err := hub.Stream([]string{"tick", "tock"}, syncevent.StreamStrategy{Capacity: 16})
	if err != nil {
		return err
	}
	defer s.Close()
	for {
		cell, err := s.Next(ctx)
		if err != nil {
			return err
		}
		handle(cell.Event, cell.Value)
	}
*/
func (h *Hub[K, P]) Stream(events []K, strategy StreamStrategy) (*EventStream[K, P], error) {
	if len(events) == 0 {
		return nil, newValidationError("stream events", "must not be empty")
	}
	if err := strategy.validate(); err != nil {
		return nil, err
	}

	s := &EventStream[K, P]{
		policy: strategy.WhenFull,
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	if strategy.Capacity > 0 {
		s.ring = NewRingBuffer[Fired[K, P]](strategy.Capacity)
	}

	var l *Listener[K, P]
	for _, event := range events {
		fn := func(p P) { s.push(Fired[K, P]{Event: event, Value: p}) }
		if l == nil {
			l = h.On(event, fn)
		} else {
			l = l.On(event, fn)
		}
	}
	s.listener = l
	return s, nil
}

// StreamChan feeds the dispatches of events into the returned channel
// until ctx is done, at which point the subscription is released and the
// channel closed.
func (h *Hub[K, P]) StreamChan(ctx context.Context, events []K, strategy StreamStrategy) (<-chan Fired[K, P], error) {
	s, err := h.Stream(events, strategy)
	if err != nil {
		return nil, err
	}
	ch := make(chan Fired[K, P])
	go func() {
		defer close(ch)
		defer s.Close()
		for {
			cell, err := s.Next(ctx)
			if err != nil {
				return
			}
			select {
			case ch <- cell:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Next returns the oldest buffered cell, blocking until one arrives. After
// Close the remaining cells are still returned, then ErrStreamClosed.
func (s *EventStream[K, P]) Next(ctx context.Context) (Fired[K, P], error) {
	for {
		if cell, ok := s.TryNext(); ok {
			return cell, nil
		}
		select {
		case <-s.notify:
		case <-s.closed:
			if cell, ok := s.TryNext(); ok {
				return cell, nil
			}
			return Fired[K, P]{}, ErrStreamClosed
		case <-ctx.Done():
			return Fired[K, P]{}, ctx.Err()
		}
	}
}

// TryNext returns the oldest buffered cell without blocking.
func (s *EventStream[K, P]) TryNext() (Fired[K, P], bool) {
	s.mu.Lock()
	var (
		cell Fired[K, P]
		ok   bool
		more bool
	)
	if s.ring != nil {
		cell, ok = s.ring.TryRead()
		more = s.ring.Len() > 0
	} else if len(s.pending) > 0 {
		cell, ok = s.pending[0], true
		s.pending[0] = Fired[K, P]{}
		s.pending = s.pending[1:]
		more = len(s.pending) > 0
	}
	s.mu.Unlock()

	if more {
		s.signal()
	}
	return cell, ok
}

// ForEach calls fn for every cell until the stream is closed and drained,
// ctx is done or fn returns an error. A closed stream ends ForEach with a
// nil error.
func (s *EventStream[K, P]) ForEach(ctx context.Context, fn func(Fired[K, P]) error) error {
	for {
		cell, err := s.Next(ctx)
		if errors.Is(err, ErrStreamClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(cell); err != nil {
			return err
		}
	}
}

// Close removes the stream's listeners. Buffered cells stay readable.
// Close is idempotent.
func (s *EventStream[K, P]) Close() {
	s.closeOnce.Do(func() {
		s.listener.Cancel()
		close(s.closed)
	})
}

// Len returns the number of buffered cells.
func (s *EventStream[K, P]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ring != nil {
		return s.ring.Len()
	}
	return len(s.pending)
}

// Dropped returns how many cells a full DropNewest stream discarded.
func (s *EventStream[K, P]) Dropped() int64 {
	return s.dropped.Load()
}

// Replaced returns how many cells a full ReplaceOldest stream evicted.
func (s *EventStream[K, P]) Replaced() int64 {
	return s.replaced.Load()
}

func (s *EventStream[K, P]) push(cell Fired[K, P]) {
	s.mu.Lock()
	switch {
	case s.ring == nil:
		s.pending = append(s.pending, cell)
	case s.policy == DropNewest:
		if !s.ring.TryWrite(cell) {
			s.mu.Unlock()
			s.dropped.Add(1)
			return
		}
	default:
		if _, replaced := s.ring.Overwrite(cell); replaced {
			s.replaced.Add(1)
		}
	}
	s.mu.Unlock()
	s.signal()
}

func (s *EventStream[K, P]) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
