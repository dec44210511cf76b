package syncevent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WaitSpec describes a single wait on a hub.
type WaitSpec[K comparable, P any] struct {
	// Event to wait for. The zero value of K is rejected.
	Event K

	// Timeout rejects the wait with ErrTimeout once elapsed. Zero waits
	// forever.
	Timeout time.Duration

	// Where filters dispatches. A false result keeps waiting; an error (or
	// a panic) rejects the wait with that error.
	Where func(P) (bool, error)

	// MapToError turns a matched dispatch into a failure: a non-nil result
	// rejects the wait with it instead of resolving.
	MapToError func(P) error
}

// Fired is a dispatch observed by a race, an any-wait or a stream.
type Fired[K comparable, P any] struct {
	Event K
	Value P
}

// Await registers a wait described by spec and returns its future without
// blocking. The listener is removed once the future settles, whichever way.
/* Example:
	f, err := hub.Await(syncevent.WaitSpec[string, int]{
		Event:   "ready",
		Timeout: time.Second,
	})
	if err != nil {
		return err
	}
	v, err := f.Get(ctx)
*/
func (h *Hub[K, P]) Await(spec WaitSpec[K, P]) (*Future[P], error) {
	var zero K
	if spec.Event == zero {
		return nil, newValidationError("wait event", "must be specified")
	}
	if spec.Timeout < 0 {
		return nil, newValidationError("wait timeout", "must not be negative")
	}

	f := newFuture[P]()
	l := h.On(spec.Event, func(p P) {
		if f.Settled() {
			return
		}
		if spec.Where != nil {
			ok, err := matchWhere(spec.Event, spec.Where, p)
			if err != nil {
				f.reject(err)
				return
			}
			if !ok {
				return
			}
		}
		if spec.MapToError != nil {
			if err := mapToError(spec.Event, spec.MapToError, p); err != nil {
				f.reject(err)
				return
			}
		}
		f.resolve(p)
	})
	f.addCleanup(l.Cancel)

	if spec.Timeout > 0 {
		t := h.cfg.clock.AfterFunc(spec.Timeout, func() { f.reject(ErrTimeout) })
		f.addCleanup(func() { t.Stop() })
	}
	return f, nil
}

// WaitUntil blocks until the wait described by spec settles. If ctx is done
// first the wait is cancelled and ctx.Err() is returned.
func (h *Hub[K, P]) WaitUntil(ctx context.Context, spec WaitSpec[K, P]) (P, error) {
	f, err := h.Await(spec)
	if err != nil {
		var zero P
		return zero, err
	}
	return await(ctx, f)
}

// WaitEvent blocks until the next dispatch of event.
func (h *Hub[K, P]) WaitEvent(ctx context.Context, event K) (P, error) {
	return h.WaitUntil(ctx, WaitSpec[K, P]{Event: event})
}

// AwaitAll waits for every spec. The future resolves with the payloads in
// argument order, or rejects with the first failure. Members still pending when
// the group settles are cancelled.
func (h *Hub[K, P]) AwaitAll(specs ...WaitSpec[K, P]) (*Future[[]P], error) {
	members, err := h.awaitMembers(specs)
	if err != nil {
		return nil, err
	}
	out := newFuture[[]P]()
	out.addCleanup(func() { cancelAll(members) })

	var mu sync.Mutex
	remaining := len(members)
	for _, m := range members {
		m.whenSettled(func() {
			if _, err := m.Result(); err != nil {
				out.reject(err)
				return
			}
			mu.Lock()
			remaining--
			last := remaining == 0
			mu.Unlock()
			if !last {
				return
			}
			vals := make([]P, len(members))
			for i, member := range members {
				vals[i], _ = member.Result()
			}
			out.resolve(vals)
		})
	}
	return out, nil
}

// WaitAll is the blocking form of AwaitAll.
func (h *Hub[K, P]) WaitAll(ctx context.Context, specs ...WaitSpec[K, P]) ([]P, error) {
	f, err := h.AwaitAll(specs...)
	if err != nil {
		return nil, err
	}
	return await(ctx, f)
}

// AwaitRace settles with the first member wait to settle, success or
// failure. Every other member is cancelled.
func (h *Hub[K, P]) AwaitRace(specs ...WaitSpec[K, P]) (*Future[Fired[K, P]], error) {
	members, err := h.awaitMembers(specs)
	if err != nil {
		return nil, err
	}
	out := newFuture[Fired[K, P]]()
	out.addCleanup(func() { cancelAll(members) })

	for i, m := range members {
		event := specs[i].Event
		m.whenSettled(func() {
			v, err := m.Result()
			out.settle(Fired[K, P]{Event: event, Value: v}, err)
		})
	}
	return out, nil
}

// WaitRace is the blocking form of AwaitRace.
func (h *Hub[K, P]) WaitRace(ctx context.Context, specs ...WaitSpec[K, P]) (Fired[K, P], error) {
	f, err := h.AwaitRace(specs...)
	if err != nil {
		return Fired[K, P]{}, err
	}
	return await(ctx, f)
}

// AwaitAny resolves with the first member wait to succeed. If every member
// fails it rejects with an *AggregateError holding the failures in argument
// order.
func (h *Hub[K, P]) AwaitAny(specs ...WaitSpec[K, P]) (*Future[Fired[K, P]], error) {
	members, err := h.awaitMembers(specs)
	if err != nil {
		return nil, err
	}
	out := newFuture[Fired[K, P]]()
	out.addCleanup(func() { cancelAll(members) })

	var mu sync.Mutex
	errs := make([]error, len(members))
	failed := 0
	for i, m := range members {
		event := specs[i].Event
		m.whenSettled(func() {
			v, err := m.Result()
			if err == nil {
				out.resolve(Fired[K, P]{Event: event, Value: v})
				return
			}
			mu.Lock()
			errs[i] = err
			failed++
			all := failed == len(members)
			mu.Unlock()
			if all {
				out.reject(newAggregateError(errs))
			}
		})
	}
	return out, nil
}

// WaitAny is the blocking form of AwaitAny.
func (h *Hub[K, P]) WaitAny(ctx context.Context, specs ...WaitSpec[K, P]) (Fired[K, P], error) {
	f, err := h.AwaitAny(specs...)
	if err != nil {
		return Fired[K, P]{}, err
	}
	return await(ctx, f)
}

func (h *Hub[K, P]) awaitMembers(specs []WaitSpec[K, P]) ([]*Future[P], error) {
	if len(specs) == 0 {
		return nil, newValidationError("wait list", "must not be empty")
	}
	members := make([]*Future[P], 0, len(specs))
	for i, spec := range specs {
		f, err := h.Await(spec)
		if err != nil {
			cancelAll(members)
			return nil, fmt.Errorf("wait[%d]: %w", i, err)
		}
		members = append(members, f)
	}
	return members, nil
}

func cancelAll[T any](members []*Future[T]) {
	for _, m := range members {
		m.Cancel()
	}
}

func matchWhere[P any](event any, where func(P) (bool, error), p P) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, newPanicError(event, r)
		}
	}()
	return where(p)
}

func mapToError[P any](event any, fn func(P) error, p P) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(event, r)
		}
	}()
	return fn(p)
}
