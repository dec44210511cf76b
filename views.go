package syncevent

import "context"

// Subscriber is the listening side of a [Hub].
type Subscriber[K comparable, P any] interface {
	On(event K, fn Handler[P], opts ...ListenerOption) *Listener[K, P]
	Once(event K, fn Handler[P]) *Listener[K, P]
	Any(fn AnyHandler[K, P]) CancelFunc
	Off(l *Listener[K, P])
	ListenerCount(event K) int

	Await(spec WaitSpec[K, P]) (*Future[P], error)
	WaitUntil(ctx context.Context, spec WaitSpec[K, P]) (P, error)
	WaitEvent(ctx context.Context, event K) (P, error)
	WaitAll(ctx context.Context, specs ...WaitSpec[K, P]) ([]P, error)
	WaitRace(ctx context.Context, specs ...WaitSpec[K, P]) (Fired[K, P], error)
	WaitAny(ctx context.Context, specs ...WaitSpec[K, P]) (Fired[K, P], error)

	Stream(events []K, strategy StreamStrategy) (*EventStream[K, P], error)
	StreamChan(ctx context.Context, events []K, strategy StreamStrategy) (<-chan Fired[K, P], error)
}

// Publisher is the dispatching side of a [Hub].
type Publisher[K comparable, P any] interface {
	Emit(event K, payload P)
}

var (
	_ Subscriber[string, any] = (*Hub[string, any])(nil)
	_ Publisher[string, any]  = (*Hub[string, any])(nil)
)

// Subscriber returns h narrowed to its listening methods, for handing to
// code that must not dispatch.
func (h *Hub[K, P]) Subscriber() Subscriber[K, P] {
	return h
}

// Publisher returns h narrowed to Emit.
func (h *Hub[K, P]) Publisher() Publisher[K, P] {
	return h
}
