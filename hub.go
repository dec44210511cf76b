package syncevent

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/baxromumarov/syncevent/internal/collection"
)

// Handler receives the payload of a dispatched event.
type Handler[P any] func(P)

// AnyHandler receives every dispatch of a hub together with its event.
type AnyHandler[K comparable, P any] func(K, P)

// CancelFunc removes a registration. Calling it more than once is a no-op.
type CancelFunc func()

// Hub is a typed event hub. K names events and P is the payload carried by
// a dispatch. Handlers run synchronously on the goroutine calling
// [Hub.Emit], in registration order, followed by any-handlers.
//
// A Hub is safe for concurrent use. Handlers are invoked outside the hub's
// internal lock, so they may register, remove or emit freely.
type Hub[K comparable, P any] struct {
	cfg config

	mu          sync.Mutex
	handlers    *collection.Map[K, *collection.Set[*registration[K, P]]]
	anyHandlers *collection.Set[*anyRegistration[K, P]]
	count       int

	intercepted atomic.Bool
}

type registration[K comparable, P any] struct {
	event  K
	fn     Handler[P]
	once   bool
	policy *policy[P]
	live   atomic.Bool
}

type anyRegistration[K comparable, P any] struct {
	fn   AnyHandler[K, P]
	live atomic.Bool
}

// New creates an empty hub.
func New[K comparable, P any](opts ...Option) *Hub[K, P] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newHub[K, P](cfg)
}

func newHub[K comparable, P any](cfg config) *Hub[K, P] {
	return &Hub[K, P]{
		cfg:         cfg,
		handlers:    collection.NewMap[K, *collection.Set[*registration[K, P]]](),
		anyHandlers: collection.NewSet[*anyRegistration[K, P]](),
	}
}

// On registers fn for event and returns a listener handle that removes it.
//
// It panics if fn is nil or if opts describe an invalid policy; the panic
// value for a bad policy is a *ValidationError.
func (h *Hub[K, P]) On(event K, fn Handler[P], opts ...ListenerOption) *Listener[K, P] {
	if fn == nil {
		panic("syncevent: On requires non-nil handler")
	}
	var lc listenerConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if err := lc.validate(); err != nil {
		panic(err)
	}

	reg := &registration[K, P]{event: event, fn: fn}
	if lc.active() {
		reg.policy = newPolicy(lc, h.cfg.clock, h.cfg.logger, func(p P) {
			h.invoke(event, func() { fn(p) })
		})
	}
	h.add(reg)
	return &Listener[K, P]{hub: h, regs: []*registration[K, P]{reg}}
}

// Once registers fn for the next dispatch of event only. The registration
// is removed before fn runs, so fn fires exactly once even under
// concurrent dispatch. Cancelling the returned listener first prevents it
// from firing at all.
func (h *Hub[K, P]) Once(event K, fn Handler[P]) *Listener[K, P] {
	if fn == nil {
		panic("syncevent: Once requires non-nil handler")
	}
	reg := &registration[K, P]{event: event, fn: fn, once: true}
	h.add(reg)
	return &Listener[K, P]{hub: h, regs: []*registration[K, P]{reg}}
}

// Any registers fn for every dispatch of the hub. Any-handlers run after
// the per-event handlers of a dispatch.
func (h *Hub[K, P]) Any(fn AnyHandler[K, P]) CancelFunc {
	if fn == nil {
		panic("syncevent: Any requires non-nil handler")
	}
	reg := &anyRegistration[K, P]{fn: fn}

	h.mu.Lock()
	h.anyHandlers.Add(reg)
	h.count++
	reg.live.Store(true)
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if !reg.live.Load() {
			return
		}
		reg.live.Store(false)
		h.anyHandlers.Delete(reg)
		h.count--
	}
}

// Off removes every registration held by l. It is equivalent to l.Cancel().
func (h *Hub[K, P]) Off(l *Listener[K, P]) {
	l.Cancel()
}

// OffAll removes the handlers of the given events. Called without events it
// clears every handler, once-handler and any-handler and resets the
// listener count to zero.
func (h *Hub[K, P]) OffAll(events ...K) {
	var stopped []*registration[K, P]

	h.mu.Lock()
	if len(events) == 0 {
		for _, event := range h.handlers.Keys() {
			set, _ := h.handlers.Get(event)
			stopped = append(stopped, set.Values()...)
		}
		for _, reg := range h.anyHandlers.Values() {
			reg.live.Store(false)
		}
		h.handlers.Clear()
		h.anyHandlers.Clear()
		h.count = 0
	} else {
		for _, event := range events {
			set, ok := h.handlers.Delete(event)
			if !ok {
				continue
			}
			stopped = append(stopped, set.Values()...)
			h.count -= set.Len()
		}
	}
	for _, reg := range stopped {
		reg.live.Store(false)
	}
	h.mu.Unlock()

	for _, reg := range stopped {
		if reg.policy != nil {
			reg.policy.stop()
		}
	}
}

// Emit dispatches payload to the handlers of event and then to every
// any-handler. A handler removed by an earlier handler of the same
// dispatch is skipped. Handler panics are recovered and never reach the
// caller. While the hub is intercepted Emit does nothing.
func (h *Hub[K, P]) Emit(event K, payload P) {
	if h.intercepted.Load() {
		return
	}

	h.mu.Lock()
	var regs []*registration[K, P]
	if set, ok := h.handlers.Get(event); ok {
		regs = set.Values()
	}
	anys := h.anyHandlers.Values()
	h.mu.Unlock()

	for _, reg := range regs {
		if reg.once {
			if !h.remove(reg) {
				continue
			}
		} else if !reg.live.Load() {
			continue
		}
		if reg.policy != nil {
			reg.policy.call(payload)
			continue
		}
		h.invoke(event, func() { reg.fn(payload) })
	}

	for _, reg := range anys {
		if !reg.live.Load() {
			continue
		}
		h.invoke(event, func() { reg.fn(event, payload) })
	}
}

// InterceptEmit turns every following Emit into a no-op until
// UninterceptEmit is called.
func (h *Hub[K, P]) InterceptEmit() {
	h.intercepted.Store(true)
}

// UninterceptEmit restores normal dispatch.
func (h *Hub[K, P]) UninterceptEmit() {
	h.intercepted.Store(false)
}

// Intercepted reports whether dispatch is currently suppressed.
func (h *Hub[K, P]) Intercepted() bool {
	return h.intercepted.Load()
}

// ListenerCount returns the live handlers of event plus the any-handlers.
func (h *Hub[K, P]) ListenerCount(event K) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.anyHandlers.Len()
	if set, ok := h.handlers.Get(event); ok {
		n += set.Len()
	}
	return n
}

// TotalListenerCount returns every live registration of the hub.
func (h *Hub[K, P]) TotalListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Hub[K, P]) add(reg *registration[K, P]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.handlers.Get(reg.event)
	if !ok {
		set = collection.NewSet[*registration[K, P]]()
		h.handlers.Set(reg.event, set)
	}
	set.Add(reg)
	h.count++
	reg.live.Store(true)
}

// remove reports whether this call took reg out of the hub.
func (h *Hub[K, P]) remove(reg *registration[K, P]) bool {
	h.mu.Lock()
	if !reg.live.Load() {
		h.mu.Unlock()
		return false
	}
	reg.live.Store(false)
	if set, ok := h.handlers.Get(reg.event); ok {
		set.Delete(reg)
		if set.Len() == 0 {
			h.handlers.Delete(reg.event)
		}
	}
	h.count--
	h.mu.Unlock()

	if reg.policy != nil {
		reg.policy.stop()
	}
	return true
}

func (h *Hub[K, P]) invoke(event K, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			pe := newPanicError(event, r)
			h.cfg.logger.Error("syncevent: handler panicked",
				zap.Any("event", event),
				zap.Any("panic", r),
				zap.String("stack", pe.Stack),
			)
			h.reportPanic(pe)
		}
	}()
	fn()
}

func (h *Hub[K, P]) reportPanic(pe *PanicError) {
	if h.cfg.onPanic == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.cfg.logger.Error("syncevent: panic handler panicked", zap.Any("panic", r))
		}
	}()
	h.cfg.onPanic(pe)
}
