// Package syncevent provides a typed, goroutine-safe event hub together
// with wait primitives and streams built on top of it.
//
// A [Hub] is parameterised by an event-name type K and a payload type P.
// Handlers run synchronously on the goroutine calling [Hub.Emit], in
// registration order, followed by the any-handlers:
//
//	hub := syncevent.New[string, int]()
//	l := hub.On("tick", func(n int) {
//	    fmt.Println("tick", n)
//	}).On("tock", func(n int) {
//	    fmt.Println("tock", n)
//	})
//	defer l.Cancel()
//
//	hub.Emit("tick", 1)
//
// # Listeners
//
// Registration returns a [Listener] handle. Calling On or Once on a
// listener extends its chain, and a single [Listener.Cancel] removes every
// registration of the chain in reverse order. [Hub.Once] registrations are
// removed before they run, so they fire exactly once.
//
// # Policies
//
// [WithDebounce] and [WithThrottle] attach an execution policy to a single
// handler:
//
//   - Throttle: the handler runs at most once per window; dispatches
//     inside the window are dropped.
//   - Debounce: every dispatch reschedules the handler. A non-zero
//     maxWait forces execution once a burst has postponed it that long.
//
// Debounced handlers run on a timer goroutine. All timers go through the
// [clock.Clock] given to [WithClock], so tests can drive them with a mock.
//
// # Waiting
//
// [Hub.Await] registers a one-shot wait and returns a [Future]. Waits may
// filter dispatches with Where, turn a matched dispatch into a failure with
// MapToError, and time out with [ErrTimeout]. [Future.Cancel] rejects a
// pending wait with [ErrCanceled] and removes its listener.
//
// Group waits combine several [WaitSpec] values:
//
//   - [Hub.AwaitAll]: every member must succeed.
//   - [Hub.AwaitRace]: the first member to settle decides.
//   - [Hub.AwaitAny]: the first success wins; if all fail the result is an
//     [*AggregateError].
//
// Members still pending when a group settles are always cancelled. Each
// Await function has a blocking Wait counterpart taking a context.
//
// # Streams
//
// [Hub.Stream] exposes the dispatches of a set of events as a pull-based
// [EventStream] of [Fired] cells, optionally bounded by a [RingBuffer]
// that either drops new cells or replaces the oldest ones when full.
// [Hub.StreamChan] adapts a stream to a channel.
//
// # Recording
//
// [Hub.NewRecorder] returns a [Recorder] that logs every dispatch of the
// hub and replays it later, either into the same hub or into a separate
// consumer hub.
//
// # Panic Recovery
//
// Emit never panics because of a handler. Handler panics are captured as
// [*PanicError] with their stack, logged through the [zap.Logger] given to
// [WithLogger] and passed to the [WithPanicHandler] hook.
//
// Bounded queues and the Nagle-style buffering channel live in the queue
// subpackage.
package syncevent
