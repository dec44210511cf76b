// Package queue provides a blocking multi-producer multi-consumer FIFO
// with an explicit close and reset lifecycle, and a two-stage buffering
// channel that coalesces small writes before handing them to readers.
//
// Both types signal blocked callers through a [syncevent.Hub]. A waiter
// registers its wait while still holding the queue lock, so a state
// change between the check and the wait cannot be missed.
//
// Operational outcomes are returned, never panicked:
//
//   - [ErrClosed]: the queue or channel was closed before or during the
//     call.
//   - [ErrReset]: the queue was reset while the call was blocked.
//   - ctx.Err(): the caller's context ended first.
//
// Blocking calls that insert several items report how many were inserted
// before failing.
package queue
