package syncevent

import (
	"fmt"
	"runtime"
)

// PanicError wraps a value recovered from a panicking handler or wait
// predicate together with the goroutine stack captured at that point.
//
// Emit never re-raises handler panics. They are logged and, when
// [WithPanicHandler] is set, passed to that hook. A panicking Where or
// MapToError callback rejects its wait with a *PanicError.
type PanicError struct {
	// Event is the event being dispatched when the panic happened.
	Event any

	// Value is the original value passed to panic().
	Value any

	// Stack is the goroutine stack trace at the point of panic.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("syncevent: panic while handling %v: %v", e.Event, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func newPanicError(event, v any) *PanicError {
	// 8 KiB is enough for most stack traces. runtime.Stack truncates
	// gracefully if the buffer is too small.
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Event: event,
		Value: v,
		Stack: string(buf[:n]),
	}
}
