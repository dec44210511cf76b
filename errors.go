package syncevent

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrTimeout is the rejection cause of a wait whose deadline elapsed
	// before a qualifying dispatch.
	ErrTimeout = errors.New("syncevent: wait timed out")

	// ErrCanceled is the rejection cause of a wait cancelled through
	// [Future.Cancel].
	ErrCanceled = errors.New("syncevent: wait canceled")

	// ErrPending is returned by [Future.Result] while the future is unsettled.
	ErrPending = errors.New("syncevent: future is pending")

	// ErrStreamClosed is returned by [EventStream.Next] once the stream has
	// been closed and drained.
	ErrStreamClosed = errors.New("syncevent: stream closed")

	// ErrValidation matches every [*ValidationError] via [errors.Is].
	ErrValidation = errors.New("syncevent: validation failed")
)

// ValidationError reports malformed configuration: bad debounce or throttle
// windows, a bad stream strategy, or a missing wait event.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("syncevent: invalid %s: %s", e.Field, e.Reason)
}

// Is allows errors.Is to match ValidationError with ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// AggregateError is returned by [Hub.WaitAny] when every member wait
// failed. Member errors are kept in the order of the wait list.
type AggregateError struct {
	err error
}

func newAggregateError(errs []error) *AggregateError {
	return &AggregateError{err: multierr.Combine(errs...)}
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errors()))
	for _, err := range e.Errors() {
		msgs = append(msgs, err.Error())
	}
	return "syncevent: all waits failed: " + strings.Join(msgs, "; ")
}

// Errors returns the member errors.
func (e *AggregateError) Errors() []error {
	return multierr.Errors(e.err)
}

// Unwrap exposes the member errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors()
}
