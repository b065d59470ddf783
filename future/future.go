// Package future provides a single-assignment result container that bridges the
// sender of an event and whoever eventually resolves it.
//
// A Future is the read side: it can be polled, waited on indefinitely, or waited
// on with a timeout or context. The matching Promise is the write side and is
// normally held by the message bus until the event is completed.
//
// Key guarantees:
//   - A future is resolved at most once; later resolutions are ignored
//   - Resolution wakes every goroutine blocked on the future
//   - All methods are safe for concurrent use
package future

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ErrTimeout is returned by GetTimeout when the future was not resolved in time.
var ErrTimeout = errors.New("future not resolved before timeout")

// Future is the read-only side of a single-assignment value.
type Future[T any] struct {
	once        sync.Once
	resolved    *atomic.Bool
	resultReady chan struct{} // closed on resolution
	value       T
}

// New creates a pending future and the promise that resolves it.
func New[T any]() (*Future[T], *Promise[T]) {
	fut := &Future[T]{
		resolved:    atomic.NewBool(false),
		resultReady: make(chan struct{}),
	}

	return fut, &Promise[T]{future: fut}
}

// Resolved returns a future that already holds value.
func Resolved[T any](value T) *Future[T] {
	fut, promise := New[T]()
	promise.Resolve(value)

	return fut
}

// IsResolved reports whether the future holds a value. It never blocks.
func (f *Future[T]) IsResolved() bool {
	return f.resolved.Load()
}

// Done returns a channel that is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.resultReady
}

// Get blocks until the future is resolved and returns its value.
func (f *Future[T]) Get() T { //nolint:ireturn
	<-f.resultReady

	return f.value
}

// GetTimeout blocks for at most timeout. If the future is still pending when the
// timeout elapses, the zero value and ErrTimeout are returned.
func (f *Future[T]) GetTimeout(timeout time.Duration) (T, error) { //nolint:ireturn
	// Prefer the value when it is already there, even for a zero timeout.
	if f.IsResolved() {
		return f.value, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.resultReady:
		return f.value, nil
	case <-timer.C:
		var zero T

		return zero, ErrTimeout
	}
}

// GetContext blocks until the future is resolved or ctx is done, in which case
// the context's error is returned.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) { //nolint:ireturn
	if f.IsResolved() {
		return f.value, nil
	}

	select {
	case <-f.resultReady:
		return f.value, nil
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}
