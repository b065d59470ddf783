// Package mailbox provides an unbounded, ordered, blocking queue owned by a
// single actor. Pushing never blocks the sender; only Pop waits.
package mailbox

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"
)

// ErrClosed is returned when pushing to or popping from a closed mailbox.
var ErrClosed = errors.New("mailbox is closed")

// Mailbox is a FIFO queue with infinite buffering.
//
// Note: the queue grows without bound if the sender outpaces the receiver.
// Len can be used to monitor its depth.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// notify holds at most one wake-up token; done is closed by Close.
	notify chan struct{}
	done   chan struct{}

	size *atomic.Int64
}

// New creates an empty, open mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		size:   atomic.NewInt64(0),
	}
}

// wake leaves a token for a waiting receiver without ever blocking.
func (m *Mailbox[T]) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Push appends value to the tail of the mailbox.
func (m *Mailbox[T]) Push(value T) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return ErrClosed
	}

	m.items = append(m.items, value)
	m.size.Inc()
	m.mu.Unlock()

	m.wake()

	return nil
}

// TryPop removes and returns the head of the mailbox without waiting.
func (m *Mailbox[T]) TryPop() (T, bool) { //nolint:ireturn
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.popLocked()
}

func (m *Mailbox[T]) popLocked() (T, bool) { //nolint:ireturn
	var zero T

	if m.closed || len(m.items) == 0 {
		return zero, false
	}

	value := m.items[0]
	m.items[0] = zero // release the reference for GC
	m.items = m.items[1:]
	m.size.Dec()

	if len(m.items) > 0 {
		// Someone else may be waiting too; pass the baton.
		m.wake()
	}

	return value, true
}

// Pop blocks until the mailbox is non-empty and returns its oldest value.
// It returns ErrClosed once the mailbox is closed, or the context error if
// ctx is done first.
func (m *Mailbox[T]) Pop(ctx context.Context) (T, error) { //nolint:ireturn
	var zero T

	for {
		m.mu.Lock()

		if m.closed {
			m.mu.Unlock()

			return zero, ErrClosed
		}

		value, ok := m.popLocked()
		m.mu.Unlock()

		if ok {
			return value, nil
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-m.done:
			return zero, ErrClosed
		case <-m.notify:
		}
	}
}

// Len returns the number of queued values.
func (m *Mailbox[T]) Len() int {
	return int(m.size.Load())
}

// Close discards every queued value and wakes blocked receivers. It returns the
// number of values that were discarded. Closing twice is a no-op.
func (m *Mailbox[T]) Close() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0
	}

	dropped := len(m.items)

	m.closed = true
	m.items = nil
	m.size.Store(0)

	close(m.done)

	return dropped
}

// Closed reports whether Close has been called.
func (m *Mailbox[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}
