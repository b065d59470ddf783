// Package bus implements the in-process message bus that microservices use to
// talk to each other. Actors never reference each other directly: they register
// a mailbox, subscribe to message types, and exchange events (one result per
// send, load-balanced round-robin over subscribers) and broadcasts (delivered
// to every subscriber).
//
// Locking discipline. The subscriber list of a type is held while a subscriber
// is selected, the future for the send is published and the message is
// enqueued, so a concurrent Complete can never observe the message before its
// future exists. The mailbox table is read-locked by senders for the duration
// of an enqueue and write-locked by Unregister, which therefore waits for
// in-flight sends and is never observed half done. Lock order is
// subscriber list, mailbox table, future table, mailbox.
package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/gurion-rock/mics/future"
	"github.com/gurion-rock/mics/mailbox"
	"go.uber.org/atomic"
)

var (
	// ErrNotRegistered is returned when an operation names an actor that has no
	// live mailbox.
	ErrNotRegistered = errors.New("actor is not registered")
	// ErrWrongKind is returned when subscribing a broadcast type as an event or
	// the other way around.
	ErrWrongKind = errors.New("message type has the wrong kind")
)

// Bus routes events and broadcasts between registered actors.
// The zero value is not usable; create one with New and pass it to every actor.
type Bus struct {
	name string

	// mu guards mailboxes.
	mu        sync.RWMutex
	mailboxes map[ActorID]*mailbox.Mailbox[Message]

	// regMu guards the two registries (not the lists inside them).
	regMu      sync.RWMutex
	events     map[reflect.Type]*subscribers
	broadcasts map[reflect.Type]*subscribers

	// futMu guards futures, keyed by the sequence number stamped into an event.
	futMu   sync.Mutex
	futures map[uint64]any

	seq *atomic.Uint64
}

type busOptions struct {
	name string
}

// Option configures a Bus.
type Option func(*busOptions)

// WithName sets the name used to label the bus's metrics.
func WithName(name string) Option {
	return func(o *busOptions) {
		o.name = name
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	options := &busOptions{
		name: "bus",
	}

	for _, opt := range opts {
		opt(options)
	}

	registeredActors.WithLabelValues(options.name).Set(0)
	pendingFutures.WithLabelValues(options.name).Set(0)

	return &Bus{
		name:       options.name,
		mailboxes:  make(map[ActorID]*mailbox.Mailbox[Message]),
		events:     make(map[reflect.Type]*subscribers),
		broadcasts: make(map[reflect.Type]*subscribers),
		futures:    make(map[uint64]any),
		seq:        atomic.NewUint64(0),
	}
}

// Name returns the bus name given with WithName.
func (b *Bus) Name() string {
	return b.name
}

// Register creates an empty mailbox for id. Registering twice is a no-op.
func (b *Bus) Register(id ActorID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.mailboxes[id]; ok {
		return
	}

	b.mailboxes[id] = mailbox.New[Message]()

	registeredActors.WithLabelValues(b.name).Inc()
}

// Unregister removes id from every subscriber list and discards its mailbox
// together with any messages still queued in it. A Receive blocked on that
// mailbox returns ErrNotRegistered. Unregistering an unknown actor is a no-op.
func (b *Bus) Unregister(id ActorID) {
	b.mu.Lock()
	mb, ok := b.mailboxes[id]
	delete(b.mailboxes, id)
	b.mu.Unlock()

	if !ok {
		return
	}

	registeredActors.WithLabelValues(b.name).Dec()

	if dropped := mb.Close(); dropped > 0 {
		droppedMessages.WithLabelValues(b.name).Add(float64(dropped))
	}

	b.regMu.RLock()
	defer b.regMu.RUnlock()

	for _, subs := range b.events {
		subs.remove(id)
	}

	for _, subs := range b.broadcasts {
		subs.remove(id)
	}
}

// IsRegistered reports whether id currently has a mailbox.
func (b *Bus) IsRegistered(id ActorID) bool {
	_, ok := b.mailboxOf(id)

	return ok
}

func (b *Bus) mailboxOf(id ActorID) (*mailbox.Mailbox[Message], bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	mb, ok := b.mailboxes[id]

	return mb, ok
}

// SubscribeEvent adds id to the subscribers of the event type kind (see
// TypeOf). The actor must be registered. Subscribing the same pair twice is a
// no-op.
func (b *Bus) SubscribeEvent(kind reflect.Type, id ActorID) error {
	if !isEventKind(kind) {
		return fmt.Errorf("%w: %v is not an event", ErrWrongKind, kind)
	}

	return b.subscribe(b.events, kind, id)
}

// SubscribeBroadcast adds id to the subscribers of the broadcast type kind.
// The actor must be registered. Subscribing the same pair twice is a no-op.
func (b *Bus) SubscribeBroadcast(kind reflect.Type, id ActorID) error {
	if kind == nil || !kind.Implements(reflect.TypeFor[Broadcast]()) {
		return fmt.Errorf("%w: %v is not a broadcast", ErrWrongKind, kind)
	}

	return b.subscribe(b.broadcasts, kind, id)
}

func (b *Bus) subscribe(registry map[reflect.Type]*subscribers, kind reflect.Type, id ActorID) error {
	if !b.IsRegistered(id) {
		return fmt.Errorf("%w: %v", ErrNotRegistered, id)
	}

	b.regMu.Lock()

	subs, ok := registry[kind]
	if !ok {
		subs = &subscribers{}
		registry[kind] = subs
	}

	b.regMu.Unlock()

	subs.mu.Lock()
	defer subs.mu.Unlock()

	// Rechecked under the mailbox table so a concurrent Unregister either
	// removes the entry afterwards or makes this call fail.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.mailboxes[id]; !ok {
		return fmt.Errorf("%w: %v", ErrNotRegistered, id)
	}

	subs.addLocked(id)

	return nil
}

func (b *Bus) lookup(registry map[reflect.Type]*subscribers, kind reflect.Type) *subscribers {
	b.regMu.RLock()
	defer b.regMu.RUnlock()

	return registry[kind]
}

// Subscribers returns the current subscribers of kind, whichever registry it
// belongs to.
func (b *Bus) Subscribers(kind reflect.Type) []ActorID {
	if isEventKind(kind) {
		return b.EventSubscribers(kind)
	}

	return b.BroadcastSubscribers(kind)
}

// EventSubscribers returns the current rotation order for an event type.
func (b *Bus) EventSubscribers(kind reflect.Type) []ActorID {
	if subs := b.lookup(b.events, kind); subs != nil {
		return subs.snapshot()
	}

	return nil
}

// BroadcastSubscribers returns the current subscribers of a broadcast type.
func (b *Bus) BroadcastSubscribers(kind reflect.Type) []ActorID {
	if subs := b.lookup(b.broadcasts, kind); subs != nil {
		return subs.snapshot()
	}

	return nil
}

// SendEvent delivers ev to exactly one subscriber of its type, chosen
// round-robin, and returns the future that Complete will resolve.
//
// The boolean is false when nobody is subscribed to the type. That is a normal
// outcome, not an error: no message is enqueued and nothing is left pending.
// An event instance carries the identity of one send, so it is also false,
// with nothing enqueued, when ev has already been routed.
func SendEvent[T any](b *Bus, ev Event[T]) (*future.Future[T], bool) {
	kind := KindOf(ev)
	label := kind.String()
	hdr := ev.header()

	if hdr.seq.Load() != 0 {
		resentEvents.WithLabelValues(b.name, label).Inc()

		return nil, false
	}

	subs := b.lookup(b.events, kind)
	if subs == nil {
		unroutableEvents.WithLabelValues(b.name, label).Inc()

		return nil, false
	}

	subs.mu.Lock()
	defer subs.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()

	seq := b.seq.Inc()
	if !hdr.seq.CompareAndSwap(0, seq) {
		resentEvents.WithLabelValues(b.name, label).Inc()

		return nil, false
	}

	for {
		id, ok := subs.rotateLocked()
		if !ok {
			break
		}

		mb, ok := b.mailboxes[id]
		if !ok {
			// Unregistered after we looked the list up; Unregister will not
			// find it here again.
			subs.dropTailLocked()

			continue
		}

		fut, promise := future.New[T]()
		b.publish(seq, promise)

		if err := mb.Push(ev); err != nil {
			b.unpublish(seq)
			subs.dropTailLocked()

			continue
		}

		sentEvents.WithLabelValues(b.name, label).Inc()

		return fut, true
	}

	// Never routed, so the instance may be sent again.
	hdr.seq.Store(0)
	unroutableEvents.WithLabelValues(b.name, label).Inc()

	return nil, false
}

func (b *Bus) publish(seq uint64, promise any) {
	b.futMu.Lock()
	defer b.futMu.Unlock()

	b.futures[seq] = promise

	pendingFutures.WithLabelValues(b.name).Set(float64(len(b.futures)))
}

// unpublish removes and returns the pending entry for seq.
func (b *Bus) unpublish(seq uint64) (any, bool) {
	b.futMu.Lock()
	defer b.futMu.Unlock()

	promise, ok := b.futures[seq]
	if ok {
		delete(b.futures, seq)
		pendingFutures.WithLabelValues(b.name).Set(float64(len(b.futures)))
	}

	return promise, ok
}

// Complete resolves the future of ev with result and forgets it. It returns
// false, without error, if ev was never routed or was already completed.
func Complete[T any](b *Bus, ev Event[T], result T) bool {
	seq := ev.header().seq.Load()
	if seq == 0 {
		return false
	}

	entry, ok := b.unpublish(seq)
	if !ok {
		return false
	}

	promise, ok := entry.(*future.Promise[T])
	if !ok {
		return false
	}

	completedEvents.WithLabelValues(b.name).Inc()

	return promise.Resolve(result)
}

// Pending returns the number of futures waiting for Complete.
func (b *Bus) Pending() int {
	b.futMu.Lock()
	defer b.futMu.Unlock()

	return len(b.futures)
}

// SendBroadcast enqueues msg into the mailbox of every actor subscribed to its
// type when the call starts. Broadcasts of one type are delivered in the same
// relative order to every subscriber. Having no subscribers is fine.
func (b *Bus) SendBroadcast(msg Broadcast) {
	kind := KindOf(msg)
	label := kind.String()

	sentBroadcasts.WithLabelValues(b.name, label).Inc()

	subs := b.lookup(b.broadcasts, kind)
	if subs == nil {
		return
	}

	subs.mu.Lock()
	defer subs.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0

	for _, id := range subs.ids {
		mb, ok := b.mailboxes[id]
		if !ok {
			continue
		}

		if err := mb.Push(msg); err == nil {
			delivered++
		}
	}

	broadcastDeliveries.WithLabelValues(b.name, label).Add(float64(delivered))
}

// Receive blocks until the mailbox of id holds a message and returns the
// oldest one. It fails with ErrNotRegistered if id has no mailbox or is
// unregistered while waiting, and with the context's error if ctx ends first.
func (b *Bus) Receive(ctx context.Context, id ActorID) (Message, error) { //nolint:ireturn
	mb, ok := b.mailboxOf(id)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotRegistered, id)
	}

	msg, err := mb.Pop(ctx)
	if err != nil {
		if errors.Is(err, mailbox.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", ErrNotRegistered, id)
		}

		return nil, err
	}

	return msg, nil
}

// QueueLen returns the number of messages waiting in the mailbox of id.
func (b *Bus) QueueLen(id ActorID) int {
	if mb, ok := b.mailboxOf(id); ok {
		return mb.Len()
	}

	return 0
}
