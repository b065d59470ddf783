package bus

import (
	"reflect"

	"go.uber.org/atomic"
)

// Message is the root of the protocol. Concrete messages get their Message
// implementation by embedding EventOf or BroadcastOf.
type Message interface {
	message()
}

// Event is a request-style message whose single result has type T.
//
// Only pointers to structs embedding EventOf[T] implement Event[T], so every
// send carries its own identity.
type Event[T any] interface {
	Message
	header() *eventHeader
	expects(T)
}

// Broadcast is a fire-and-forget notification delivered to every subscriber.
type Broadcast interface {
	Message
	broadcast()
}

type eventHeader struct {
	// seq is stamped by the bus on every send; 0 means never routed.
	seq atomic.Uint64
}

// EventOf is embedded by concrete event types to declare their result type:
//
//	type PoseEvent struct {
//	    bus.EventOf[bool]
//	    Pose slam.Pose
//	}
type EventOf[T any] struct {
	hdr eventHeader
}

func (*EventOf[T]) message()               {}
func (e *EventOf[T]) header() *eventHeader { return &e.hdr }
func (*EventOf[T]) expects(T)              {}

// BroadcastOf is embedded by concrete broadcast types.
type BroadcastOf struct{}

func (BroadcastOf) message()   {}
func (BroadcastOf) broadcast() {}

// TypeOf returns the subscription key for message type M. Subscribers must use
// the same type that senders send, pointer or value.
func TypeOf[M Message]() reflect.Type {
	return reflect.TypeFor[M]()
}

// KindOf returns the subscription key of a concrete message.
func KindOf(msg Message) reflect.Type {
	return reflect.TypeOf(msg)
}

// isEventKind reports whether values of kind carry an event header.
func isEventKind(kind reflect.Type) bool {
	return kind != nil && kind.Implements(eventKind)
}

var eventKind = reflect.TypeFor[interface{ header() *eventHeader }]() //nolint:gochecknoglobals
