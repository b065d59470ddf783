package microservice

import "github.com/gurion-rock/mics/bus"

// Reason says why an actor terminated. Applications may define their own
// reasons next to the ones below.
type Reason string

const (
	// ReasonCompleted means the actor ran out of work.
	ReasonCompleted Reason = "completed"
	// ReasonShutdown means the actor stopped because the system is winding down.
	ReasonShutdown Reason = "shutdown"
	// ReasonUpstreamFault means the actor stopped because another actor crashed.
	ReasonUpstreamFault Reason = "upstream-fault"
)

// TerminatedBroadcast is sent by every actor that stops on purpose, just
// before it leaves the bus.
type TerminatedBroadcast struct {
	bus.BroadcastOf

	Sender bus.ActorID
	Reason Reason
}

// CrashedBroadcast is sent by an actor that stops because of a fault.
type CrashedBroadcast struct {
	bus.BroadcastOf

	Sender      bus.ActorID
	Description string
}
