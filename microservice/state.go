package microservice

// State is a step of the actor lifecycle. It only moves forward.
type State int32

const (
	// StateCreated: constructed, not yet registered with the bus.
	StateCreated State = iota
	// StateInitializing: registered, binding handlers; no messages are processed.
	StateInitializing
	// StateRunning: processing the mailbox one message at a time.
	StateRunning
	// StateTerminated: unregistered; nothing more will be dispatched.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
