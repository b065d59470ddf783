package bus

import (
	"github.com/google/uuid"
)

// ActorID identifies a registered actor. Two IDs are equal only if they came
// from the same NewActorID call, so an ID is never reused.
type ActorID struct {
	id   uuid.UUID
	name string
}

// NewActorID returns a fresh identity with a human-readable name attached.
func NewActorID(name string) ActorID {
	return ActorID{
		id:   uuid.New(),
		name: name,
	}
}

// Name returns the display name given to NewActorID.
func (a ActorID) Name() string {
	return a.name
}

// UUID returns the unique part of the identity.
func (a ActorID) UUID() uuid.UUID {
	return a.id
}

// IsZero reports whether a is the zero ActorID.
func (a ActorID) IsZero() bool {
	return a.id == uuid.Nil
}

func (a ActorID) String() string {
	return a.name + "@" + a.id.String()[:8]
}
