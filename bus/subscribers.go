package bus

import (
	"slices"
	"sync"
)

// subscribers is the ordered collection of actors interested in one message
// type. Its mutex is the unit of mutual exclusion for select-and-rotate.
type subscribers struct {
	mu  sync.Mutex
	ids []ActorID
}

func (s *subscribers) remove(id ActorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.Index(s.ids, id)
	if idx < 0 {
		return false
	}

	s.ids = slices.Delete(s.ids, idx, idx+1)

	return true
}

func (s *subscribers) snapshot() []ActorID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.ids)
}

// The following must be called with mu held.

// addLocked appends id unless it is already present.
func (s *subscribers) addLocked(id ActorID) bool {
	if slices.Contains(s.ids, id) {
		return false
	}

	s.ids = append(s.ids, id)

	return true
}

// rotateLocked moves the head to the tail and returns it.
func (s *subscribers) rotateLocked() (ActorID, bool) {
	if len(s.ids) == 0 {
		return ActorID{}, false
	}

	head := s.ids[0]
	s.ids = append(s.ids[1:], head)

	return head, true
}

// dropTailLocked removes the element rotateLocked just moved to the tail.
func (s *subscribers) dropTailLocked() {
	s.ids = s.ids[:len(s.ids)-1]
}
