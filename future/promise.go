package future

// Promise is the write-only side of a Future.
//
// The promise holds a reference to the future, not the other way around, so a
// future can be handed to callers without giving them the ability to resolve it.
type Promise[T any] struct {
	future *Future[T]
}

// Future returns the future this promise resolves.
func (p *Promise[T]) Future() *Future[T] {
	return p.future
}

// Resolve stores value and wakes all waiters. Only the first call has an effect;
// it returns true for that call and false for every later one.
func (p *Promise[T]) Resolve(value T) bool {
	first := false

	p.future.once.Do(func() {
		p.future.value = value

		// The flag is published before the channel closes so that IsResolved
		// never reports false to a goroutine that was already woken.
		p.future.resolved.Store(true)
		close(p.future.resultReady)

		first = true
	})

	return first
}
