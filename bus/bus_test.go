package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type numberEvent struct {
	EventOf[int]
	N int
}

type otherEvent struct {
	EventOf[string]
}

type tick struct {
	BroadcastOf
	N int
}

type shout struct {
	BroadcastOf
}

func newActor(t *testing.T, b *Bus, name string) ActorID {
	t.Helper()

	id := NewActorID(name)
	b.Register(id)

	return id
}

func receiveNow(t *testing.T, b *Bus, id ActorID) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	msg, err := b.Receive(ctx, id)
	require.NoError(t, err)

	return msg
}

func TestRegister_Idempotent(t *testing.T) {
	t.Parallel()

	b := New()
	id := newActor(t, b, "a")

	require.NoError(t, b.SubscribeBroadcast(TypeOf[tick](), id))
	b.SendBroadcast(tick{N: 1})

	// A second register must not replace the mailbox.
	b.Register(id)

	assert.Equal(t, 1, b.QueueLen(id))
}

func TestSubscribe_RequiresRegistration(t *testing.T) {
	t.Parallel()

	b := New()
	id := NewActorID("ghost")

	require.ErrorIs(t, b.SubscribeEvent(TypeOf[*numberEvent](), id), ErrNotRegistered)
	require.ErrorIs(t, b.SubscribeBroadcast(TypeOf[tick](), id), ErrNotRegistered)
}

func TestSubscribe_WrongKind(t *testing.T) {
	t.Parallel()

	b := New()
	id := newActor(t, b, "a")

	require.ErrorIs(t, b.SubscribeEvent(TypeOf[tick](), id), ErrWrongKind)
	require.ErrorIs(t, b.SubscribeBroadcast(TypeOf[*numberEvent](), id), ErrWrongKind)
}

func TestSubscribe_DuplicateIsNoop(t *testing.T) {
	t.Parallel()

	b := New()
	id := newActor(t, b, "a")

	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), id))
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), id))
	require.NoError(t, b.SubscribeBroadcast(TypeOf[tick](), id))
	require.NoError(t, b.SubscribeBroadcast(TypeOf[tick](), id))

	assert.Len(t, b.EventSubscribers(TypeOf[*numberEvent]()), 1)

	b.SendBroadcast(tick{})
	assert.Equal(t, 1, b.QueueLen(id))
}

func TestSendEvent_RoundRobin(t *testing.T) {
	t.Parallel()

	b := New()
	ids := []ActorID{newActor(t, b, "a"), newActor(t, b, "b"), newActor(t, b, "c")}

	for _, id := range ids {
		require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), id))
	}

	for i := range 9 {
		_, ok := SendEvent[int](b, &numberEvent{N: i})
		require.True(t, ok)
	}

	for idx, id := range ids {
		require.Equal(t, 3, b.QueueLen(id))

		for round := range 3 {
			msg := receiveNow(t, b, id)
			ev, ok := msg.(*numberEvent)
			require.True(t, ok)
			assert.Equal(t, round*3+idx, ev.N, "cyclic order in subscription order")
		}
	}
}

func TestSendEvent_ConcurrentSendsSpreadEvenly(t *testing.T) {
	t.Parallel()

	b := New()

	const (
		actors = 4
		sends  = 400
	)

	ids := make([]ActorID, actors)
	for i := range ids {
		ids[i] = newActor(t, b, "worker")
		require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), ids[i]))
	}

	var wg sync.WaitGroup

	for i := range sends {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, ok := SendEvent[int](b, &numberEvent{N: i})
			assert.True(t, ok)
		}()
	}

	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, sends/actors, b.QueueLen(id))
	}

	assert.Equal(t, sends, b.Pending())
}

func TestSendEvent_Unroutable(t *testing.T) {
	t.Parallel()

	b := New()
	id := newActor(t, b, "a")
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), id))

	fut, ok := SendEvent[string](b, &otherEvent{})

	assert.False(t, ok)
	assert.Nil(t, fut)
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 0, b.QueueLen(id))
}

func TestComplete_ResolvesOnce(t *testing.T) {
	t.Parallel()

	b := New()
	id := newActor(t, b, "q")
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), id))

	ev := &numberEvent{}
	fut, ok := SendEvent[int](b, ev)
	require.True(t, ok)
	require.Equal(t, 1, b.Pending())

	assert.True(t, Complete(b, ev, 1))
	assert.False(t, Complete(b, ev, 2))

	assert.Equal(t, 1, fut.Get())
	assert.Equal(t, 0, b.Pending())
}

func TestSendEvent_SameInstanceTwice(t *testing.T) {
	t.Parallel()

	b := New()
	a := newActor(t, b, "a")
	c := newActor(t, b, "c")
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), a))
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), c))

	ev := &numberEvent{N: 1}

	first, ok := SendEvent[int](b, ev)
	require.True(t, ok)

	again, ok := SendEvent[int](b, ev)
	assert.False(t, ok)
	assert.Nil(t, again)
	assert.Equal(t, 1, b.Pending())
	assert.Equal(t, 0, b.QueueLen(c), "the rejected send reaches nobody")

	received, ok := receiveNow(t, b, a).(*numberEvent)
	require.True(t, ok)
	assert.True(t, Complete(b, received, 11))

	got, err := first.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 11, got)
	assert.Equal(t, 0, b.Pending())

	_, ok = SendEvent[int](b, ev)
	assert.False(t, ok, "a completed instance stays spent")
}

func TestSendEvent_UnroutableInstanceCanBeResent(t *testing.T) {
	t.Parallel()

	b := New()
	gone := newActor(t, b, "gone")
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), gone))
	b.Unregister(gone)

	ev := &numberEvent{}

	_, ok := SendEvent[int](b, ev)
	require.False(t, ok)

	id := newActor(t, b, "late")
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), id))

	_, ok = SendEvent[int](b, ev)
	assert.True(t, ok)
	assert.Equal(t, 1, b.QueueLen(id))
}

func TestComplete_NeverRouted(t *testing.T) {
	t.Parallel()

	b := New()

	assert.False(t, Complete(b, &numberEvent{}, 5))
}

func TestEndToEnd_CompleteFromSubscriber(t *testing.T) {
	t.Parallel()

	b := New()
	q := newActor(t, b, "Q")
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), q))

	go func() {
		msg, err := b.Receive(context.Background(), q)
		if err != nil {
			return
		}

		if ev, ok := msg.(*numberEvent); ok {
			Complete(b, ev, 42)
		}
	}()

	fut, ok := SendEvent[int](b, &numberEvent{})
	require.True(t, ok)

	result, err := fut.GetTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestEndToEnd_NeverCompleted(t *testing.T) {
	t.Parallel()

	b := New()
	q := newActor(t, b, "Q")
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), q))

	fut, ok := SendEvent[int](b, &numberEvent{})
	require.True(t, ok)

	_ = receiveNow(t, b, q)

	_, err := fut.GetTimeout(100 * time.Millisecond)
	require.Error(t, err)
	assert.False(t, fut.IsResolved())
}

func TestSendBroadcast_FanOut(t *testing.T) {
	t.Parallel()

	b := New()
	subs := []ActorID{newActor(t, b, "a"), newActor(t, b, "b"), newActor(t, b, "c")}
	outsider := newActor(t, b, "d")

	for _, id := range subs {
		require.NoError(t, b.SubscribeBroadcast(TypeOf[*tick](), id))
	}

	require.NoError(t, b.SubscribeBroadcast(TypeOf[shout](), outsider))

	msg := &tick{N: 7}
	b.SendBroadcast(msg)

	for _, id := range subs {
		require.Equal(t, 1, b.QueueLen(id))
		assert.Same(t, msg, receiveNow(t, b, id))
	}

	assert.Equal(t, 0, b.QueueLen(outsider))
}

func TestSendBroadcast_NoSubscribers(t *testing.T) {
	t.Parallel()

	b := New()

	assert.NotPanics(t, func() {
		b.SendBroadcast(shout{})
	})
}

func TestReceive_FIFOUnderConcurrentSenders(t *testing.T) {
	t.Parallel()

	b := New()
	target := newActor(t, b, "target")
	require.NoError(t, b.SubscribeBroadcast(TypeOf[tick](), target))
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), target))

	// Messages from one sender keep their order even while others interleave.
	var wg sync.WaitGroup

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 100 {
				_, _ = SendEvent[int](b, &numberEvent{N: i})
			}
		}()
	}

	for i := range 200 {
		b.SendBroadcast(tick{N: i})
	}

	wg.Wait()

	next := 0

	for range 600 {
		if tk, ok := receiveNow(t, b, target).(tick); ok {
			assert.Equal(t, next, tk.N)
			next++
		}
	}

	assert.Equal(t, 200, next)
}

func TestReceive_NotRegistered(t *testing.T) {
	t.Parallel()

	b := New()

	_, err := b.Receive(t.Context(), NewActorID("ghost"))
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestUnregister_WakesReceiver(t *testing.T) {
	t.Parallel()

	b := New()
	id := newActor(t, b, "a")
	errCh := make(chan error, 1)

	go func() {
		_, err := b.Receive(context.Background(), id)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.Unregister(id)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrNotRegistered)
	case <-time.After(time.Second):
		t.Fatal("receiver not woken by unregister")
	}
}

func TestUnregister_RemovesFromRotation(t *testing.T) {
	t.Parallel()

	b := New(WithName("unregister-rotation"))
	a := newActor(t, b, "a")
	c := newActor(t, b, "c")

	for _, id := range []ActorID{a, c} {
		require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), id))
		require.NoError(t, b.SubscribeBroadcast(TypeOf[tick](), id))
	}

	_, ok := SendEvent[int](b, &numberEvent{})
	require.True(t, ok)
	require.Equal(t, 1, b.QueueLen(a))

	assert.NotPanics(t, func() {
		b.Unregister(a)
		b.Unregister(a)
	})

	assert.False(t, b.IsRegistered(a))
	assert.Equal(t, []ActorID{c}, b.EventSubscribers(TypeOf[*numberEvent]()))
	assert.Equal(t, []ActorID{c}, b.BroadcastSubscribers(TypeOf[tick]()))
	assert.InDelta(t, 1, testutil.ToFloat64(droppedMessages.WithLabelValues("unregister-rotation")), 0)

	for range 3 {
		_, ok := SendEvent[int](b, &numberEvent{})
		require.True(t, ok)
	}

	b.SendBroadcast(tick{})

	assert.Equal(t, 4, b.QueueLen(c))
}

func TestUnregister_ConcurrentWithSends(t *testing.T) {
	t.Parallel()

	b := New()
	stable := newActor(t, b, "stable")
	require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), stable))
	require.NoError(t, b.SubscribeBroadcast(TypeOf[tick](), stable))

	var wg sync.WaitGroup

	for range 20 {
		churn := newActor(t, b, "churn")
		require.NoError(t, b.SubscribeEvent(TypeOf[*numberEvent](), churn))
		require.NoError(t, b.SubscribeBroadcast(TypeOf[tick](), churn))

		wg.Add(2)

		go func() {
			defer wg.Done()
			b.Unregister(churn)
		}()

		go func() {
			defer wg.Done()

			_, ok := SendEvent[int](b, &numberEvent{})
			assert.True(t, ok)
			b.SendBroadcast(tick{})
		}()
	}

	wg.Wait()

	// Every broadcast reached the actor that stayed subscribed throughout.
	broadcasts := 0

	for b.QueueLen(stable) > 0 {
		if _, ok := receiveNow(t, b, stable).(tick); ok {
			broadcasts++
		}
	}

	assert.Equal(t, 20, broadcasts)
	assert.Equal(t, []ActorID{stable}, b.EventSubscribers(TypeOf[*numberEvent]()))
}

func TestSubscribe_ConcurrentWithUnregister(t *testing.T) {
	t.Parallel()

	b := New()

	for range 200 {
		id := newActor(t, b, "racer")

		var wg sync.WaitGroup

		wg.Go(func() { b.Unregister(id) })
		wg.Go(func() { _ = b.SubscribeBroadcast(TypeOf[shout](), id) })
		wg.Go(func() { _ = b.SubscribeEvent(TypeOf[*otherEvent](), id) })
		wg.Wait()

		assert.NotContains(t, b.BroadcastSubscribers(TypeOf[shout]()), id)
		assert.NotContains(t, b.EventSubscribers(TypeOf[*otherEvent]()), id)
	}

	err := b.SubscribeBroadcast(TypeOf[shout](), NewActorID("never-registered"))
	require.ErrorIs(t, err, ErrNotRegistered)
}
