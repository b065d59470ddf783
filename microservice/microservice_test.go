package microservice_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gurion-rock/mics/bus"
	"github.com/gurion-rock/mics/logger"
	"github.com/gurion-rock/mics/microservice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type upperEvent struct {
	bus.EventOf[string]

	Text string
}

type ping struct {
	bus.BroadcastOf

	N int
}

// watch registers a bare mailbox that collects broadcasts of type B.
func watch[B bus.Broadcast](t *testing.T, b *bus.Bus) bus.ActorID {
	t.Helper()

	id := bus.NewActorID("watcher")
	b.Register(id)
	t.Cleanup(func() { b.Unregister(id) })

	require.NoError(t, b.SubscribeBroadcast(bus.TypeOf[B](), id))

	return id
}

func receive(t *testing.T, b *bus.Bus, id bus.ActorID) bus.Message { //nolint:ireturn
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	msg, err := b.Receive(ctx, id)
	require.NoError(t, err)

	return msg
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	b := bus.New()

	var (
		initState    microservice.State
		registered   bool
		handlerState microservice.State
	)

	ready := make(chan struct{})

	var svc *microservice.MicroService

	svc = microservice.New(b, "lifecycle", func(ctx context.Context, m *microservice.MicroService) error {
		initState = m.State()
		registered = b.IsRegistered(m.ID())

		defer close(ready)

		return microservice.OnBroadcast(m, func(ctx context.Context, _ ping) {
			handlerState = svc.State()
			svc.Terminate(ctx, microservice.ReasonCompleted)
		})
	})

	assert.Equal(t, microservice.StateCreated, svc.State())
	assert.Equal(t, "lifecycle", svc.Name())

	svc.Start(t.Context())
	<-ready

	b.SendBroadcast(ping{})

	require.NoError(t, svc.Wait())

	assert.Equal(t, microservice.StateInitializing, initState)
	assert.True(t, registered)
	assert.Equal(t, microservice.StateRunning, handlerState)
	assert.Equal(t, microservice.StateTerminated, svc.State())
	assert.False(t, b.IsRegistered(svc.ID()))
}

func TestEventRoundTrip(t *testing.T) {
	t.Parallel()

	b := bus.New()
	ready := make(chan struct{})

	svc := microservice.New(b, "upper", func(ctx context.Context, m *microservice.MicroService) error {
		defer close(ready)

		return microservice.OnEvent(m, func(ctx context.Context, ev *upperEvent) {
			microservice.Complete[string](m, ev, strings.ToUpper(ev.Text))
		})
	})

	ctx, cancel := context.WithCancel(t.Context())

	svc.Start(ctx)
	<-ready

	fut, ok := bus.SendEvent[string](b, &upperEvent{Text: "gurion"})
	require.True(t, ok)

	got, err := fut.GetTimeout(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "GURION", got)
	assert.Zero(t, b.Pending())

	cancel()
	require.NoError(t, svc.Wait())
}

func TestTerminate_BroadcastsReason(t *testing.T) {
	t.Parallel()

	b := bus.New()
	watcher := watch[microservice.TerminatedBroadcast](t, b)
	ready := make(chan struct{})

	svc := microservice.New(b, "quitter", func(ctx context.Context, m *microservice.MicroService) error {
		defer close(ready)

		return microservice.OnBroadcast(m, func(ctx context.Context, _ ping) {
			m.Terminate(ctx, microservice.ReasonShutdown)
		})
	})

	svc.Start(t.Context())
	<-ready

	b.SendBroadcast(ping{})
	require.NoError(t, svc.Wait())

	msg := receive(t, b, watcher)

	term, ok := msg.(microservice.TerminatedBroadcast)
	require.True(t, ok)
	assert.Equal(t, svc.ID(), term.Sender)
	assert.Equal(t, microservice.ReasonShutdown, term.Reason)
}

func TestTerminate_DropsQueuedMessages(t *testing.T) {
	t.Parallel()

	b := bus.New()
	ready := make(chan struct{})
	handled := 0

	svc := microservice.New(b, "first-only", func(ctx context.Context, m *microservice.MicroService) error {
		defer close(ready)

		return microservice.OnBroadcast(m, func(ctx context.Context, _ ping) {
			handled++
			m.Terminate(ctx, microservice.ReasonCompleted)
		})
	})

	svc.Start(t.Context())
	<-ready

	for i := range 5 {
		b.SendBroadcast(ping{N: i})
	}

	require.NoError(t, svc.Wait())
	assert.Equal(t, 1, handled)
}

func TestTerminate_FromOutsideWakesLoop(t *testing.T) {
	t.Parallel()

	b := bus.New()
	ready := make(chan struct{})

	svc := microservice.New(b, "idle", func(context.Context, *microservice.MicroService) error {
		close(ready)

		return nil
	})

	svc.Start(t.Context())
	<-ready

	svc.Terminate(t.Context(), microservice.ReasonShutdown)
	svc.Terminate(t.Context(), microservice.ReasonCompleted)

	select {
	case <-svc.Done():
	case <-time.After(5 * time.Second):
		require.FailNow(t, "microservice did not stop")
	}

	assert.Equal(t, microservice.StateTerminated, svc.State())
}

func TestPanic_BecomesCrash(t *testing.T) {
	t.Parallel()

	b := bus.New()
	watcher := watch[microservice.CrashedBroadcast](t, b)
	ready := make(chan struct{})

	svc := microservice.New(b, "fragile", func(ctx context.Context, m *microservice.MicroService) error {
		defer close(ready)

		return microservice.OnBroadcast(m, func(context.Context, ping) {
			panic("sensor on fire")
		})
	})

	svc.Start(t.Context())
	<-ready

	b.SendBroadcast(ping{})

	err := svc.Wait()
	require.ErrorIs(t, err, microservice.ErrCrashed)

	msg := receive(t, b, watcher)

	crash, ok := msg.(microservice.CrashedBroadcast)
	require.True(t, ok)
	assert.Equal(t, svc.ID(), crash.Sender)
	assert.Contains(t, crash.Description, "sensor on fire")
	assert.False(t, b.IsRegistered(svc.ID()))
}

func TestInitError_Crashes(t *testing.T) {
	t.Parallel()

	b := bus.New()
	watcher := watch[microservice.CrashedBroadcast](t, b)

	svc := microservice.New(b, "broken", func(context.Context, *microservice.MicroService) error {
		return assert.AnError
	})

	err := svc.Run(t.Context())
	require.ErrorIs(t, err, assert.AnError)

	crash, ok := receive(t, b, watcher).(microservice.CrashedBroadcast)
	require.True(t, ok)
	assert.Equal(t, assert.AnError.Error(), crash.Description)
	assert.Equal(t, microservice.StateTerminated, svc.State())
}

func TestContextCancel_StopsSilently(t *testing.T) {
	t.Parallel()

	b := bus.New()
	terminated := watch[microservice.TerminatedBroadcast](t, b)
	crashed := watch[microservice.CrashedBroadcast](t, b)
	ready := make(chan struct{})

	svc := microservice.New(b, "cancelled", func(context.Context, *microservice.MicroService) error {
		close(ready)

		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())

	svc.Start(ctx)
	<-ready

	cancel()

	require.NoError(t, svc.Wait())
	assert.False(t, b.IsRegistered(svc.ID()))
	assert.Zero(t, b.QueueLen(terminated))
	assert.Zero(t, b.QueueLen(crashed))
}

func TestRun_Twice(t *testing.T) {
	t.Parallel()

	b := bus.New()

	svc := microservice.New(b, "once", func(ctx context.Context, m *microservice.MicroService) error {
		m.Terminate(ctx, microservice.ReasonCompleted)

		return nil
	})

	require.NoError(t, svc.Run(t.Context()))
	require.ErrorIs(t, svc.Run(t.Context()), microservice.ErrAlreadyStarted)
}

func TestOnEvent_WrongKind(t *testing.T) {
	t.Parallel()

	b := bus.New()

	var bindErr error

	svc := microservice.New(b, "confused", func(ctx context.Context, m *microservice.MicroService) error {
		// A broadcast type cannot be bound as an event.
		bindErr = microservice.OnEvent(m, func(context.Context, ping) {})

		m.Terminate(ctx, microservice.ReasonCompleted)

		return nil
	})

	require.NoError(t, svc.Run(t.Context()))
	require.ErrorIs(t, bindErr, bus.ErrWrongKind)
}

func TestHandlersRunSequentially(t *testing.T) {
	t.Parallel()

	b := bus.New()
	ready := make(chan struct{})

	var (
		mu      sync.Mutex
		active  int
		overlap bool
		seen    []int
	)

	svc := microservice.New(b, "serial", func(ctx context.Context, m *microservice.MicroService) error {
		defer close(ready)

		return microservice.OnBroadcast(m, func(ctx context.Context, p ping) {
			mu.Lock()
			active++
			overlap = overlap || active > 1
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			seen = append(seen, p.N)
			mu.Unlock()

			if p.N == 19 {
				m.Terminate(ctx, microservice.ReasonCompleted)
			}
		})
	})

	svc.Start(t.Context())
	<-ready

	for i := range 20 {
		b.SendBroadcast(ping{N: i})
	}

	require.NoError(t, svc.Wait())

	mu.Lock()
	defer mu.Unlock()

	assert.False(t, overlap)
	require.Len(t, seen, 20)

	for i, n := range seen {
		assert.Equal(t, i, n)
	}
}

func TestRun_MutedContextSilencesHandlers(t *testing.T) {
	t.Parallel()

	for _, muted := range []bool{false, true} {
		var buf bytes.Buffer

		b := bus.New()
		svc := microservice.New(b, "Chatty", func(_ context.Context, m *microservice.MicroService) error {
			return microservice.OnBroadcast(m, func(ctx context.Context, p ping) {
				logger.Get(ctx).Info("got ping", "n", p.N)
				m.Terminate(ctx, microservice.ReasonCompleted)
			})
		})

		ctx := logger.WithLogger(t.Context(), slog.New(slog.NewTextHandler(&buf, nil)))
		svc.Start(logger.WithMuted(ctx, muted))

		select {
		case <-svc.Ready():
		case <-time.After(time.Second):
			require.FailNow(t, "actor did not become ready")
		}

		b.SendBroadcast(ping{N: 1})
		require.NoError(t, svc.Wait())

		if muted {
			assert.Empty(t, buf.String())
		} else {
			assert.Contains(t, buf.String(), "got ping")
		}
	}
}
