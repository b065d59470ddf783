// Package microservice runs actors on top of the bus. Each MicroService owns
// one goroutine: it registers a mailbox, lets its initializer bind handlers to
// message types, and then dispatches its mailbox one message at a time until
// it terminates, crashes, or its context ends.
package microservice

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gurion-rock/mics/bus"
	"github.com/gurion-rock/mics/future"
	"github.com/gurion-rock/mics/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
)

const tracerName = "github.com/gurion-rock/mics/microservice"

var (
	// ErrAlreadyStarted is returned by Run when called a second time.
	ErrAlreadyStarted = errors.New("microservice already started")
	// ErrCrashed is returned by Run when the actor stopped through Crash.
	ErrCrashed = errors.New("microservice crashed")
	// ErrHandlerPanic wraps a value recovered from a handler.
	ErrHandlerPanic = errors.New("panic in handler")
)

// Initializer binds handlers with OnEvent and OnBroadcast. It runs on the
// actor goroutine after registration and before the first message.
type Initializer func(ctx context.Context, m *MicroService) error

type handler func(ctx context.Context, msg bus.Message)

// MicroService is a single actor.
type MicroService struct {
	name string
	id   bus.ActorID
	bus  *bus.Bus
	init Initializer

	// handlers is only touched from the actor goroutine.
	handlers map[reflect.Type]handler

	state     *atomic.Int32
	started   *atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	err       error

	mu       sync.Mutex
	stopping bool
	fault    string
	crashed  bool
	cancel   context.CancelFunc
}

// New creates an actor in StateCreated. Nothing happens until Run.
func New(b *bus.Bus, name string, init Initializer) *MicroService {
	if init == nil {
		init = func(context.Context, *MicroService) error { return nil }
	}

	return &MicroService{
		name:     name,
		id:       bus.NewActorID(name),
		bus:      b,
		init:     init,
		handlers: make(map[reflect.Type]handler),
		state:    atomic.NewInt32(int32(StateCreated)),
		started:  atomic.NewBool(false),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name returns the name given to New.
func (m *MicroService) Name() string {
	return m.name
}

// ID returns the identity the actor registers with.
func (m *MicroService) ID() bus.ActorID {
	return m.id
}

// Bus returns the bus the actor lives on.
func (m *MicroService) Bus() *bus.Bus {
	return m.bus
}

// State returns the current lifecycle state.
func (m *MicroService) State() State {
	return State(m.state.Load())
}

// Ready is closed once the initializer has returned and the actor processes
// messages, or once Run has returned if that never happens.
func (m *MicroService) Ready() <-chan struct{} {
	return m.ready
}

func (m *MicroService) markReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

// Done is closed once Run has returned.
func (m *MicroService) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until Run has returned and returns its error.
func (m *MicroService) Wait() error {
	<-m.done

	return m.err
}

// Start runs the actor on a new goroutine.
func (m *MicroService) Start(ctx context.Context) {
	go func() {
		if err := m.Run(ctx); err != nil {
			logger.Get(ctx).Error("microservice stopped with error", "actor", m.name, "error", err)
		}
	}()
}

// Run registers the actor, initializes it and processes its mailbox until
// Terminate or Crash is called or ctx ends. It always unregisters before
// returning. Cancelling ctx stops the actor without any broadcast.
func (m *MicroService) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, m.name)
	}

	defer close(m.done)
	defer m.markReady()

	m.err = m.run(logger.WithActor(ctx, m.name))

	return m.err
}

func (m *MicroService) run(ctx context.Context) error {
	subsystem := logger.GetSubsystem(ctx)
	log := logger.Get(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !m.setCancel(cancel) {
		// Terminated before it ever ran.
		m.state.Store(int32(StateTerminated))

		return m.exitErr()
	}

	started.Inc()
	alive.WithLabelValues(subsystem, m.name).Inc()
	processedMessages.WithLabelValues(subsystem, m.name).Add(0)
	panics.WithLabelValues(subsystem, m.name).Add(0)

	defer stopped.Inc()
	defer alive.WithLabelValues(subsystem, m.name).Dec()

	m.state.Store(int32(StateInitializing))
	m.bus.Register(m.id)

	defer func() {
		m.state.Store(int32(StateTerminated))
		m.bus.Unregister(m.id)
		queued.WithLabelValues(subsystem, m.name).Set(0)
	}()

	if err := m.initialize(ctx); err != nil {
		log.Error("microservice failed to initialize", "actor", m.name, "error", err)
		m.Crash(ctx, err.Error())

		return fmt.Errorf("initializing %s: %w", m.name, err)
	}

	m.state.Store(int32(StateRunning))
	m.markReady()

	log.Debug("microservice running", "actor", m.name, "id", m.id.String())

	for !m.isStopping() {
		msg, err := m.bus.Receive(loopCtx, m.id)
		if err != nil {
			if loopCtx.Err() != nil {
				break
			}

			return fmt.Errorf("receiving for %s: %w", m.name, err)
		}

		if m.isStopping() {
			break
		}

		queued.WithLabelValues(subsystem, m.name).Set(float64(m.bus.QueueLen(m.id)))

		m.dispatch(ctx, subsystem, msg)
	}

	log.Debug("microservice stopped", "actor", m.name)

	return m.exitErr()
}

func (m *MicroService) initialize(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicErr(m.name, r)
		}
	}()

	return m.init(ctx, m)
}

func (m *MicroService) dispatch(ctx context.Context, subsystem string, msg bus.Message) {
	kind := bus.KindOf(msg)

	h, ok := m.handlers[kind]
	if !ok {
		unhandledMessages.WithLabelValues(subsystem, m.name).Inc()
		logger.Get(ctx).Warn("no handler for message", "actor", m.name, "message", kind.String())

		return
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "microservice.handle",
		trace.WithAttributes(
			attribute.String("actor", m.name),
			attribute.String("message", kind.String()),
		))
	defer span.End()

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := panicErr(m.name, r)

			panics.WithLabelValues(subsystem, m.name).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler panic")

			logger.Get(ctx).Error("microservice recovered from panic",
				"actor", m.name,
				"message", kind.String(),
				"error", r,
				"stack", string(debug.Stack()))

			m.Crash(ctx, err.Error())
		}

		processedMessages.WithLabelValues(subsystem, m.name).Inc()
		processingTime.WithLabelValues(subsystem, m.name).Observe(time.Since(start).Seconds())
	}()

	h(ctx, msg)
}

func panicErr(name string, r any) error {
	if e, ok := r.(error); ok {
		return fmt.Errorf("%w in %s: %w", ErrHandlerPanic, name, e)
	}

	return fmt.Errorf("%w in %s: %v", ErrHandlerPanic, name, r)
}

func (m *MicroService) setCancel(cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping {
		return false
	}

	m.cancel = cancel

	return true
}

// Stopping reports whether Terminate or Crash has been called.
func (m *MicroService) Stopping() bool {
	return m.isStopping()
}

func (m *MicroService) isStopping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stopping
}

func (m *MicroService) exitErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.crashed {
		return fmt.Errorf("%w: %s: %s", ErrCrashed, m.name, m.fault)
	}

	return nil
}

// stop marks the actor as stopping. Only the first caller gets true.
func (m *MicroService) stop(crashed bool, fault string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping {
		return false
	}

	m.stopping = true
	m.crashed = crashed
	m.fault = fault

	if m.cancel != nil {
		m.cancel()
	}

	return true
}

// Terminate broadcasts a TerminatedBroadcast and stops the actor after the
// current handler returns. Messages still queued are never dispatched. Only
// the first Terminate or Crash has any effect.
func (m *MicroService) Terminate(ctx context.Context, reason Reason) {
	if !m.stop(false, "") {
		return
	}

	logger.Get(ctx).Info("microservice terminating", "actor", m.name, "reason", string(reason))

	m.bus.SendBroadcast(TerminatedBroadcast{
		Sender: m.id,
		Reason: reason,
	})
}

// Crash broadcasts a CrashedBroadcast and stops the actor like Terminate.
func (m *MicroService) Crash(ctx context.Context, description string) {
	if !m.stop(true, description) {
		return
	}

	logger.Get(ctx).Error("microservice crashed", "actor", m.name, "description", description)

	m.bus.SendBroadcast(CrashedBroadcast{
		Sender:      m.id,
		Description: description,
	})
}

// OnEvent binds fn to the event type E and subscribes the actor to it. E is
// the pointer type that senders send. Call it from the initializer or a
// handler; binding the same type again replaces the handler.
func OnEvent[E bus.Message](m *MicroService, fn func(ctx context.Context, ev E)) error {
	kind := bus.TypeOf[E]()

	if err := m.bus.SubscribeEvent(kind, m.id); err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}

	m.handlers[kind] = func(ctx context.Context, msg bus.Message) {
		fn(ctx, msg.(E)) //nolint:forcetypeassert
	}

	return nil
}

// OnBroadcast binds fn to the broadcast type B and subscribes the actor to it.
func OnBroadcast[B bus.Broadcast](m *MicroService, fn func(ctx context.Context, msg B)) error {
	kind := bus.TypeOf[B]()

	if err := m.bus.SubscribeBroadcast(kind, m.id); err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}

	m.handlers[kind] = func(ctx context.Context, msg bus.Message) {
		fn(ctx, msg.(B)) //nolint:forcetypeassert
	}

	return nil
}

// SendEvent sends ev on the actor's bus. Handlers must not block on the
// returned future.
func SendEvent[T any](m *MicroService, ev bus.Event[T]) (*future.Future[T], bool) {
	return bus.SendEvent[T](m.bus, ev)
}

// Complete resolves the future of an event this actor received.
func Complete[T any](m *MicroService, ev bus.Event[T], result T) bool {
	return bus.Complete[T](m.bus, ev, result)
}

// SendBroadcast sends msg on the actor's bus.
func (m *MicroService) SendBroadcast(msg bus.Broadcast) {
	m.bus.SendBroadcast(msg)
}
