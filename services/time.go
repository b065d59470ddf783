package services

import (
	"context"
	"sync"
	"time"

	"github.com/gurion-rock/mics/bus"
	"github.com/gurion-rock/mics/logger"
	"github.com/gurion-rock/mics/microservice"
)

// TimeService broadcasts ticks 1..duration, one per interval. It stops early
// when fusion completes the map or any service crashes.
type TimeService struct {
	*microservice.MicroService

	interval time.Duration
	duration int

	clockWG sync.WaitGroup
}

// NewTimeService creates the clock.
func NewTimeService(b *bus.Bus, interval time.Duration, duration int) *TimeService {
	s := &TimeService{
		interval: interval,
		duration: duration,
	}

	s.MicroService = microservice.New(b, TimeServiceName, s.init)

	return s
}

func (s *TimeService) init(ctx context.Context, m *microservice.MicroService) error {
	if err := microservice.OnBroadcast(m, s.onTerminated); err != nil {
		return err
	}

	if err := microservice.OnBroadcast(m, s.onCrashed); err != nil {
		return err
	}

	s.clockWG.Go(func() { s.clock(ctx) })

	return nil
}

// Run runs the actor and waits for the clock goroutine to exit.
func (s *TimeService) Run(ctx context.Context) error {
	err := s.MicroService.Run(ctx)
	s.clockWG.Wait()

	return err
}

// clock runs beside the actor loop; the loop only handles the stop signals.
func (s *TimeService) clock(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			return
		case <-ticker.C:
		}

		if s.Stopping() {
			return
		}

		s.SendBroadcast(TickBroadcast{Tick: tick})

		if tick >= s.duration {
			logger.Get(ctx).Info("clock reached the configured duration", "tick", tick)
			s.Terminate(ctx, ReasonClockStopped)

			return
		}
	}
}

func (s *TimeService) onTerminated(ctx context.Context, msg microservice.TerminatedBroadcast) {
	if msg.Reason == ReasonMapComplete {
		s.Terminate(ctx, ReasonClockStopped)
	}
}

func (s *TimeService) onCrashed(ctx context.Context, _ microservice.CrashedBroadcast) {
	s.Terminate(ctx, microservice.ReasonUpstreamFault)
}
