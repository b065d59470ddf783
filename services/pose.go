package services

import (
	"context"

	"github.com/gurion-rock/mics/bus"
	"github.com/gurion-rock/mics/logger"
	"github.com/gurion-rock/mics/microservice"
	"github.com/gurion-rock/mics/slam"
)

// PoseService sends the pose of every tick to fusion until the recording ends.
type PoseService struct {
	*microservice.MicroService

	gps *slam.GPSIMU
}

// NewPoseService creates the pose service.
func NewPoseService(b *bus.Bus, gps *slam.GPSIMU) *PoseService {
	s := &PoseService{
		gps: gps,
	}

	s.MicroService = microservice.New(b, PoseServiceName, s.init)

	return s
}

func (s *PoseService) init(_ context.Context, m *microservice.MicroService) error {
	if err := microservice.OnBroadcast(m, s.onTick); err != nil {
		return err
	}

	if err := microservice.OnBroadcast(m, s.onTerminated); err != nil {
		return err
	}

	return microservice.OnBroadcast(m, s.onCrashed)
}

func (s *PoseService) onTick(ctx context.Context, tick TickBroadcast) {
	if pose, ok := s.gps.PoseAt(tick.Tick); ok && s.gps.Status() == slam.StatusUp {
		if _, routed := microservice.SendEvent[bool](s.MicroService, &PoseEvent{Pose: pose}); !routed {
			logger.Get(ctx).Warn("nobody accepts poses", "tick", tick.Tick)
		}
	}

	if s.gps.IsLastTick(tick.Tick) {
		s.gps.SetStatus(slam.StatusDown)
		s.Terminate(ctx, microservice.ReasonCompleted)
	}
}

func (s *PoseService) onTerminated(ctx context.Context, msg microservice.TerminatedBroadcast) {
	if msg.Reason == ReasonClockStopped {
		s.gps.SetStatus(slam.StatusDown)
		s.Terminate(ctx, microservice.ReasonShutdown)
	}
}

func (s *PoseService) onCrashed(ctx context.Context, _ microservice.CrashedBroadcast) {
	s.gps.SetStatus(slam.StatusError)
	s.Terminate(ctx, microservice.ReasonUpstreamFault)
}
