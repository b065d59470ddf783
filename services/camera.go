package services

import (
	"context"

	"github.com/gurion-rock/mics/bus"
	"github.com/gurion-rock/mics/logger"
	"github.com/gurion-rock/mics/microservice"
	"github.com/gurion-rock/mics/slam"
	"github.com/gurion-rock/mics/stats"
)

// CameraService sends each recorded frame to a LiDAR worker once the camera
// frequency has elapsed. An error detection crashes it.
type CameraService struct {
	*microservice.MicroService

	cam    *slam.Camera
	stats  *stats.Folder
	frames *slam.LastFrames
}

// NewCameraService creates the service for cam.
func NewCameraService(b *bus.Bus, cam *slam.Camera, folder *stats.Folder, frames *slam.LastFrames) *CameraService {
	s := &CameraService{
		cam:    cam,
		stats:  folder,
		frames: frames,
	}

	s.MicroService = microservice.New(b, cam.Name(), s.init)

	return s
}

func (s *CameraService) init(_ context.Context, m *microservice.MicroService) error {
	if err := microservice.OnBroadcast(m, s.onTick); err != nil {
		return err
	}

	if err := microservice.OnBroadcast(m, s.onTerminated); err != nil {
		return err
	}

	return microservice.OnBroadcast(m, s.onCrashed)
}

func (s *CameraService) onTick(ctx context.Context, tick TickBroadcast) {
	if s.cam.Exhausted(tick.Tick) {
		s.cam.SetStatus(slam.StatusDown)
		s.Terminate(ctx, microservice.ReasonCompleted)

		return
	}

	if desc, faulty := s.cam.Fault(tick.Tick); faulty {
		s.cam.SetStatus(slam.StatusError)
		s.Crash(ctx, desc)

		return
	}

	frame, ok := s.cam.Due(tick.Tick)
	if !ok {
		return
	}

	s.stats.AddDetected(len(frame.DetectedObjects))
	s.frames.UpdateCamera(s.cam.ID, frame)

	_, routed := microservice.SendEvent[bool](s.MicroService, &DetectObjectsEvent{
		Camera: s.cam.ID,
		Frame:  frame,
	})
	if !routed {
		logger.Get(ctx).Warn("no LiDAR worker accepts detections", "tick", tick.Tick, "frame", frame.Time)
	}
}

func (s *CameraService) onTerminated(ctx context.Context, msg microservice.TerminatedBroadcast) {
	if msg.Reason == ReasonClockStopped {
		s.cam.SetStatus(slam.StatusDown)
		s.Terminate(ctx, microservice.ReasonShutdown)
	}
}

func (s *CameraService) onCrashed(ctx context.Context, _ microservice.CrashedBroadcast) {
	s.cam.SetStatus(slam.StatusError)
	s.Terminate(ctx, microservice.ReasonUpstreamFault)
}
