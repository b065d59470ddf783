package services

import (
	"context"
	"sync"

	"github.com/gurion-rock/mics/bus"
	"github.com/gurion-rock/mics/logger"
	"github.com/gurion-rock/mics/microservice"
	"github.com/gurion-rock/mics/report"
	"github.com/gurion-rock/mics/slam"
	"github.com/gurion-rock/mics/stats"
)

// Outcome describes the report written by fusion.
type Outcome struct {
	Path string
	// Report is a report.Output or, when Crashed, a report.ErrorOutput.
	Report  any
	Crashed bool
	Err     error
}

// FusionSlamService builds the map from poses and tracked objects. It writes
// the output file when every sensor has finished, the clock stops, or a
// service crashes.
type FusionSlamService struct {
	*microservice.MicroService

	fusion *slam.FusionSlam
	stats  *stats.Folder
	frames *slam.LastFrames
	output string

	sensors map[bus.ActorID]struct{}

	mu      sync.Mutex
	outcome *Outcome
}

// NewFusionSlamService creates the fusion service. sensors identifies every
// sensor service whose termination it waits for.
func NewFusionSlamService(
	b *bus.Bus,
	fusion *slam.FusionSlam,
	folder *stats.Folder,
	frames *slam.LastFrames,
	output string,
	sensors []bus.ActorID,
) *FusionSlamService {
	s := &FusionSlamService{
		fusion:  fusion,
		stats:   folder,
		frames:  frames,
		output:  output,
		sensors: make(map[bus.ActorID]struct{}, len(sensors)),
	}

	for _, id := range sensors {
		s.sensors[id] = struct{}{}
	}

	s.MicroService = microservice.New(b, FusionSlamServiceName, s.init)

	return s
}

// Outcome returns what was written, once it has been.
func (s *FusionSlamService) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome == nil {
		return Outcome{}, false
	}

	return *s.outcome, true
}

func (s *FusionSlamService) init(_ context.Context, m *microservice.MicroService) error {
	if err := microservice.OnEvent(m, s.onTracked); err != nil {
		return err
	}

	if err := microservice.OnEvent(m, s.onPose); err != nil {
		return err
	}

	if err := microservice.OnBroadcast(m, s.onTick); err != nil {
		return err
	}

	if err := microservice.OnBroadcast(m, s.onTerminated); err != nil {
		return err
	}

	return microservice.OnBroadcast(m, s.onCrashed)
}

func (s *FusionSlamService) onTracked(_ context.Context, ev *TrackedObjectsEvent) {
	s.stats.AddLandmarks(s.fusion.ProcessTracked(ev.Time, ev.Objects))
	microservice.Complete[bool](s.MicroService, ev, true)
}

func (s *FusionSlamService) onPose(_ context.Context, ev *PoseEvent) {
	s.stats.AddLandmarks(s.fusion.AddPose(ev.Pose))
	microservice.Complete[bool](s.MicroService, ev, true)
}

func (s *FusionSlamService) onTick(context.Context, TickBroadcast) {
	s.stats.Tick()
}

func (s *FusionSlamService) onTerminated(ctx context.Context, msg microservice.TerminatedBroadcast) {
	if msg.Reason == ReasonClockStopped {
		s.finish(ctx)

		return
	}

	if _, ok := s.sensors[msg.Sender]; !ok {
		return
	}

	delete(s.sensors, msg.Sender)

	if len(s.sensors) == 0 {
		s.finish(ctx)
	}
}

func (s *FusionSlamService) onCrashed(ctx context.Context, msg microservice.CrashedBroadcast) {
	out := report.Failure(msg.Description, msg.Sender.Name(), s.frames,
		s.fusion.Poses(), s.stats.Snapshot(), s.fusion.Landmarks())

	s.write(ctx, out, true)
	s.Terminate(ctx, microservice.ReasonUpstreamFault)
}

func (s *FusionSlamService) finish(ctx context.Context) {
	if n := s.fusion.Pending(); n > 0 {
		logger.Get(ctx).Warn("objects never matched a pose", "count", n)
	}

	s.write(ctx, report.Normal(s.stats.Snapshot(), s.fusion.Landmarks()), false)
	s.Terminate(ctx, ReasonMapComplete)
}

func (s *FusionSlamService) write(ctx context.Context, out any, crashed bool) {
	err := report.Write(s.output, out)
	if err != nil {
		logger.Get(ctx).Error("failed to write output file", "path", s.output, "error", err)
	} else {
		logger.Get(ctx).Info("output file written", "path", s.output, "crashed", crashed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcome = &Outcome{
		Path:    s.output,
		Report:  out,
		Crashed: crashed,
		Err:     err,
	}
}
