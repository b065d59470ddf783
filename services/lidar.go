package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/gurion-rock/mics/bus"
	"github.com/gurion-rock/mics/logger"
	"github.com/gurion-rock/mics/microservice"
	"github.com/gurion-rock/mics/slam"
	"github.com/gurion-rock/mics/stats"
)

// LiDarService tracks camera detections and forwards them to fusion once the
// worker frequency has elapsed. It finishes when every camera has finished
// and nothing is left to forward.
type LiDarService struct {
	*microservice.MicroService

	worker *slam.LiDarWorkerTracker
	db     *slam.LiDarDataBase
	stats  *stats.Folder
	frames *slam.LastFrames

	cameras map[bus.ActorID]struct{}
	tick    int
	pending []slam.TrackedObject
}

// NewLiDarService creates the service for worker. cameras identifies the
// camera services whose detections it may receive.
func NewLiDarService(
	b *bus.Bus,
	worker *slam.LiDarWorkerTracker,
	db *slam.LiDarDataBase,
	folder *stats.Folder,
	frames *slam.LastFrames,
	cameras []bus.ActorID,
) *LiDarService {
	s := &LiDarService{
		worker:  worker,
		db:      db,
		stats:   folder,
		frames:  frames,
		cameras: make(map[bus.ActorID]struct{}, len(cameras)),
	}

	for _, id := range cameras {
		s.cameras[id] = struct{}{}
	}

	s.MicroService = microservice.New(b, worker.Name(), s.init)

	return s
}

func (s *LiDarService) init(_ context.Context, m *microservice.MicroService) error {
	if err := microservice.OnEvent(m, s.onDetect); err != nil {
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

func (s *LiDarService) onDetect(ctx context.Context, ev *DetectObjectsEvent) {
	microservice.Complete[bool](s.MicroService, ev, true)

	tracked := s.worker.Track(ev.Frame, s.db)
	if len(tracked) == 0 {
		return
	}

	if s.tick >= ev.Frame.Time+s.worker.Frequency {
		s.forward(ctx, ev.Frame.Time, tracked)

		return
	}

	s.pending = append(s.pending, tracked...)
}

func (s *LiDarService) onTick(ctx context.Context, tick TickBroadcast) {
	s.tick = tick.Tick

	if s.worker.Fault(tick.Tick, s.db) {
		s.worker.SetStatus(slam.StatusError)
		s.Crash(ctx, fmt.Sprintf("Sensor %s disconnected", s.worker.Name()))

		return
	}

	s.flush(ctx)
	s.finishIfIdle(ctx)
}

// flush forwards pending objects whose delay has elapsed, one event per
// detection time.
func (s *LiDarService) flush(ctx context.Context) {
	ready := make(map[int][]slam.TrackedObject)
	kept := s.pending[:0]

	for _, obj := range s.pending {
		if s.tick >= obj.Time+s.worker.Frequency {
			ready[obj.Time] = append(ready[obj.Time], obj)
		} else {
			kept = append(kept, obj)
		}
	}

	s.pending = kept

	times := make([]int, 0, len(ready))
	for t := range ready {
		times = append(times, t)
	}

	slices.Sort(times)

	for _, t := range times {
		s.forward(ctx, t, ready[t])
	}
}

func (s *LiDarService) forward(ctx context.Context, t int, objects []slam.TrackedObject) {
	s.stats.AddTracked(len(objects))
	s.frames.UpdateLiDar(s.worker.ID, objects)

	_, routed := microservice.SendEvent[bool](s.MicroService, &TrackedObjectsEvent{
		Time:    t,
		Objects: objects,
	})
	if !routed {
		logger.Get(ctx).Warn("nobody accepts tracked objects", "time", t, "count", len(objects))
	}
}

func (s *LiDarService) finishIfIdle(ctx context.Context) {
	if len(s.cameras) > 0 || len(s.pending) > 0 {
		return
	}

	s.worker.SetStatus(slam.StatusDown)
	s.Terminate(ctx, microservice.ReasonCompleted)
}

func (s *LiDarService) onTerminated(ctx context.Context, msg microservice.TerminatedBroadcast) {
	if msg.Reason == ReasonClockStopped {
		s.worker.SetStatus(slam.StatusDown)
		s.Terminate(ctx, microservice.ReasonShutdown)

		return
	}

	if _, ok := s.cameras[msg.Sender]; ok {
		delete(s.cameras, msg.Sender)
		s.finishIfIdle(ctx)
	}
}

func (s *LiDarService) onCrashed(ctx context.Context, _ microservice.CrashedBroadcast) {
	s.worker.SetStatus(slam.StatusError)
	s.Terminate(ctx, microservice.ReasonUpstreamFault)
}
