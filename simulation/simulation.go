// Package simulation wires a configuration into a running set of services on
// one bus and waits for the output file.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/gurion-rock/mics/bus"
	"github.com/gurion-rock/mics/config"
	commonErrors "github.com/gurion-rock/mics/errors"
	"github.com/gurion-rock/mics/logger"
	"github.com/gurion-rock/mics/microservice"
	"github.com/gurion-rock/mics/report"
	"github.com/gurion-rock/mics/services"
	"github.com/gurion-rock/mics/slam"
	"github.com/gurion-rock/mics/stats"
)

// ErrNoReport is returned when every service stopped but no output was written.
var ErrNoReport = errors.New("simulation ended without a report")

const defaultTickUnit = time.Second

type options struct {
	tickUnit   time.Duration
	workers    int
	outputPath string
}

// Option configures Run.
type Option func(*options)

// WithTickUnit sets the wall-clock length of one TickTime unit.
func WithTickUnit(d time.Duration) Option {
	return func(o *options) {
		o.tickUnit = d
	}
}

// WithWorkers sets the worker pool size. The pool never has fewer workers
// than there are services, since every service holds a worker until it stops.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithOutputPath overrides where the output file is written. By default it
// goes next to the configuration file.
func WithOutputPath(path string) Option {
	return func(o *options) {
		o.outputPath = path
	}
}

type service interface {
	Run(ctx context.Context) error
	Ready() <-chan struct{}
	Name() string
	ID() bus.ActorID
}

// RunFile loads the configuration at path and its data, then runs it.
func RunFile(ctx context.Context, path string, opts ...Option) (services.Outcome, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return services.Outcome{}, err
	}

	data, err := cfg.LoadData()
	if err != nil {
		return services.Outcome{}, fmt.Errorf("error loading sensor data: %w", err)
	}

	return Run(ctx, cfg, data, opts...)
}

// Run starts every service, then the clock, and blocks until all of them
// have stopped. Sensor crashes are part of a normal run: they yield an error
// report, not an error.
func Run(ctx context.Context, cfg *config.Config, data *config.Data, opts ...Option) (services.Outcome, error) {
	o := &options{
		tickUnit:   defaultTickUnit,
		outputPath: cfg.Resolve(report.FileName),
	}

	for _, opt := range opts {
		opt(o)
	}

	ctx = logger.WithSubsystem(ctx, "simulation")
	log := logger.Get(ctx)

	b := bus.New(bus.WithName("gurionrock"))
	folder := stats.New()
	frames := slam.NewLastFrames()

	var (
		sensors   []service
		cameraIDs []bus.ActorID
		sensorIDs []bus.ActorID
	)

	for _, cc := range cfg.Cameras.Configurations {
		cam := slam.NewCamera(cc.ID, cc.Frequency, cc.CameraKey, data.CameraFrames[cc.CameraKey])
		svc := services.NewCameraService(b, cam, folder, frames)

		sensors = append(sensors, svc)
		cameraIDs = append(cameraIDs, svc.ID())
	}

	db := slam.NewLiDarDataBase(data.LiDarRecords)

	for _, lc := range cfg.LiDarWorkers.Configurations {
		worker := slam.NewLiDarWorkerTracker(lc.ID, lc.Frequency)

		sensors = append(sensors, services.NewLiDarService(b, worker, db, folder, frames, cameraIDs))
	}

	sensors = append(sensors, services.NewPoseService(b, slam.NewGPSIMU(data.Poses)))

	for _, svc := range sensors {
		sensorIDs = append(sensorIDs, svc.ID())
	}

	fusion := services.NewFusionSlamService(b, slam.NewFusionSlam(), folder, frames, o.outputPath, sensorIDs)
	clock := services.NewTimeService(b, time.Duration(cfg.TickTime)*o.tickUnit, cfg.Duration)

	// The clock starts last so no service misses the first tick.
	all := append([]service{fusion}, sensors...)
	all = append(all, clock)

	pool := pond.NewPool(max(o.workers, len(all)))
	defer pool.StopAndWait()

	log.Info("starting simulation",
		"cameras", len(cfg.Cameras.Configurations),
		"lidars", len(cfg.LiDarWorkers.Configurations),
		"tickTime", cfg.TickTime,
		"duration", cfg.Duration)

	tasks := make([]pond.Task, 0, len(all))

	for _, svc := range all {
		tasks = append(tasks, pool.SubmitErr(func() error { return svc.Run(ctx) }))

		select {
		case <-svc.Ready():
		case <-ctx.Done():
		}
	}

	var errs commonErrors.Collection

	for i, task := range tasks {
		err := task.Wait()

		switch {
		case err == nil:
		case errors.Is(err, microservice.ErrCrashed):
			log.Warn("service crashed", "error", err)
		default:
			errs.Addf("%s: %w", all[i].Name(), err)
		}
	}

	if err := errs.GetError(); err != nil {
		return services.Outcome{}, err
	}

	outcome, ok := fusion.Outcome()
	if !ok {
		if ctx.Err() != nil {
			return services.Outcome{}, fmt.Errorf("simulation interrupted: %w", ctx.Err())
		}

		return services.Outcome{}, ErrNoReport
	}

	snapshot := folder.Snapshot()
	log.Info("simulation finished",
		"output", outcome.Path,
		"crashed", outcome.Crashed,
		"systemRuntime", snapshot.SystemRuntime,
		"landmarks", snapshot.NumLandmarks)

	return outcome, outcome.Err
}
