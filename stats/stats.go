// Package stats collects the run statistics printed in the output file.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

var (
	runtimeTicks = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "simulation_runtime_ticks_total",
		Help: "The total number of ticks processed by the fusion service",
	})

	detectedObjects = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "simulation_detected_objects_total",
		Help: "The total number of objects sent by cameras",
	})

	trackedObjects = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "simulation_tracked_objects_total",
		Help: "The total number of objects sent by LiDAR workers",
	})

	landmarks = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "simulation_landmarks_total",
		Help: "The total number of distinct landmarks placed on the map",
	})
)

// Folder is a set of counters safe for concurrent use.
type Folder struct {
	systemRuntime   *atomic.Int64
	detectedObjects *atomic.Int64
	trackedObjects  *atomic.Int64
	landmarks       *atomic.Int64
}

// Snapshot is a point-in-time copy of a Folder.
type Snapshot struct {
	SystemRuntime      int64 `json:"systemRuntime"`
	NumDetectedObjects int64 `json:"numDetectedObjects"`
	NumTrackedObjects  int64 `json:"numTrackedObjects"`
	NumLandmarks       int64 `json:"numLandmarks"`
}

// New returns a Folder with every counter at zero.
func New() *Folder {
	return &Folder{
		systemRuntime:   atomic.NewInt64(0),
		detectedObjects: atomic.NewInt64(0),
		trackedObjects:  atomic.NewInt64(0),
		landmarks:       atomic.NewInt64(0),
	}
}

// Tick adds one tick of runtime.
func (f *Folder) Tick() {
	f.systemRuntime.Inc()
	runtimeTicks.Inc()
}

// AddDetected counts objects sent by a camera.
func (f *Folder) AddDetected(n int) {
	f.detectedObjects.Add(int64(n))
	detectedObjects.Add(float64(n))
}

// AddTracked counts objects sent by a LiDAR worker.
func (f *Folder) AddTracked(n int) {
	f.trackedObjects.Add(int64(n))
	trackedObjects.Add(float64(n))
}

// AddLandmarks counts new landmarks.
func (f *Folder) AddLandmarks(n int) {
	f.landmarks.Add(int64(n))
	landmarks.Add(float64(n))
}

// Snapshot reads every counter.
func (f *Folder) Snapshot() Snapshot {
	return Snapshot{
		SystemRuntime:      f.systemRuntime.Load(),
		NumDetectedObjects: f.detectedObjects.Load(),
		NumTrackedObjects:  f.trackedObjects.Load(),
		NumLandmarks:       f.landmarks.Load(),
	}
}
