package slam

import (
	"math"
	"slices"
	"sync"
)

// FusionSlam builds the global map. Tracked objects are placed using the pose
// recorded at their detection time; objects that arrive before their pose are
// held until it does.
type FusionSlam struct {
	mu sync.Mutex

	landmarks []*LandMark
	byID      map[string]*LandMark

	poses   map[int]Pose
	pending map[int][]TrackedObject
}

// NewFusionSlam returns an empty map.
func NewFusionSlam() *FusionSlam {
	return &FusionSlam{
		byID:    make(map[string]*LandMark),
		poses:   make(map[int]Pose),
		pending: make(map[int][]TrackedObject),
	}
}

// Transform converts points from the robot frame at pose to the global frame.
func Transform(pose Pose, points []CloudPoint) []CloudPoint {
	yaw := pose.Yaw * math.Pi / 180 //nolint:mnd
	sin, cos := math.Sincos(yaw)

	out := make([]CloudPoint, len(points))
	for i, p := range points {
		out[i] = CloudPoint{
			X: cos*p.X - sin*p.Y + pose.X,
			Y: sin*p.X + cos*p.Y + pose.Y,
		}
	}

	return out
}

// AddPose records a pose and places any objects that were waiting for it. It
// returns the number of landmarks created.
func (f *FusionSlam) AddPose(pose Pose) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.poses[pose.Time] = pose

	waiting, ok := f.pending[pose.Time]
	if !ok {
		return 0
	}

	delete(f.pending, pose.Time)

	return f.placeLocked(pose, waiting)
}

// ProcessTracked places objects detected at time t on the map, or holds them
// until the pose for t arrives. It returns the number of landmarks created.
func (f *FusionSlam) ProcessTracked(t int, objects []TrackedObject) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	pose, ok := f.poses[t]
	if !ok {
		f.pending[t] = append(f.pending[t], objects...)

		return 0
	}

	return f.placeLocked(pose, objects)
}

func (f *FusionSlam) placeLocked(pose Pose, objects []TrackedObject) int {
	created := 0

	for _, obj := range objects {
		points := Transform(pose, obj.Coordinates)

		if lm, ok := f.byID[obj.ID]; ok {
			lm.Refine(points)

			continue
		}

		lm := &LandMark{
			ID:          obj.ID,
			Description: obj.Description,
			Coordinates: points,
		}

		f.landmarks = append(f.landmarks, lm)
		f.byID[obj.ID] = lm
		created++
	}

	return created
}

// Landmarks returns a copy of the map in discovery order.
func (f *FusionSlam) Landmarks() []LandMark {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]LandMark, len(f.landmarks))
	for i, lm := range f.landmarks {
		out[i] = LandMark{
			ID:          lm.ID,
			Description: lm.Description,
			Coordinates: slices.Clone(lm.Coordinates),
		}
	}

	return out
}

// Poses returns the recorded poses ordered by time.
func (f *FusionSlam) Poses() []Pose {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Pose, 0, len(f.poses))
	for _, p := range f.poses {
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b Pose) int {
		return a.Time - b.Time
	})

	return out
}

// Pending returns the number of tracked objects still waiting for a pose.
func (f *FusionSlam) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, objs := range f.pending {
		n += len(objs)
	}

	return n
}
