package slam

import "slices"

// GPSIMU replays the robot's recorded poses.
type GPSIMU struct {
	status Status
	poses  []Pose
}

// NewGPSIMU returns a GPSIMU in StatusUp. Poses are ordered by time.
func NewGPSIMU(poses []Pose) *GPSIMU {
	sorted := slices.Clone(poses)
	slices.SortStableFunc(sorted, func(a, b Pose) int {
		return a.Time - b.Time
	})

	return &GPSIMU{
		status: StatusUp,
		poses:  sorted,
	}
}

// Status returns the device health.
func (g *GPSIMU) Status() Status {
	return g.status
}

// SetStatus updates the device health.
func (g *GPSIMU) SetStatus(s Status) {
	g.status = s
}

// PoseAt returns the pose recorded at tick.
func (g *GPSIMU) PoseAt(tick int) (Pose, bool) {
	i, ok := slices.BinarySearchFunc(g.poses, tick, func(p Pose, t int) int {
		return p.Time - t
	})
	if !ok {
		return Pose{}, false
	}

	return g.poses[i], true
}

// IsLastTick reports whether tick is at or past the last recorded pose.
func (g *GPSIMU) IsLastTick(tick int) bool {
	if len(g.poses) == 0 {
		return true
	}

	return tick >= g.poses[len(g.poses)-1].Time
}
