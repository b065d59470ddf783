package slam

import (
	"fmt"
	"slices"
)

// Camera replays the frames recorded for one camera. A frame taken at time t
// becomes available at tick t+Frequency.
//
// A Camera is owned by its service goroutine.
type Camera struct {
	ID        int
	Frequency int
	Key       string

	status Status
	frames []StampedDetectedObjects
}

// NewCamera returns a camera in StatusUp. Frames are ordered by time.
func NewCamera(id, frequency int, key string, frames []StampedDetectedObjects) *Camera {
	sorted := slices.Clone(frames)
	slices.SortStableFunc(sorted, func(a, b StampedDetectedObjects) int {
		return a.Time - b.Time
	})

	return &Camera{
		ID:        id,
		Frequency: frequency,
		Key:       key,
		status:    StatusUp,
		frames:    sorted,
	}
}

// Name is the sensor name used in reports.
func (c *Camera) Name() string {
	return fmt.Sprintf("Camera%d", c.ID)
}

// Status returns the camera health.
func (c *Camera) Status() Status {
	return c.status
}

// SetStatus updates the camera health.
func (c *Camera) SetStatus(s Status) {
	c.status = s
}

// FrameAt returns the frame recorded at time t.
func (c *Camera) FrameAt(t int) (StampedDetectedObjects, bool) {
	i, ok := slices.BinarySearchFunc(c.frames, t, func(f StampedDetectedObjects, t int) int {
		return f.Time - t
	})
	if !ok {
		return StampedDetectedObjects{}, false
	}

	return c.frames[i], true
}

// Due returns the frame that becomes available at tick.
func (c *Camera) Due(tick int) (StampedDetectedObjects, bool) {
	return c.FrameAt(tick - c.Frequency)
}

// Fault returns the description of an error detection recorded at tick.
func (c *Camera) Fault(tick int) (string, bool) {
	frame, ok := c.FrameAt(tick)
	if !ok {
		return "", false
	}

	for _, obj := range frame.DetectedObjects {
		if obj.ID == ErrorObjectID {
			return obj.Description, true
		}
	}

	return "", false
}

// Exhausted reports whether every frame has already been delivered by tick.
func (c *Camera) Exhausted(tick int) bool {
	if len(c.frames) == 0 {
		return true
	}

	return tick > c.frames[len(c.frames)-1].Time+c.Frequency
}
