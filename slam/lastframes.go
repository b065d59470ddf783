package slam

import (
	"maps"
	"slices"
	"sync"
)

// LastFrames remembers the last frame each sensor sent, for the error report.
type LastFrames struct {
	mu      sync.Mutex
	cameras map[int]StampedDetectedObjects
	lidars  map[int][]TrackedObject
}

// NewLastFrames returns an empty LastFrames.
func NewLastFrames() *LastFrames {
	return &LastFrames{
		cameras: make(map[int]StampedDetectedObjects),
		lidars:  make(map[int][]TrackedObject),
	}
}

// UpdateCamera records the last frame sent by camera id.
func (l *LastFrames) UpdateCamera(id int, frame StampedDetectedObjects) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cameras[id] = frame
}

// UpdateLiDar records the last objects sent by LiDAR worker id.
func (l *LastFrames) UpdateLiDar(id int, tracked []TrackedObject) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lidars[id] = slices.Clone(tracked)
}

// Cameras returns a copy of the camera frames by camera id.
func (l *LastFrames) Cameras() map[int]StampedDetectedObjects {
	l.mu.Lock()
	defer l.mu.Unlock()

	return maps.Clone(l.cameras)
}

// LiDars returns a copy of the LiDAR frames by worker id.
func (l *LastFrames) LiDars() map[int][]TrackedObject {
	l.mu.Lock()
	defer l.mu.Unlock()

	return maps.Clone(l.lidars)
}
