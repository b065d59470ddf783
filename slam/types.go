// Package slam holds the domain objects of the GurionRock simulation: sensor
// readings, the sensors themselves and the fusion engine that turns tracked
// objects into a map of landmarks.
package slam

import "fmt"

// ErrorObjectID marks a detection that reports a sensor fault instead of a
// real object.
const ErrorObjectID = "ERROR"

// Status is the health of a sensor.
type Status int

const (
	// StatusUp: producing data.
	StatusUp Status = iota
	// StatusDown: finished its data and stopped.
	StatusDown
	// StatusError: stopped because some sensor faulted.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUp:
		return "UP"
	case StatusDown:
		return "DOWN"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// CloudPoint is a 2D point. Readings are in the robot frame, landmarks in the
// charging-station frame.
type CloudPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose is the robot's position and heading (degrees) at a tick.
type Pose struct {
	Time int     `json:"time"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Yaw  float64 `json:"yaw"`
}

// DetectedObject is something a camera saw.
type DetectedObject struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// StampedDetectedObjects is one camera frame.
type StampedDetectedObjects struct {
	Time            int              `json:"time"`
	DetectedObjects []DetectedObject `json:"detectedObjects"`
}

// StampedCloudPoints is one LiDAR record for an object at a time.
type StampedCloudPoints struct {
	ID          string       `json:"id"`
	Time        int          `json:"time"`
	CloudPoints []CloudPoint `json:"cloudPoints"`
}

// TrackedObject is a detected object enriched with its LiDAR points.
type TrackedObject struct {
	ID          string       `json:"id"`
	Time        int          `json:"time"`
	Description string       `json:"description"`
	Coordinates []CloudPoint `json:"coordinates"`
}

// LandMark is an object placed on the global map.
type LandMark struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Coordinates []CloudPoint `json:"coordinates"`
}

// Refine averages points with the coordinates already known. Points past the
// end of the current outline are appended.
func (l *LandMark) Refine(points []CloudPoint) {
	for i, p := range points {
		if i >= len(l.Coordinates) {
			l.Coordinates = append(l.Coordinates, p)

			continue
		}

		l.Coordinates[i] = CloudPoint{
			X: (l.Coordinates[i].X + p.X) / 2, //nolint:mnd
			Y: (l.Coordinates[i].Y + p.Y) / 2, //nolint:mnd
		}
	}
}
