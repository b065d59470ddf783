// Package services implements the microservices of the GurionRock simulation
// and the messages they exchange.
package services

import (
	"github.com/gurion-rock/mics/bus"
	"github.com/gurion-rock/mics/microservice"
	"github.com/gurion-rock/mics/slam"
)

// Fixed service names. Sensor services are named after their sensor.
const (
	TimeServiceName       = "TimeService"
	PoseServiceName       = "PoseService"
	FusionSlamServiceName = "FusionSlamService"
)

const (
	// ReasonClockStopped: the time service stopped ticking, either at the
	// configured duration or after fusion completed the map. Every service
	// still running shuts down when it sees it.
	ReasonClockStopped microservice.Reason = "clock-stopped"
	// ReasonMapComplete: fusion wrote the final report.
	ReasonMapComplete microservice.Reason = "map-complete"
)

// TickBroadcast is the global clock.
type TickBroadcast struct {
	bus.BroadcastOf

	Tick int
}

// PoseEvent carries the robot pose of a tick to fusion.
type PoseEvent struct {
	bus.EventOf[bool]

	Pose slam.Pose
}

// DetectObjectsEvent carries a camera frame to a LiDAR worker.
type DetectObjectsEvent struct {
	bus.EventOf[bool]

	Camera int
	Frame  slam.StampedDetectedObjects
}

// TrackedObjectsEvent carries objects tracked at Time to fusion.
type TrackedObjectsEvent struct {
	bus.EventOf[bool]

	Time    int
	Objects []slam.TrackedObject
}
