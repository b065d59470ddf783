// Package report renders the output file of a simulation run.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"

	"facette.io/natsort"
	"github.com/gurion-rock/mics/slam"
	"github.com/gurion-rock/mics/stats"
)

// FileName is the name of the output file written next to the configuration.
const FileName = "output_file.json"

// Output is the report of a run that ended normally.
type Output struct {
	stats.Snapshot

	LandMarks Landmarks `json:"landMarks"`
}

// ErrorOutput is the report of a run stopped by a sensor fault.
type ErrorOutput struct {
	Error                        string                              `json:"error"`
	FaultySensor                 string                              `json:"faultySensor"`
	LastCamerasFrame             Frames[slam.StampedDetectedObjects] `json:"lastCamerasFrame"`
	LastLiDarWorkerTrackersFrame Frames[[]slam.TrackedObject]        `json:"lastLiDarWorkerTrackersFrame"`
	Poses                        []slam.Pose                         `json:"poses"`
	Statistics                   Output                              `json:"statistics"`
}

// Landmarks marshals as an object keyed by landmark id in natural order.
type Landmarks []slam.LandMark

// MarshalJSON implements json.Marshaler.
func (l Landmarks) MarshalJSON() ([]byte, error) {
	byID := make(map[string]slam.LandMark, len(l))
	for _, lm := range l {
		byID[lm.ID] = lm
	}

	return marshalNatural(byID)
}

// Frames marshals as an object keyed by sensor name in natural order.
type Frames[T any] map[string]T

// MarshalJSON implements json.Marshaler.
func (f Frames[T]) MarshalJSON() ([]byte, error) {
	return marshalNatural(f)
}

func marshalNatural[M ~map[string]V, V any](m M) ([]byte, error) {
	keys := slices.Collect(maps.Keys(m))
	natsort.Sort(keys)

	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("error marshaling key %q: %w", key, err)
		}

		v, err := json.Marshal(m[key])
		if err != nil {
			return nil, fmt.Errorf("error marshaling value of %q: %w", key, err)
		}

		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// Normal builds the report of a completed run.
func Normal(snapshot stats.Snapshot, landmarks []slam.LandMark) Output {
	return Output{
		Snapshot:  snapshot,
		LandMarks: landmarks,
	}
}

// Failure builds the report of a run stopped by faultySensor.
func Failure(
	description, faultySensor string,
	frames *slam.LastFrames,
	poses []slam.Pose,
	snapshot stats.Snapshot,
	landmarks []slam.LandMark,
) ErrorOutput {
	cameras := make(Frames[slam.StampedDetectedObjects])
	for id, frame := range frames.Cameras() {
		cameras[fmt.Sprintf("Camera%d", id)] = frame
	}

	lidars := make(Frames[[]slam.TrackedObject])
	for id, tracked := range frames.LiDars() {
		lidars[fmt.Sprintf("LiDarWorkerTracker%d", id)] = tracked
	}

	if poses == nil {
		poses = []slam.Pose{}
	}

	return ErrorOutput{
		Error:                        description,
		FaultySensor:                 faultySensor,
		LastCamerasFrame:             cameras,
		LastLiDarWorkerTrackersFrame: lidars,
		Poses:                        poses,
		Statistics:                   Normal(snapshot, landmarks),
	}
}

// Write renders v as indented JSON into path.
func Write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling report: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec,mnd
		return fmt.Errorf("error writing report %s: %w", path, err)
	}

	return nil
}
