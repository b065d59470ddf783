package config

import (
	"fmt"
	"os"

	commonErrors "github.com/gurion-rock/mics/errors"
	"github.com/gurion-rock/mics/slam"
)

// Data is the content of the sensor data files.
type Data struct {
	// CameraFrames maps a camera_key to its recorded frames.
	CameraFrames map[string][]slam.StampedDetectedObjects
	LiDarRecords []slam.StampedCloudPoints
	Poses        []slam.Pose
}

type detectedObject struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
}

type cameraFrame struct {
	Time            int              `yaml:"time"`
	DetectedObjects []detectedObject `yaml:"detectedObjects"`
}

type lidarRecord struct {
	Time        int         `yaml:"time"`
	ID          string      `yaml:"id"`
	CloudPoints [][]float64 `yaml:"cloudPoints"`
}

type pose struct {
	Time int     `yaml:"time"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	Yaw  float64 `yaml:"yaw"`
}

// LoadData reads every data file named by the configuration. All failures are
// reported together.
func (c *Config) LoadData() (*Data, error) {
	var errs commonErrors.Collection

	data := &Data{
		CameraFrames: make(map[string][]slam.StampedDetectedObjects),
	}

	if c.Cameras.DataPath != "" {
		frames, err := loadCameraFrames(c.Resolve(c.Cameras.DataPath))
		errs.Add(err)

		data.CameraFrames = frames
	}

	if c.LiDarWorkers.DataPath != "" {
		records, err := loadLiDarRecords(c.Resolve(c.LiDarWorkers.DataPath))
		errs.Add(err)

		data.LiDarRecords = records
	}

	poses, err := loadPoses(c.Resolve(c.PoseFile))
	errs.Add(err)

	data.Poses = poses

	for _, cam := range c.Cameras.Configurations {
		if _, ok := data.CameraFrames[cam.CameraKey]; !ok && data.CameraFrames != nil {
			errs.Addf("%w: no recordings for camera_key %q", ErrInvalidConfig, cam.CameraKey)
		}
	}

	if err := errs.GetError(); err != nil {
		return nil, err
	}

	return data, nil
}

func readAndDecode(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading data file: %w", err)
	}

	if err := decode(raw, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return nil
}

func loadCameraFrames(path string) (map[string][]slam.StampedDetectedObjects, error) {
	var raw map[string][]cameraFrame

	if err := readAndDecode(path, &raw); err != nil {
		return nil, err
	}

	out := make(map[string][]slam.StampedDetectedObjects, len(raw))

	for key, frames := range raw {
		converted := make([]slam.StampedDetectedObjects, 0, len(frames))

		for _, frame := range frames {
			objects := make([]slam.DetectedObject, 0, len(frame.DetectedObjects))
			for _, obj := range frame.DetectedObjects {
				objects = append(objects, slam.DetectedObject(obj))
			}

			converted = append(converted, slam.StampedDetectedObjects{
				Time:            frame.Time,
				DetectedObjects: objects,
			})
		}

		out[key] = converted
	}

	return out, nil
}

func loadLiDarRecords(path string) ([]slam.StampedCloudPoints, error) {
	var raw []lidarRecord

	if err := readAndDecode(path, &raw); err != nil {
		return nil, err
	}

	out := make([]slam.StampedCloudPoints, 0, len(raw))

	for _, rec := range raw {
		points := make([]slam.CloudPoint, 0, len(rec.CloudPoints))

		for _, p := range rec.CloudPoints {
			if len(p) < 2 { //nolint:mnd
				return nil, fmt.Errorf("%w: %s: cloud point of %s at %d has %d coordinates",
					ErrInvalidConfig, path, rec.ID, rec.Time, len(p))
			}

			// A third coordinate, if present, is height and is not used.
			points = append(points, slam.CloudPoint{X: p[0], Y: p[1]})
		}

		out = append(out, slam.StampedCloudPoints{
			ID:          rec.ID,
			Time:        rec.Time,
			CloudPoints: points,
		})
	}

	return out, nil
}

func loadPoses(path string) ([]slam.Pose, error) {
	var raw []pose

	if err := readAndDecode(path, &raw); err != nil {
		return nil, err
	}

	out := make([]slam.Pose, 0, len(raw))
	for _, p := range raw {
		out = append(out, slam.Pose(p))
	}

	return out, nil
}
