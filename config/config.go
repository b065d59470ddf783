// Package config loads a simulation configuration file and the sensor data
// files it points to. Files are JSON; since JSON is a subset of YAML they are
// decoded with yaml.v3, so YAML files work as well.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	commonErrors "github.com/gurion-rock/mics/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// CameraConfig describes one camera.
type CameraConfig struct {
	ID        int    `yaml:"id"`
	Frequency int    `yaml:"frequency"`
	CameraKey string `yaml:"camera_key"`
}

// Cameras lists the cameras and where their recordings live.
type Cameras struct {
	Configurations []CameraConfig `yaml:"CamerasConfigurations"`
	DataPath       string         `yaml:"camera_datas_path"`
}

// LiDarConfig describes one LiDAR worker.
type LiDarConfig struct {
	ID        int `yaml:"id"`
	Frequency int `yaml:"frequency"`
}

// LiDarWorkers lists the LiDAR workers and the shared database file.
type LiDarWorkers struct {
	Configurations []LiDarConfig `yaml:"LidarConfigurations"`
	DataPath       string        `yaml:"lidars_data_path"`
}

// Config is a parsed configuration file.
type Config struct {
	Cameras      Cameras      `yaml:"Cameras"`
	LiDarWorkers LiDarWorkers `yaml:"LiDarWorkers"`
	PoseFile     string       `yaml:"poseJsonFile"`
	TickTime     int          `yaml:"TickTime"`
	Duration     int          `yaml:"Duration"`

	// Dir is the directory relative paths are resolved against.
	Dir string `yaml:"-"`
}

// Parse decodes a configuration without validating it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// Load reads, parses and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading configuration: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("error resolving %s: %w", path, err)
	}

	cfg.Dir = filepath.Dir(abs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports every problem found, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs commonErrors.Collection

	if c.TickTime <= 0 {
		errs.Addf("%w: TickTime must be positive, got %d", ErrInvalidConfig, c.TickTime)
	}

	if c.Duration <= 0 {
		errs.Addf("%w: Duration must be positive, got %d", ErrInvalidConfig, c.Duration)
	}

	if c.PoseFile == "" {
		errs.Addf("%w: poseJsonFile is required", ErrInvalidConfig)
	}

	if len(c.Cameras.Configurations) > 0 && c.Cameras.DataPath == "" {
		errs.Addf("%w: camera_datas_path is required", ErrInvalidConfig)
	}

	if len(c.LiDarWorkers.Configurations) > 0 && c.LiDarWorkers.DataPath == "" {
		errs.Addf("%w: lidars_data_path is required", ErrInvalidConfig)
	}

	cameraIDs := make(map[int]bool)

	for _, cam := range c.Cameras.Configurations {
		if cameraIDs[cam.ID] {
			errs.Addf("%w: duplicate camera id %d", ErrInvalidConfig, cam.ID)
		}

		cameraIDs[cam.ID] = true

		if cam.Frequency < 0 {
			errs.Addf("%w: camera %d has negative frequency", ErrInvalidConfig, cam.ID)
		}

		if cam.CameraKey == "" {
			errs.Addf("%w: camera %d has no camera_key", ErrInvalidConfig, cam.ID)
		}
	}

	lidarIDs := make(map[int]bool)

	for _, lidar := range c.LiDarWorkers.Configurations {
		if lidarIDs[lidar.ID] {
			errs.Addf("%w: duplicate LiDAR worker id %d", ErrInvalidConfig, lidar.ID)
		}

		lidarIDs[lidar.ID] = true

		if lidar.Frequency < 0 {
			errs.Addf("%w: LiDAR worker %d has negative frequency", ErrInvalidConfig, lidar.ID)
		}
	}

	return errs.GetError()
}

// Resolve returns path relative to the configuration directory, unless it is
// already absolute.
func (c *Config) Resolve(path string) string {
	if filepath.IsAbs(path) || c.Dir == "" {
		return path
	}

	return filepath.Join(c.Dir, path)
}

func decode(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("error decoding: %w", err)
	}

	return nil
}
