package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gurion-rock/mics/config"
	"github.com/gurion-rock/mics/slam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(filepath.Join("testdata", "normal", "configuration_file.json"))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.TickTime)
	assert.Equal(t, 20, cfg.Duration)
	assert.Equal(t, []config.CameraConfig{{ID: 1, Frequency: 0, CameraKey: "camera1"}}, cfg.Cameras.Configurations)
	assert.Equal(t, []config.LiDarConfig{{ID: 1, Frequency: 0}}, cfg.LiDarWorkers.Configurations)
	assert.True(t, filepath.IsAbs(cfg.Dir))
	assert.Equal(t, filepath.Join(cfg.Dir, "pose_data.json"), cfg.Resolve("./pose_data.json"))
}

func TestLoadData(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(filepath.Join("testdata", "normal", "configuration_file.json"))
	require.NoError(t, err)

	data, err := cfg.LoadData()
	require.NoError(t, err)

	frames := data.CameraFrames["camera1"]
	require.Len(t, frames, 2)
	assert.Equal(t, slam.StampedDetectedObjects{
		Time: 2,
		DetectedObjects: []slam.DetectedObject{
			{ID: "Wall_1", Description: "Wall"},
		},
	}, frames[0])

	require.Len(t, data.LiDarRecords, 3)
	assert.Equal(t, "Wall_1", data.LiDarRecords[0].ID)
	assert.Equal(t, []slam.CloudPoint{{X: 0.1176, Y: 3.6969}, {X: 0.1120, Y: 3.6909}}, data.LiDarRecords[0].CloudPoints)

	require.Len(t, data.Poses, 5)
	assert.Equal(t, slam.Pose{Time: 4, X: 2, Y: 1, Yaw: 90}, data.Poses[3])
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join("testdata", "invalid.yaml"))
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	msg := err.Error()
	assert.Contains(t, msg, "TickTime")
	assert.Contains(t, msg, "poseJsonFile")
	assert.Contains(t, msg, "duplicate camera id 1")
	assert.Contains(t, msg, "negative frequency")
	assert.Contains(t, msg, "no camera_key")
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	_, err := config.Parse([]byte(`{"TickTime": [`))
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadData_MissingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "configuration_file.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"Cameras": {"CamerasConfigurations": [{"id": 1, "frequency": 0, "camera_key": "camera1"}], `+
		`"camera_datas_path": "cameras.json"}, `+
		`"LiDarWorkers": {"LidarConfigurations": [], "lidars_data_path": "lidar.json"}, `+
		`"poseJsonFile": "poses.json", "TickTime": 1, "Duration": 5}`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	_, err = cfg.LoadData()
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "cameras.json")
	assert.Contains(t, err.Error(), "lidar.json")
	assert.Contains(t, err.Error(), "poses.json")
}

func TestLoadData_BadCloudPoint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "configuration_file.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"LiDarWorkers": {"LidarConfigurations": [{"id": 1, "frequency": 0}], `+
		`"lidars_data_path": "lidar.json"}, "poseJsonFile": "poses.json", "TickTime": 1, "Duration": 5}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lidar.json"),
		[]byte(`[{"time": 1, "id": "Wall_1", "cloudPoints": [[1.0]]}]`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "poses.json"), []byte(`[]`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	_, err = cfg.LoadData()
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
