// Package synth renders synthetic RGB-D frames of a mesh along a circular camera orbit and
// publishes them in the BundleFusion frame layout.
package synth

import (
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/multierr"

	"github.com/scenerf/rgbdprep/bundlefusion"
	"github.com/scenerf/rgbdprep/render"
	"github.com/scenerf/rgbdprep/rimage"
	"github.com/scenerf/rgbdprep/rimage/transform"
	"github.com/scenerf/rgbdprep/spatialmath"
	"github.com/scenerf/rgbdprep/utils"
)

const (
	// DefaultFrames is the number of orbit samples.
	DefaultFrames = 30
	// DefaultRadius is the orbit radius in scene units.
	DefaultRadius = 5.0
	// DefaultHeight is the camera height above the orbit plane.
	DefaultHeight = 1.5
	// DefaultDepthScale turns scene units (meters) into stored millimeters.
	DefaultDepthScale = 1000.0
	// DefaultMeshName is the mesh file looked up in the scene directory.
	DefaultMeshName = "mesh.ply"
)

// Config controls a render run. Zero values are not defaults; start from DefaultConfig.
type Config struct {
	Frames int     `json:"frames"`
	Radius float64 `json:"radius"`
	Height float64 `json:"height"`

	Intrinsics transform.PinholeCameraIntrinsics `json:"intrinsics"`
	// IntrinsicsFile, when set, replaces Intrinsics with the parameters in that JSON file.
	// Relative paths are resolved against the config file.
	IntrinsicsFile string  `json:"intrinsics_file,omitempty"`
	ZNear          float64 `json:"z_near"`
	ZFar           float64 `json:"z_far"`

	DepthScale    float64               `json:"depth_scale"`
	DepthOverflow rimage.OverflowPolicy `json:"depth_overflow"`
	DepthShift    float64               `json:"depth_shift"`
	SensorName    string                `json:"sensor_name"`

	MeshName string `json:"mesh"`
	Workers  int    `json:"workers"`
}

// DefaultConfig returns the stock configuration: 30 frames on a 5 unit orbit at height 1.5 seen
// through the freiburg1 camera at 640x480.
func DefaultConfig() Config {
	//nolint:errcheck
	fr1, _ := transform.FreiburgIntrinsics(1)
	return Config{
		Frames:        DefaultFrames,
		Radius:        DefaultRadius,
		Height:        DefaultHeight,
		Intrinsics:    fr1,
		ZNear:         render.DefaultZNear,
		ZFar:          render.DefaultZFar,
		DepthScale:    DefaultDepthScale,
		DepthOverflow: rimage.OverflowInvalidate,
		DepthShift:    bundlefusion.DefaultDepthShift,
		SensorName:    bundlefusion.DefaultSensorName,
		MeshName:      DefaultMeshName,
		Workers:       utils.ParallelFactor,
	}
}

// LoadConfig reads a JSON5 file and overlays it on DefaultConfig. Keys that are absent keep
// their defaults. The parser does not accept a comment between a trailing comma and the
// closing brace.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, NewIOError("read config", path, err)
	}
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ConfigurationError{Err: errors.Wrapf(err, "cannot parse %q", path)}
	}
	if cfg.IntrinsicsFile != "" {
		intrinsicsPath := cfg.IntrinsicsFile
		if !filepath.IsAbs(intrinsicsPath) {
			intrinsicsPath = filepath.Join(filepath.Dir(path), intrinsicsPath)
		}
		intrinsics, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(intrinsicsPath)
		if err != nil {
			return Config{}, &ConfigurationError{Err: err}
		}
		cfg.Intrinsics = *intrinsics
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (cfg Config) Validate() error {
	var err error
	if trajErr := cfg.Trajectory().Validate(); trajErr != nil {
		err = multierr.Append(err, trajErr)
	}
	if _, camErr := cfg.Camera(); camErr != nil {
		err = multierr.Append(err, camErr)
	}
	if !(cfg.DepthScale > 0) || math.IsInf(cfg.DepthScale, 0) {
		err = multierr.Append(err, errors.Errorf("depth scale must be positive, got %v", cfg.DepthScale))
	}
	if !(cfg.DepthShift > 0) || math.IsInf(cfg.DepthShift, 0) {
		err = multierr.Append(err, errors.Errorf("depth shift must be positive, got %v", cfg.DepthShift))
	}
	if overflowErr := cfg.DepthOverflow.Validate(); overflowErr != nil {
		err = multierr.Append(err, overflowErr)
	}
	if cfg.MeshName == "" || filepath.Base(cfg.MeshName) != cfg.MeshName {
		err = multierr.Append(err, errors.Errorf("mesh must be a plain file name, got %q", cfg.MeshName))
	}
	if cfg.Workers < 0 {
		err = multierr.Append(err, errors.Errorf("workers cannot be negative, got %d", cfg.Workers))
	}
	if err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}

// Trajectory returns the orbit described by the configuration, centred on the world origin.
func (cfg Config) Trajectory() spatialmath.Trajectory {
	return spatialmath.Trajectory{Frames: cfg.Frames, Radius: cfg.Radius, Height: cfg.Height}
}

// Camera returns the camera described by the configuration.
func (cfg Config) Camera() (*render.Camera, error) {
	return render.NewCamera(cfg.Intrinsics, cfg.ZNear, cfg.ZFar)
}
