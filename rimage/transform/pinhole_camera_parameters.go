// Package transform holds camera models used to project between the image plane and 3D space.
package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// KinectIntrinsics returns the nominal Kinect v1 parameters at 640x480.
func KinectIntrinsics() PinholeCameraIntrinsics {
	return PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 525.0, Fy: 525.0, Ppx: 319.5, Ppy: 239.5}
}

// FreiburgIntrinsics returns the calibrated parameters of the TUM RGB-D freiburg1, 2 and 3 sensors.
func FreiburgIntrinsics(sequence int) (PinholeCameraIntrinsics, error) {
	switch sequence {
	case 1:
		return PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 517.3, Fy: 516.5, Ppx: 318.6, Ppy: 255.3}, nil
	case 2:
		return PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 520.9, Fy: 521.0, Ppx: 325.1, Ppy: 249.7}, nil
	case 3:
		return PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 535.4, Fy: 539.2, Ppx: 320.1, Ppy: 247.6}, nil
	default:
		return PinholeCameraIntrinsics{}, errors.Errorf("unknown freiburg sensor %d", sequence)
	}
}

// IntrinsicsForSequence picks the freiburg parameters named in a TUM sequence name such as
// "rgbd_dataset_freiburg2_xyz" and falls back to the Kinect defaults.
func IntrinsicsForSequence(name string) PinholeCameraIntrinsics {
	lower := strings.ToLower(name)
	for seq := 1; seq <= 3; seq++ {
		if strings.Contains(lower, fmt.Sprintf("freiburg%d", seq)) {
			//nolint:errcheck
			intrinsics, _ := FreiburgIntrinsics(seq)
			return intrinsics
		}
	}
	return KinectIntrinsics()
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	// open json file
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		err = errors.Wrap(err, "error opening JSON file")
		return nil, err
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	// read our opened jsonFile as a byte array.
	byteValue, err2 := io.ReadAll(jsonFile)
	if err2 != nil {
		err2 = errors.Wrap(err2, "error reading JSON data")
		return nil, err2
	}
	// Parse into map
	intrinsics := &PinholeCameraIntrinsics{}
	err = json.Unmarshal(byteValue, intrinsics)
	if err != nil {
		err = errors.Wrap(err, "error parsing JSON string")
		return nil, err
	}
	return intrinsics, nil
}

// PixelToPoint transforms a pixel with depth to a 3D point cloud.
// The intrinsics parameters should be the ones of the sensor used to obtain the image that
// contains the pixel.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return float64(0), float64(0), float64(0)
	}
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	// get x and y
	xm := xOverZ * z
	ym := yOverZ * z
	return xm, ym, z
}

// Project projects a 3D point (x right, y down, z forward) onto the image plane without rounding.
// Points at zero depth project to (NaN, NaN).
func (params *PinholeCameraIntrinsics) Project(x, y, z float64) (float64, float64) {
	if z == 0 {
		return math.NaN(), math.NaN()
	}
	return (x/z)*params.Fx + params.Ppx, (y/z)*params.Fy + params.Ppy
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// GetHomogeneousCameraMatrix embeds the camera matrix in the upper left of a 4x4 identity.
func (params *PinholeCameraIntrinsics) GetHomogeneousCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	m := mat.NewDense(4, 4, nil)
	m.Slice(0, 3, 0, 3).(*mat.Dense).Copy(params.GetCameraMatrix())
	m.Set(3, 3, 1)
	return m
}
