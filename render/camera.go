// Package render rasterizes triangle meshes into colour and depth buffers.
package render

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/scenerf/rgbdprep/rimage/transform"
	"github.com/scenerf/rgbdprep/spatialmath"
)

const (
	// DefaultZNear is the near clip distance in scene units.
	DefaultZNear = 0.01
	// DefaultZFar is the far clip distance in scene units.
	DefaultZFar = 1000.0
)

// Camera is a pinhole camera with near and far clip planes. The camera looks down its local -Z
// axis with +Y up and +X right.
type Camera struct {
	Intrinsics transform.PinholeCameraIntrinsics
	ZNear      float64
	ZFar       float64
}

// NewCamera validates and returns a camera.
func NewCamera(intrinsics transform.PinholeCameraIntrinsics, zNear, zFar float64) (*Camera, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if !(zNear > 0) || math.IsInf(zNear, 0) {
		return nil, errors.Errorf("near clip plane must be positive, got %v", zNear)
	}
	if !(zFar > zNear) {
		return nil, errors.Errorf("far clip plane %v must be beyond near clip plane %v", zFar, zNear)
	}
	return &Camera{Intrinsics: intrinsics, ZNear: zNear, ZFar: zFar}, nil
}

// Width returns the image width in pixels.
func (c *Camera) Width() int {
	return c.Intrinsics.Width
}

// Height returns the image height in pixels.
func (c *Camera) Height() int {
	return c.Intrinsics.Height
}

// WorldToCamera expresses a world point in the frame of a camera at pose: R·(x − p).
func WorldToCamera(pose spatialmath.Pose, pt r3.Vector) r3.Vector {
	return pose.Rotation().Mul(pt.Sub(pose.Point()))
}

// ProjectCameraPoint maps a camera-frame point to continuous pixel coordinates and its optical
// depth (distance along the viewing axis). Pixel centres sit on integer coordinates.
func (c *Camera) ProjectCameraPoint(pt r3.Vector) (u, v, depth float64) {
	depth = -pt.Z
	// image rows grow downward while camera +Y points up
	u, v = c.Intrinsics.Project(pt.X, -pt.Y, depth)
	return u, v, depth
}

// CameraToWorld is the inverse of WorldToCamera: p + Rᵀ·x.
func CameraToWorld(pose spatialmath.Pose, pt r3.Vector) r3.Vector {
	return pose.Point().Add(pose.Rotation().Transpose().Mul(pt))
}

// UnprojectPixel returns the camera-frame point seen at pixel (u, v) at the given optical depth.
func (c *Camera) UnprojectPixel(u, v, depth float64) r3.Vector {
	x, yDown, z := c.Intrinsics.PixelToPoint(u, v, depth)
	return r3.Vector{X: x, Y: -yDown, Z: -z}
}
