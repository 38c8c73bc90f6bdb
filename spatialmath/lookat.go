package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// WorldUp is the reference up direction used when orienting cameras.
var WorldUp = r3.Vector{X: 0, Y: 1, Z: 0}

// fallback references, tried in order when the view direction is parallel to the requested up
var upFallbacks = []r3.Vector{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 0}}

// LookAt returns a camera pose placed at eye and looking at target. The rotation rows are
// (right, up, -forward): the camera looks down its local -Z axis with +Y up. The up vector is
// re-orthogonalized against forward, and when forward is parallel to the reference up another
// reference is used so the basis is always orthonormal with determinant +1.
func LookAt(eye, target, up r3.Vector) (Pose, error) {
	forward := target.Sub(eye)
	if forward.Norm() < floatEpsilon {
		return Pose{}, errors.Errorf("camera position %v coincides with its target", eye)
	}
	forward = forward.Normalize()

	right := forward.Cross(up)
	for _, alt := range upFallbacks {
		if right.Norm() >= floatEpsilon {
			break
		}
		right = forward.Cross(alt)
	}
	right = right.Normalize()
	trueUp := right.Cross(forward)

	return NewPose(eye, NewRotationMatrixFromRows(right, trueUp, forward.Mul(-1))), nil
}

// CameraForward returns the direction the camera of a LookAt pose is facing.
func CameraForward(p Pose) r3.Vector {
	return p.Rotation().Row(2).Mul(-1)
}
