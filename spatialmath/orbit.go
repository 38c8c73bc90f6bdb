package spatialmath

import (
	"iter"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// OrbitAngles partitions [0, 2π) into n evenly spaced angles starting at 0. The closing angle 2π
// is not included.
func OrbitAngles(n int) []float64 {
	if n <= 0 {
		return nil
	}
	angles := make([]float64, n)
	for i := range angles {
		angles[i] = orbitAngle(i, n)
	}
	return angles
}

func orbitAngle(i, n int) float64 {
	return 2 * math.Pi * float64(i) / float64(n)
}

// PoseForAngle returns the camera pose on a circle of the given radius at the given height,
// looking at the world origin.
func PoseForAngle(angle, radius, height float64) (Pose, error) {
	return PoseForAngleAround(r3.Vector{}, angle, radius, height)
}

// PoseForAngleAround is PoseForAngle with the circle centred above target instead of the origin.
func PoseForAngleAround(target r3.Vector, angle, radius, height float64) (Pose, error) {
	eye := r3.Vector{
		X: target.X + radius*math.Cos(angle),
		Y: target.Y + radius*math.Sin(angle),
		Z: target.Z + height,
	}
	return LookAt(eye, target, WorldUp)
}

// Trajectory is a circular camera path of Frames evenly spaced poses at a fixed radius and height,
// all looking at Target.
type Trajectory struct {
	Frames int
	Radius float64
	Height float64
	Target r3.Vector
}

// Validate checks that every pose of the trajectory is defined.
func (t Trajectory) Validate() error {
	if t.Frames < 1 {
		return errors.Errorf("trajectory needs at least one frame, got %d", t.Frames)
	}
	if t.Radius < 0 || math.IsNaN(t.Radius) || math.IsInf(t.Radius, 0) {
		return errors.Errorf("invalid orbit radius %v", t.Radius)
	}
	if math.IsNaN(t.Height) || math.IsInf(t.Height, 0) {
		return errors.Errorf("invalid orbit height %v", t.Height)
	}
	if t.Radius == 0 && t.Height == 0 {
		return errors.New("orbit radius and height cannot both be zero")
	}
	return nil
}

// Len returns the number of poses.
func (t Trajectory) Len() int {
	return t.Frames
}

// At returns the pose of frame i.
func (t Trajectory) At(i int) (Pose, error) {
	if i < 0 || i >= t.Frames {
		return Pose{}, errors.Errorf("frame %d out of range [0,%d)", i, t.Frames)
	}
	return PoseForAngleAround(t.Target, orbitAngle(i, t.Frames), t.Radius, t.Height)
}

// Poses lazily yields (index, pose) for every frame. The sequence can be ranged over any number
// of times and always yields the same poses. Iteration stops early on an invalid pose, which
// Validate rules out.
func (t Trajectory) Poses() iter.Seq2[int, Pose] {
	return func(yield func(int, Pose) bool) {
		for i := 0; i < t.Frames; i++ {
			pose, err := t.At(i)
			if err != nil {
				return
			}
			if !yield(i, pose) {
				return
			}
		}
	}
}
