package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestLookAt(t *testing.T) {
	t.Run("basis", func(t *testing.T) {
		eye := r3.Vector{X: 3, Y: -2, Z: 4}
		p, err := LookAt(eye, r3.Vector{}, WorldUp)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p.Rotation().IsProperRotation(1e-9), test.ShouldBeTrue)
		vectorAlmostEqual(t, CameraForward(p), eye.Mul(-1).Normalize())
		test.That(t, p.Point(), test.ShouldResemble, eye)
	})

	t.Run("target maps onto the optical axis", func(t *testing.T) {
		eye := r3.Vector{X: 1, Y: 2, Z: 3}
		target := r3.Vector{X: -1, Y: 0.5, Z: 0}
		p, err := LookAt(eye, target, WorldUp)
		test.That(t, err, test.ShouldBeNil)
		cam := p.Rotation().Mul(target.Sub(eye))
		test.That(t, cam.X, test.ShouldAlmostEqual, 0)
		test.That(t, cam.Y, test.ShouldAlmostEqual, 0)
		test.That(t, cam.Z, test.ShouldBeLessThan, 0.0)
	})

	t.Run("looking along the reference up", func(t *testing.T) {
		for _, eye := range []r3.Vector{{Y: 4}, {Y: -4}} {
			p, err := LookAt(eye, r3.Vector{}, WorldUp)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, p.Rotation().IsProperRotation(1e-9), test.ShouldBeTrue)
			vectorAlmostEqual(t, CameraForward(p), eye.Mul(-1).Normalize())
		}
	})

	t.Run("eye on target", func(t *testing.T) {
		_, err := LookAt(r3.Vector{X: 1}, r3.Vector{X: 1}, WorldUp)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestOrbitAngles(t *testing.T) {
	test.That(t, OrbitAngles(0), test.ShouldBeNil)
	angles := OrbitAngles(4)
	test.That(t, len(angles), test.ShouldEqual, 4)
	test.That(t, angles[0], test.ShouldEqual, 0.0)
	test.That(t, angles[1], test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, angles[3], test.ShouldAlmostEqual, 3*math.Pi/2)
	for _, a := range OrbitAngles(30) {
		test.That(t, a, test.ShouldBeLessThan, 2*math.Pi)
	}
}

func TestTrajectory(t *testing.T) {
	traj := Trajectory{Frames: 4, Radius: 5, Height: 1.5}
	test.That(t, traj.Validate(), test.ShouldBeNil)
	test.That(t, traj.Len(), test.ShouldEqual, 4)

	expected := []r3.Vector{{X: 5, Y: 0, Z: 1.5}, {X: 0, Y: 5, Z: 1.5}, {X: -5, Y: 0, Z: 1.5}, {X: 0, Y: -5, Z: 1.5}}
	count := 0
	for i, p := range traj.Poses() {
		test.That(t, i, test.ShouldEqual, count)
		vectorAlmostEqual(t, p.Point(), expected[i])
		test.That(t, p.Rotation().IsProperRotation(1e-9), test.ShouldBeTrue)
		vectorAlmostEqual(t, CameraForward(p), p.Point().Mul(-1).Normalize())
		count++
	}
	test.That(t, count, test.ShouldEqual, 4)

	t.Run("restartable", func(t *testing.T) {
		var first, second []Pose
		for _, p := range traj.Poses() {
			first = append(first, p)
		}
		for _, p := range traj.Poses() {
			second = append(second, p)
		}
		test.That(t, second, test.ShouldResemble, first)
	})

	t.Run("early stop", func(t *testing.T) {
		seen := 0
		for i := range traj.Poses() {
			seen++
			if i == 1 {
				break
			}
		}
		test.That(t, seen, test.ShouldEqual, 2)
	})

	t.Run("at", func(t *testing.T) {
		p, err := traj.At(2)
		test.That(t, err, test.ShouldBeNil)
		vectorAlmostEqual(t, p.Point(), expected[2])
		_, err = traj.At(4)
		test.That(t, err, test.ShouldNotBeNil)
		_, err = traj.At(-1)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("around target", func(t *testing.T) {
		target := r3.Vector{X: 1, Y: 1, Z: 1}
		p, err := Trajectory{Frames: 3, Radius: 2, Height: 1, Target: target}.At(0)
		test.That(t, err, test.ShouldBeNil)
		vectorAlmostEqual(t, p.Point(), r3.Vector{X: 3, Y: 1, Z: 2})
		vectorAlmostEqual(t, CameraForward(p), target.Sub(p.Point()).Normalize())
	})
}

func TestTrajectoryValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		traj Trajectory
	}{
		{"no frames", Trajectory{Frames: 0, Radius: 1}},
		{"negative radius", Trajectory{Frames: 1, Radius: -1}},
		{"nan height", Trajectory{Frames: 1, Radius: 1, Height: math.NaN()}},
		{"degenerate", Trajectory{Frames: 1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.That(t, tc.traj.Validate(), test.ShouldNotBeNil)
		})
	}
	// straight overhead is still well defined
	test.That(t, Trajectory{Frames: 2, Height: 3}.Validate(), test.ShouldBeNil)
	p, err := Trajectory{Frames: 2, Height: 3}.At(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Rotation().IsProperRotation(1e-9), test.ShouldBeTrue)
}
