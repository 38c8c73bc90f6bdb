package rimage

import (
	"math"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestQuantizeDepth(t *testing.T) {
	for _, tc := range []struct {
		name     string
		d        float64
		policy   OverflowPolicy
		expected Depth
		over     bool
	}{
		{"meters to millimeters", 1.2346, OverflowInvalidate, 1235, false},
		{"rounds down", 2.0004, OverflowInvalidate, 2000, false},
		{"background", 0, OverflowInvalidate, 0, false},
		{"negative", -1, OverflowSaturate, 0, false},
		{"nan", math.NaN(), OverflowSaturate, 0, false},
		{"largest", 65.535, OverflowInvalidate, 65535, false},
		{"too far invalidated", 70, OverflowInvalidate, 0, true},
		{"too far saturated", 70, OverflowSaturate, MaxDepth, true},
		{"infinite", math.Inf(1), OverflowSaturate, 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, over := QuantizeDepth(tc.d, 1000, tc.policy)
			test.That(t, d, test.ShouldEqual, tc.expected)
			test.That(t, over, test.ShouldEqual, tc.over)
		})
	}
}

func TestQuantizeDepthRecovery(t *testing.T) {
	for d := 0.01; d < 60; d += 0.0137 {
		q, over := QuantizeDepth(d, 1000, OverflowInvalidate)
		test.That(t, over, test.ShouldBeFalse)
		test.That(t, math.Abs(float64(q)/1000-d), test.ShouldBeLessThanOrEqualTo, 0.0005+1e-9)
	}
}

func TestOverflowPolicyValidate(t *testing.T) {
	test.That(t, OverflowInvalidate.Validate(), test.ShouldBeNil)
	test.That(t, OverflowSaturate.Validate(), test.ShouldBeNil)
	test.That(t, OverflowPolicy("wrap").Validate(), test.ShouldNotBeNil)
}

func TestNewDepthMapFromFloats(t *testing.T) {
	values := []float32{0, 1.5, 100, 2.25}
	dm, overflowed, err := NewDepthMapFromFloats(2, 2, values, 1000, OverflowSaturate)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, overflowed, test.ShouldEqual, 1)
	test.That(t, dm.GetDepth(0, 0), test.ShouldEqual, Depth(0))
	test.That(t, dm.GetDepth(1, 0), test.ShouldEqual, Depth(1500))
	test.That(t, dm.GetDepth(0, 1), test.ShouldEqual, MaxDepth)
	test.That(t, dm.GetDepth(1, 1), test.ShouldEqual, Depth(2250))
	test.That(t, dm.ValidCount(), test.ShouldEqual, 3)

	min, max := dm.MinMax()
	test.That(t, min, test.ShouldEqual, Depth(1500))
	test.That(t, max, test.ShouldEqual, MaxDepth)

	_, _, err = NewDepthMapFromFloats(3, 2, values, 1000, OverflowSaturate)
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = NewDepthMapFromFloats(2, 2, values, 1000, "clip")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDepthMapEmpty(t *testing.T) {
	dm := NewEmptyDepthMap(3, 2)
	test.That(t, dm.HasData(), test.ShouldBeTrue)
	min, max := dm.MinMax()
	test.That(t, min, test.ShouldEqual, Depth(0))
	test.That(t, max, test.ShouldEqual, Depth(0))
	test.That(t, dm.ToPrettyPicture(0, MaxDepth).CountNot(Black), test.ShouldEqual, 0)
	test.That(t, NewEmptyDepthMap(0, 0).HasData(), test.ShouldBeFalse)
}

func TestDepthMapPrettyPicture(t *testing.T) {
	dm := NewEmptyDepthMap(3, 1)
	dm.Set(0, 0, 1000)
	dm.Set(1, 0, 2000)
	pretty := dm.ToPrettyPicture(0, MaxDepth)
	test.That(t, pretty.GetXY(0, 0), test.ShouldResemble, NewColorFromHSV(30, 1, 1))
	test.That(t, pretty.GetXY(1, 0), test.ShouldResemble, NewColorFromHSV(230, 1, 1))
	test.That(t, pretty.GetXY(2, 0), test.ShouldResemble, Black)
}

func TestDepthMapFileRoundTrip(t *testing.T) {
	dm := NewEmptyDepthMap(4, 3)
	dm.Set(0, 0, 1)
	dm.Set(3, 2, 65535)
	dm.Set(2, 1, 1500)

	path := filepath.Join(t.TempDir(), "frame-000.depth.png")
	test.That(t, WriteDepthMapToFile(path, dm), test.ShouldBeNil)

	read, err := ReadDepthMapFromFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read.Width(), test.ShouldEqual, 4)
	test.That(t, read.Height(), test.ShouldEqual, 3)
	test.That(t, read.Data(), test.ShouldResemble, dm.Data())
}
