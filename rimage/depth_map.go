package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

// Depth is a quantized depth value, typically millimeters. Zero means no measurement.
type Depth uint16

// MaxDepth is the largest representable depth.
const MaxDepth = Depth(math.MaxUint16)

// OverflowPolicy decides what happens to depths that do not fit in a Depth after scaling.
type OverflowPolicy string

const (
	// OverflowInvalidate stores 0 (no measurement) for out-of-range depths.
	OverflowInvalidate OverflowPolicy = "invalidate"
	// OverflowSaturate stores MaxDepth for out-of-range depths.
	OverflowSaturate OverflowPolicy = "saturate"
)

// Validate checks that the policy is known.
func (p OverflowPolicy) Validate() error {
	switch p {
	case OverflowInvalidate, OverflowSaturate:
		return nil
	default:
		return errors.Errorf("unknown depth overflow policy %q, expected %q or %q", p, OverflowInvalidate, OverflowSaturate)
	}
}

// QuantizeDepth converts a depth in scene units to a Depth by multiplying with scale and rounding
// to the nearest integer. Zero, negative and non-finite depths are no measurement. The second
// return value reports whether the value overflowed and the policy was applied.
func QuantizeDepth(d, scale float64, policy OverflowPolicy) (Depth, bool) {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	v := math.Round(d * scale)
	if v <= float64(MaxDepth) {
		return Depth(v), false
	}
	if policy == OverflowSaturate {
		return MaxDepth, true
	}
	return 0, true
}

// DepthMap is a dense grid of quantized depths.
type DepthMap struct {
	width  int
	height int

	data []Depth
}

// NewEmptyDepthMap returns a depth map with no measurements.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]Depth, width*height),
	}
}

// NewDepthMapFromFloats quantizes a row-major buffer of scene-unit depths (0 for background).
// It returns the number of values that overflowed.
func NewDepthMapFromFloats(width, height int, values []float32, scale float64, policy OverflowPolicy) (*DepthMap, int, error) {
	if len(values) != width*height {
		return nil, 0, errors.Errorf("got %d depth values for a %dx%d map", len(values), width, height)
	}
	if err := policy.Validate(); err != nil {
		return nil, 0, err
	}
	dm := NewEmptyDepthMap(width, height)
	overflowed := 0
	for i, v := range values {
		d, over := QuantizeDepth(float64(v), scale, policy)
		if over {
			overflowed++
		}
		dm.data[i] = d
	}
	return dm, overflowed, nil
}

// ConvertImageToDepthMap reads a 16-bit grey image (or any image, through its grey value) as depths.
func ConvertImageToDepthMap(img image.Image) *DepthMap {
	bounds := img.Bounds()
	dm := NewEmptyDepthMap(bounds.Dx(), bounds.Dy())
	if g16, ok := img.(*image.Gray16); ok {
		for y := 0; y < dm.height; y++ {
			for x := 0; x < dm.width; x++ {
				dm.Set(x, y, Depth(g16.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y))
			}
		}
		return dm
	}
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			c, _ := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			dm.Set(x, y, Depth(c.Y))
		}
	}
	return dm
}

// HasData reports whether the map has any pixels.
func (dm *DepthMap) HasData() bool {
	return dm.width > 0 && len(dm.data) > 0
}

// Width returns the width in pixels.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height in pixels.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the pixel rectangle.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// Get returns the depth at p.
func (dm *DepthMap) Get(p image.Point) Depth {
	return dm.GetDepth(p.X, p.Y)
}

// GetDepth returns the depth at (x, y).
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[(y*dm.width)+x]
}

// Set sets the depth at (x, y).
func (dm *DepthMap) Set(x, y int, val Depth) {
	dm.data[(y*dm.width)+x] = val
}

// Data returns the row-major depths.
func (dm *DepthMap) Data() []Depth {
	return dm.data
}

// MinMax returns the smallest and largest measured depth. Both are 0 when nothing was measured.
func (dm *DepthMap) MinMax() (Depth, Depth) {
	min := MaxDepth
	max := Depth(0)
	for _, z := range dm.data {
		if z == 0 {
			continue
		}
		if z < min {
			min = z
		}
		if z > max {
			max = z
		}
	}
	if max == 0 {
		return 0, 0
	}
	return min, max
}

// ValidCount returns the number of pixels with a measurement.
func (dm *DepthMap) ValidCount() int {
	n := 0
	for _, z := range dm.data {
		if z != 0 {
			n++
		}
	}
	return n
}

// ToGray16Picture returns the depths as a 16-bit grey image, the layout of depth PNGs.
func (dm *DepthMap) ToGray16Picture() *image.Gray16 {
	img := image.NewGray16(dm.Bounds())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(dm.GetDepth(x, y))})
		}
	}
	return img
}

// ToPrettyPicture maps depth to hue so that near is warm and far is cool. Depths are clamped to
// [hardMin, hardMax]; pixels without a measurement stay black.
func (dm *DepthMap) ToPrettyPicture(hardMin, hardMax Depth) *Image {
	min, max := dm.MinMax()
	if min < hardMin {
		min = hardMin
	}
	if max > hardMax {
		max = hardMax
	}

	img := NewImage(dm.width, dm.height)
	span := float64(max) - float64(min)

	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			z := dm.GetDepth(x, y)
			if z == 0 {
				continue
			}
			if z < min {
				z = min
			}
			if z > max {
				z = max
			}
			ratio := 0.0
			if span > 0 {
				ratio = (float64(z) - float64(min)) / span
			}
			hue := 30 + (200.0 * ratio)
			img.SetXY(x, y, NewColorFromHSV(hue, 1.0, 1.0))
		}
	}
	return img
}
