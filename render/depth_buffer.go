package render

import (
	"github.com/scenerf/rgbdprep/rimage"
)

// DepthBuffer holds optical depth in scene units per pixel. Zero means nothing was hit.
type DepthBuffer struct {
	width, height int
	data          []float32
}

// NewDepthBuffer returns an empty depth buffer.
func NewDepthBuffer(width, height int) *DepthBuffer {
	return &DepthBuffer{width: width, height: height, data: make([]float32, width*height)}
}

// Width returns the width in pixels.
func (db *DepthBuffer) Width() int {
	return db.width
}

// Height returns the height in pixels.
func (db *DepthBuffer) Height() int {
	return db.height
}

// At returns the depth at (x, y).
func (db *DepthBuffer) At(x, y int) float32 {
	return db.data[y*db.width+x]
}

// Data returns the row-major depths.
func (db *DepthBuffer) Data() []float32 {
	return db.data
}

// ValidCount returns the number of pixels that hit geometry.
func (db *DepthBuffer) ValidCount() int {
	n := 0
	for _, d := range db.data {
		if d > 0 {
			n++
		}
	}
	return n
}

// Valid returns the depths of all pixels that hit geometry.
func (db *DepthBuffer) Valid() []float64 {
	out := make([]float64, 0, len(db.data))
	for _, d := range db.data {
		if d > 0 {
			out = append(out, float64(d))
		}
	}
	return out
}

// ToDepthMap quantizes the buffer, multiplying by scale (1000 turns meters into millimeters).
// It also returns how many pixels were out of range and handled by policy.
func (db *DepthBuffer) ToDepthMap(scale float64, policy rimage.OverflowPolicy) (*rimage.DepthMap, int, error) {
	return rimage.NewDepthMapFromFloats(db.width, db.height, db.data, scale, policy)
}
