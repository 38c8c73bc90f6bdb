package rimage

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Color is an opaque 8-bit RGB colour.
type Color struct {
	R, G, B uint8
}

// Black is the background colour of rendered frames.
var Black = Color{}

func (c Color) String() string {
	h, s, v := c.Hsv()
	return fmt.Sprintf("%s (%3d,%4.2f,%4.2f)", c.Hex(), int(h), s, v)
}

// Hex returns the colour as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%.2x%.2x%.2x", c.R, c.G, c.B)
}

// RGBA implements color.Color; the alpha is always opaque.
func (c Color) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	a = 0xffff
	return
}

// Hsv returns hue in [0,360) and saturation and value in [0,1].
func (c Color) Hsv() (float64, float64, float64) {
	return c.toColorful().Hsv()
}

// Scale multiplies every channel by f, clamping to [0,255].
func (c Color) Scale(f float64) Color {
	scale := func(v uint8) uint8 {
		return uint8(math.Round(math.Max(0, math.Min(255, float64(v)*f))))
	}
	return Color{R: scale(c.R), G: scale(c.G), B: scale(c.B)}
}

// Distance is the perceptual distance in the Lab colour space.
func (c Color) Distance(b Color) float64 {
	return c.toColorful().DistanceLab(b.toColorful())
}

func (c Color) toColorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

// NewColor returns the colour with the given channels.
func NewColor(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// NewColorFromHex parses #rrggbb.
func NewColorFromHex(hex string) (Color, error) {
	cc, err := colorful.Hex(hex)
	if err != nil {
		return Color{}, errors.Wrapf(err, "couldn't parse hex (%s)", hex)
	}
	r, g, b := cc.RGB255()
	return NewColor(r, g, b), nil
}

// NewColorFromHSV converts hue in degrees plus saturation and value in [0,1].
func NewColorFromHSV(h, s, v float64) Color {
	r, g, b := colorful.Hsv(h, s, v).Clamped().RGB255()
	return NewColor(r, g, b)
}

// NewColorFromColor converts any colour, composing partially transparent colours over black.
func NewColorFromColor(c color.Color) Color {
	if cc, ok := c.(Color); ok {
		return cc
	}
	r, g, b, _ := c.RGBA()
	return NewColor(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// ColorModel converts colours to Color.
var ColorModel = color.ModelFunc(func(c color.Color) color.Color {
	return NewColorFromColor(c)
})
