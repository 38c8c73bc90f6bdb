package rimage

import (
	"image"
	"image/color"
	"image/draw"
)

// Image is a dense 8-bit RGB colour buffer. It is not safe for concurrent writes; each renderer
// owns its own.
type Image struct {
	data          []Color
	width, height int
}

// NewImage returns a black image of the given size.
func NewImage(width, height int) *Image {
	return &Image{
		data:   make([]Color, width*height),
		width:  width,
		height: height,
	}
}

// NewImageFromBounds returns a black image covering bounds.
func NewImageFromBounds(bounds image.Rectangle) *Image {
	return NewImage(bounds.Dx(), bounds.Dy())
}

// NewImageFromStdImage copies any image into an Image, dropping alpha.
func NewImageFromStdImage(img image.Image) *Image {
	if ri, ok := img.(*Image); ok {
		return ri.Clone()
	}
	bounds := img.Bounds()
	out := NewImageFromBounds(bounds)
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			out.data[out.kxy(x, y)] = NewColorFromColor(img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return out
}

// ColorModel implements image.Image.
func (i *Image) ColorModel() color.Model {
	return ColorModel
}

// In reports whether (x, y) lies inside the image.
func (i *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < i.width && y < i.height
}

func (i *Image) kxy(x, y int) int {
	return (y * i.width) + x
}

// Bounds implements image.Image.
func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.width, i.height)
}

// Width returns the width in pixels.
func (i *Image) Width() int {
	return i.width
}

// Height returns the height in pixels.
func (i *Image) Height() int {
	return i.height
}

// At implements image.Image. Points outside the image are black.
func (i *Image) At(x, y int) color.Color {
	if !i.In(x, y) {
		return Black
	}
	return i.data[i.kxy(x, y)]
}

// Get returns the colour at p.
func (i *Image) Get(p image.Point) Color {
	return i.GetXY(p.X, p.Y)
}

// GetXY returns the colour at (x, y).
func (i *Image) GetXY(x, y int) Color {
	return i.data[i.kxy(x, y)]
}

// Set sets the colour at p.
func (i *Image) Set(p image.Point, c Color) {
	i.SetXY(p.X, p.Y, c)
}

// SetXY sets the colour at (x, y).
func (i *Image) SetXY(x, y int, c Color) {
	i.data[i.kxy(x, y)] = c
}

// Fill sets every pixel to c.
func (i *Image) Fill(c Color) {
	for k := range i.data {
		i.data[k] = c
	}
}

// Clone returns a deep copy.
func (i *Image) Clone() *Image {
	out := &Image{data: make([]Color, len(i.data)), width: i.width, height: i.height}
	copy(out.data, i.data)
	return out
}

// CountNot returns how many pixels differ from c.
func (i *Image) CountNot(c Color) int {
	n := 0
	for _, v := range i.data {
		if v != c {
			n++
		}
	}
	return n
}

// ToRGBA returns an opaque RGBA copy; encoders write such images as 8-bit RGB.
func (i *Image) ToRGBA() *image.RGBA {
	out := image.NewRGBA(i.Bounds())
	for k, c := range i.data {
		o := 4 * k
		out.Pix[o] = c.R
		out.Pix[o+1] = c.G
		out.Pix[o+2] = c.B
		out.Pix[o+3] = 0xff
	}
	return out
}

// ToRGBAImage converts any image to an opaque RGBA image.
func ToRGBAImage(img image.Image) *image.RGBA {
	if ri, ok := img.(*Image); ok {
		return ri.ToRGBA()
	}
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Over)
	return out
}
