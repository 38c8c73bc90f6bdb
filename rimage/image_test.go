package rimage

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestColor(t *testing.T) {
	c := NewColor(255, 0, 0)
	test.That(t, c.Hex(), test.ShouldEqual, "#ff0000")
	h, s, v := c.Hsv()
	test.That(t, h, test.ShouldAlmostEqual, 0)
	test.That(t, s, test.ShouldAlmostEqual, 1)
	test.That(t, v, test.ShouldAlmostEqual, 1)

	r, g, b, a := c.RGBA()
	test.That(t, r, test.ShouldEqual, uint32(0xffff))
	test.That(t, g, test.ShouldEqual, uint32(0))
	test.That(t, b, test.ShouldEqual, uint32(0))
	test.That(t, a, test.ShouldEqual, uint32(0xffff))

	fromHex, err := NewColorFromHex("#0a141e")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fromHex, test.ShouldResemble, NewColor(10, 20, 30))
	_, err = NewColorFromHex("nope")
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, NewColorFromHSV(120, 1, 1), test.ShouldResemble, NewColor(0, 255, 0))
	test.That(t, NewColorFromColor(color.NRGBA{R: 1, G: 2, B: 3, A: 255}), test.ShouldResemble, NewColor(1, 2, 3))
	test.That(t, NewColor(100, 200, 50).Scale(0.5), test.ShouldResemble, NewColor(50, 100, 25))
	test.That(t, NewColor(200, 200, 200).Scale(2), test.ShouldResemble, NewColor(255, 255, 255))
	test.That(t, c.Distance(c), test.ShouldAlmostEqual, 0)
}

func TestImage(t *testing.T) {
	img := NewImage(3, 2)
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 3, 2))
	test.That(t, img.CountNot(Black), test.ShouldEqual, 0)

	img.SetXY(2, 1, NewColor(1, 2, 3))
	img.Set(image.Point{0, 1}, NewColor(4, 5, 6))
	test.That(t, img.GetXY(2, 1), test.ShouldResemble, NewColor(1, 2, 3))
	test.That(t, img.Get(image.Point{0, 1}), test.ShouldResemble, NewColor(4, 5, 6))
	test.That(t, img.At(5, 5), test.ShouldResemble, Black)
	test.That(t, img.CountNot(Black), test.ShouldEqual, 2)

	clone := img.Clone()
	clone.Fill(NewColor(9, 9, 9))
	test.That(t, img.GetXY(2, 1), test.ShouldResemble, NewColor(1, 2, 3))
	test.That(t, clone.CountNot(NewColor(9, 9, 9)), test.ShouldEqual, 0)

	rgba := img.ToRGBA()
	test.That(t, rgba.Opaque(), test.ShouldBeTrue)
	test.That(t, rgba.RGBAAt(2, 1), test.ShouldResemble, color.RGBA{1, 2, 3, 255})

	fromStd := NewImageFromStdImage(rgba)
	test.That(t, fromStd.GetXY(0, 1), test.ShouldResemble, NewColor(4, 5, 6))
}

func TestImageFiles(t *testing.T) {
	img := NewImage(8, 6)
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetXY(x, y, NewColor(uint8(30*x), uint8(40*y), 90))
		}
	}
	dir := t.TempDir()

	for _, ext := range []string{".png", ".ppm", ".qoi"} {
		t.Run("lossless "+ext, func(t *testing.T) {
			path := filepath.Join(dir, "frame"+ext)
			test.That(t, WriteImageToFile(path, img), test.ShouldBeNil)
			read, err := ReadImageFromFile(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, NewImageFromStdImage(read), test.ShouldResemble, img)
		})
	}

	t.Run("png is 8-bit rgb", func(t *testing.T) {
		path := filepath.Join(dir, "rgb.png")
		test.That(t, WriteImageToFile(path, img), test.ShouldBeNil)
		//nolint:gosec
		f, err := os.Open(path)
		test.That(t, err, test.ShouldBeNil)
		defer f.Close()
		cfg, err := png.DecodeConfig(f)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.ColorModel, test.ShouldEqual, color.RGBAModel)
	})

	t.Run("jpeg", func(t *testing.T) {
		path := filepath.Join(dir, "frame.jpg")
		test.That(t, WriteJPEGToFile(path, img, 95), test.ShouldBeNil)
		read, err := ReadImageFromFile(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, read.Bounds().Dx(), test.ShouldEqual, 8)
		test.That(t, read.Bounds().Dy(), test.ShouldEqual, 6)
	})

	t.Run("unsupported", func(t *testing.T) {
		test.That(t, WriteImageToFile(filepath.Join(dir, "frame.tiff"), img), test.ShouldNotBeNil)
		_, err := ReadImageFromFile(filepath.Join(dir, "frame.tiff"))
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("no temp files left", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		test.That(t, err, test.ShouldBeNil)
		for _, e := range entries {
			test.That(t, strings.HasPrefix(e.Name(), "."), test.ShouldBeFalse)
		}
	})
}
