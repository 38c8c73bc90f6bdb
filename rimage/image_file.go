package rimage

import (
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	goutils "go.viam.com/utils"

	"github.com/scenerf/rgbdprep/utils"
)

// DefaultJPEGQuality is the quality used when writing JPEG files.
const DefaultJPEGQuality = 95

// ReadImageFromFile decodes an image, picking the decoder by file extension.
func ReadImageFromFile(path string) (image.Image, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png", ".jpg", ".jpeg":
		img, err := imaging.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot decode %q", path)
		}
		return img, nil
	case ".ppm", ".qoi":
		//nolint:gosec
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer goutils.UncheckedErrorFunc(f.Close)
		var img image.Image
		if ext == ".ppm" {
			img, err = ppm.Decode(f)
		} else {
			img, err = qoi.Decode(f)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "cannot decode %q", path)
		}
		return img, nil
	default:
		return nil, errors.Errorf("unsupported image extension %q", ext)
	}
}

// WriteImageToFile encodes an image by file extension (png, jpg/jpeg, ppm or qoi) and publishes
// it atomically. PNG output of an opaque image is 8-bit RGB.
func WriteImageToFile(path string, img image.Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	var encode func(w io.Writer) error
	switch ext {
	case ".png":
		rgba := ToRGBAImage(img)
		encode = func(w io.Writer) error { return png.Encode(w, rgba) }
	case ".jpg", ".jpeg":
		return WriteJPEGToFile(path, img, DefaultJPEGQuality)
	case ".ppm":
		rgba := ToRGBAImage(img)
		encode = func(w io.Writer) error { return ppm.Encode(w, rgba) }
	case ".qoi":
		rgba := ToRGBAImage(img)
		encode = func(w io.Writer) error { return qoi.Encode(w, rgba) }
	default:
		return errors.Errorf("unsupported image extension %q", ext)
	}
	return errors.Wrapf(utils.WriteFileAtomic(path, encode), "cannot write image %q", path)
}

// WriteJPEGToFile encodes an image as JPEG with the given quality and publishes it atomically.
func WriteJPEGToFile(path string, img image.Image, quality int) error {
	err := utils.WriteFileAtomic(path, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	})
	return errors.Wrapf(err, "cannot write jpeg %q", path)
}

// ReadDepthMapFromFile reads a 16-bit grey PNG as a depth map.
func ReadDepthMapFromFile(path string) (*DepthMap, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	img, err := png.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode depth png %q", path)
	}
	return ConvertImageToDepthMap(img), nil
}

// WriteDepthMapToFile writes the depth map as a 16-bit grey PNG and publishes it atomically.
func WriteDepthMapToFile(path string, dm *DepthMap) error {
	gray := dm.ToGray16Picture()
	err := utils.WriteFileAtomic(path, func(w io.Writer) error {
		return png.Encode(w, gray)
	})
	return errors.Wrapf(err, "cannot write depth png %q", path)
}
