package bundlefusion

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/scenerf/rgbdprep/spatialmath"
	rutils "github.com/scenerf/rgbdprep/utils"
)

const (
	framePrefix = "frame-"
	poseSuffix  = ".pose.txt"
	depthSuffix = ".depth.png"

	// ColorTag names colour images of converted datasets ("frame-000000.color.png").
	ColorTag = "color"
	// RGBTag names colour images of rendered datasets ("frame-000.rgb.png").
	RGBTag = "rgb"
)

// FrameNaming picks how frame files are named.
type FrameNaming struct {
	// Digits is the zero padded width of the frame index.
	Digits int
	// ColorTag sits between the index and the colour file extension.
	ColorTag string
}

var (
	// RenderedFrameNaming is used for synthesized frames: frame-000.rgb.png.
	RenderedFrameNaming = FrameNaming{Digits: 3, ColorTag: RGBTag}
	// ConvertedFrameNaming is used for converted recordings: frame-000000.color.png.
	ConvertedFrameNaming = FrameNaming{Digits: 6, ColorTag: ColorTag}
)

// Stem returns the common prefix of all files of frame index.
func (fn FrameNaming) Stem(index int) string {
	return fmt.Sprintf("%s%0*d", framePrefix, fn.Digits, index)
}

// ColorFile names the colour image of frame index; ext includes the dot.
func (fn FrameNaming) ColorFile(index int, ext string) string {
	return fn.Stem(index) + "." + fn.ColorTag + ext
}

// DepthFile names the 16-bit depth image of frame index.
func (fn FrameNaming) DepthFile(index int) string {
	return fn.Stem(index) + depthSuffix
}

// PoseFile names the pose of frame index.
func (fn FrameNaming) PoseFile(index int) string {
	return fn.Stem(index) + poseSuffix
}

// PoseFileForStamp names a pose by its recording timestamp with the decimal point removed, as in
// "frame-1305031102175304.pose.txt".
func PoseFileForStamp(stamp string) string {
	return framePrefix + strings.ReplaceAll(stamp, ".", "") + poseSuffix
}

// WritePoseFile atomically writes pose to path.
func WritePoseFile(path string, pose spatialmath.Pose, format spatialmath.PoseFormat) error {
	return rutils.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, spatialmath.FormatPose(pose, format))
		return err
	})
}

// ReadPoseFile parses the pose at path.
func ReadPoseFile(path string) (spatialmath.Pose, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	pose, err := spatialmath.ParsePose(string(data))
	if err != nil {
		return spatialmath.Pose{}, errors.Wrapf(err, "cannot parse %q", path)
	}
	return pose, nil
}

// ListFrameIndices returns the sorted indices of every pose file in dir.
func ListFrameIndices(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var indices []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, framePrefix) || !strings.HasSuffix(name, poseSuffix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, framePrefix), poseSuffix))
		if err != nil {
			continue
		}
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices, nil
}

// FramePaths joins the colour, depth and pose file names of index onto dir.
func (fn FrameNaming) FramePaths(dir string, index int, colorExt string) (color, depth, pose string) {
	return filepath.Join(dir, fn.ColorFile(index, colorExt)),
		filepath.Join(dir, fn.DepthFile(index)),
		filepath.Join(dir, fn.PoseFile(index))
}
