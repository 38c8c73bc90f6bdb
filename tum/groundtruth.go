// Package tum converts TUM RGB-D recordings into the BundleFusion frame layout.
package tum

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/scenerf/rgbdprep/bundlefusion"
	"github.com/scenerf/rgbdprep/spatialmath"
)

const (
	// GroundTruthFileName is the trajectory file of a TUM sequence.
	GroundTruthFileName = "groundtruth.txt"
	// RGBDir holds the colour images of a TUM sequence.
	RGBDir = "rgb"
	// DepthDir holds the depth images of a TUM sequence.
	DepthDir = "depth"

	groundTruthFields = 8
)

// StampedPose is one ground truth sample.
type StampedPose struct {
	Stamp float64
	// StampText is the timestamp exactly as written in the file.
	StampText string
	Pose      spatialmath.Pose
}

// ParseGroundTruth reads "timestamp tx ty tz qx qy qz qw" lines. Blank lines and lines starting
// with '#' are skipped.
func ParseGroundTruth(r io.Reader) ([]StampedPose, error) {
	var poses []StampedPose
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != groundTruthFields {
			return nil, errors.Errorf("ground truth line %d: expected %d fields, got %d", lineNum, groundTruthFields, len(fields))
		}
		values := make([]float64, groundTruthFields)
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "ground truth line %d", lineNum)
			}
			values[i] = v
		}
		rot := spatialmath.QuatToRotationMatrix(spatialmath.QuatFromXYZW(values[4], values[5], values[6], values[7]))
		poses = append(poses, StampedPose{
			Stamp:     values[0],
			StampText: fields[0],
			Pose:      spatialmath.NewPose(r3.Vector{X: values[1], Y: values[2], Z: values[3]}, rot),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return poses, nil
}

// ReadGroundTruthFile parses the ground truth file at path.
func ReadGroundTruthFile(path string) ([]StampedPose, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	poses, err := ParseGroundTruth(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse %q", path)
	}
	return poses, nil
}

// ExportGroundTruthPoses writes every ground truth sample of the sequence in folder to out as
// frame-<timestamp without dot>.pose.txt and returns how many were written.
func ExportGroundTruthPoses(folder, out string) (int, error) {
	poses, err := ReadGroundTruthFile(filepath.Join(folder, GroundTruthFileName))
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(out, 0o750); err != nil {
		return 0, err
	}
	for i, p := range poses {
		path := filepath.Join(out, bundlefusion.PoseFileForStamp(p.StampText))
		if err := bundlefusion.WritePoseFile(path, p.Pose, spatialmath.PoseFormatFixed); err != nil {
			return i, errors.Wrapf(err, "cannot write %q", path)
		}
	}
	return len(poses), nil
}
