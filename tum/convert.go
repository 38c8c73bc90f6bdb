package tum

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/scenerf/rgbdprep/bundlefusion"
	"github.com/scenerf/rgbdprep/logging"
	"github.com/scenerf/rgbdprep/rimage/transform"
	"github.com/scenerf/rgbdprep/spatialmath"
	"github.com/scenerf/rgbdprep/utils"
)

// Options control Convert.
type Options struct {
	// Folder is the TUM sequence, holding rgb/, depth/ and groundtruth.txt.
	Folder string
	// Output receives the frames and info.txt. Empty means Folder.
	Output string
	// Margin is the association tolerance in seconds. Zero means DefaultMargin.
	Margin float64
	// Copy leaves the source images in place instead of moving them.
	Copy bool
}

// Result summarizes a conversion.
type Result struct {
	OutputDir string
	Frames    int
	Skipped   int
}

// Convert associates the colour images, depth images and ground truth of a TUM sequence and
// writes them as frame-NNNNNN.color.<ext>, frame-NNNNNN.depth.png and frame-NNNNNN.pose.txt plus
// an info.txt whose intrinsics are picked from the sequence name (freiburg1, 2 or 3, otherwise
// the Kinect defaults). Images are moved unless opts.Copy is set.
func Convert(ctx context.Context, opts Options, logger logging.Logger) (*Result, error) {
	if !utils.IsDir(opts.Folder) {
		return nil, errors.Errorf("%q is not a directory", opts.Folder)
	}
	output := opts.Output
	if output == "" {
		output = opts.Folder
	}
	margin := opts.Margin
	if margin == 0 {
		margin = DefaultMargin
	}
	if margin < 0 {
		return nil, errors.Errorf("margin cannot be negative, got %v", margin)
	}

	rgbDir := filepath.Join(opts.Folder, RGBDir)
	depthDir := filepath.Join(opts.Folder, DepthDir)
	colorFiles, err := ListStampedFiles(rgbDir, ".png", ".jpg")
	if err != nil {
		return nil, errors.Wrap(err, "cannot list colour images")
	}
	depthFiles, err := ListStampedFiles(depthDir, ".png")
	if err != nil {
		return nil, errors.Wrap(err, "cannot list depth images")
	}
	poses, err := ReadGroundTruthFile(filepath.Join(opts.Folder, GroundTruthFileName))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(output, 0o750); err != nil {
		return nil, err
	}

	matches, skipped := Associate(colorFiles, depthFiles, poses, margin)
	for _, s := range skipped {
		logger.Debugw("skipped colour image without a close depth image or pose", "file", s.Name)
	}
	logger.Infow("associated frames",
		"folder", opts.Folder,
		"colour", len(colorFiles),
		"depth", len(depthFiles),
		"poses", len(poses),
		"matched", len(matches),
		"skipped", len(skipped),
	)

	transfer := os.Rename
	if opts.Copy {
		transfer = utils.CopyFile
	}
	naming := bundlefusion.ConvertedFrameNaming
	for i, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		colorDst, depthDst, poseDst := naming.FramePaths(output, i, m.Color.Ext())
		if err := transfer(filepath.Join(rgbDir, m.Color.Name), colorDst); err != nil {
			return nil, errors.Wrapf(err, "cannot transfer %q", m.Color.Name)
		}
		if err := transfer(filepath.Join(depthDir, m.Depth.Name), depthDst); err != nil {
			return nil, errors.Wrapf(err, "cannot transfer %q", m.Depth.Name)
		}
		if err := bundlefusion.WritePoseFile(poseDst, m.Pose.Pose, spatialmath.PoseFormatFixed); err != nil {
			return nil, errors.Wrapf(err, "cannot write %q", poseDst)
		}
	}

	intrinsics := transform.IntrinsicsForSequence(filepath.Base(filepath.Clean(opts.Folder)))
	info, err := bundlefusion.NewSensorInfo(bundlefusion.DefaultSensorName, intrinsics, bundlefusion.DefaultDepthShift)
	if err != nil {
		return nil, err
	}
	if err := info.WriteFile(filepath.Join(output, bundlefusion.InfoFileName)); err != nil {
		return nil, err
	}
	logger.Infow("converted sequence", "output", output, "frames", len(matches), "intrinsics", intrinsics)
	return &Result{OutputDir: output, Frames: len(matches), Skipped: len(skipped)}, nil
}
