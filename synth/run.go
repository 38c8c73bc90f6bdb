package synth

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	goutils "go.viam.com/utils"

	"github.com/scenerf/rgbdprep/bundlefusion"
	"github.com/scenerf/rgbdprep/logging"
	"github.com/scenerf/rgbdprep/render"
	"github.com/scenerf/rgbdprep/rimage"
	"github.com/scenerf/rgbdprep/spatialmath"
	"github.com/scenerf/rgbdprep/utils"
)

const (
	procSuffix    = "_proc"
	stagingMarker = ".staging-"
	colorExt      = ".png"
)

// FrameStats summarizes one rendered frame.
type FrameStats struct {
	Index      int
	Coverage   float64
	MeanDepth  float64
	Overflowed int

	// CenterPoint is the world point seen at the pixel nearest the principal point, valid when
	// CenterHit is set. On an orbit it lies on the line of sight to the target.
	CenterPoint r3.Vector
	CenterHit   bool
}

// frameWriter serializes one rendered frame; tests swap it to inject failures.
var frameWriter = writeFrame

// Result describes a published run.
type Result struct {
	OutputDir string
	Frames    []FrameStats
}

// OutputDir returns where frames of scene are published: <parent>/<scene>_proc/<scene>.
func OutputDir(scene string) string {
	scene = filepath.Clean(scene)
	name := filepath.Base(scene)
	return filepath.Join(filepath.Dir(scene), name+procSuffix, name)
}

// Run renders cfg.Frames views of the mesh in scene and publishes them under OutputDir(scene).
// Frames are rendered into a hidden staging directory next to the output and moved into place
// only once every frame and info.txt were written; on error nothing is published and the staging
// directory is removed. The scene and configuration are validated before anything is created.
func Run(ctx context.Context, scene string, cfg Config, logger logging.Logger) (_ *Result, err error) {
	scene, err = filepath.Abs(scene)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	if !utils.IsDir(scene) {
		return nil, NewConfigurationError("scene %q is not a directory", scene)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	meshPath := filepath.Join(scene, cfg.MeshName)
	if !utils.FileExists(meshPath) {
		return nil, NewMissingInputError(meshPath)
	}
	var camera *render.Camera
	camera, err = cfg.Camera()
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	var info *bundlefusion.SensorInfo
	info, err = bundlefusion.NewSensorInfo(cfg.SensorName, cfg.Intrinsics, cfg.DepthShift)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	start := time.Now()
	var mesh *spatialmath.Mesh
	mesh, err = spatialmath.NewMeshFromPLYFile(meshPath)
	if err != nil {
		return nil, NewIOError("load mesh", meshPath, err)
	}
	minPt, maxPt := mesh.Bounds()
	triangles := mesh.Triangles()
	logger.Infow("loaded mesh",
		"path", meshPath,
		"vertices", len(mesh.Vertices()),
		"faces", len(mesh.Faces()),
		"degenerate_faces", lo.CountBy(triangles, func(t *spatialmath.Triangle) bool { return t.Normal() == r3.Vector{} }),
		"surface_area", lo.SumBy(triangles, func(t *spatialmath.Triangle) float64 { return t.Area() }),
		"textured", mesh.HasTexture(),
		"vertex_colors", mesh.HasVertexColors(),
		"min", minPt,
		"max", maxPt,
	)

	outputDir := OutputDir(scene)
	procDir := filepath.Dir(outputDir)
	createdProcDir := !utils.IsDir(procDir)
	if err := os.MkdirAll(procDir, 0o750); err != nil {
		return nil, NewIOError("create", procDir, err)
	}
	staging := filepath.Join(procDir, "."+filepath.Base(outputDir)+stagingMarker+uuid.NewString())
	if err := os.Mkdir(staging, 0o750); err != nil {
		return nil, NewIOError("create", staging, err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(staging); rmErr != nil {
				logger.Warnw("failed to remove staging directory", "path", staging, "error", rmErr)
			}
			if createdProcDir {
				// only removes the directory when this run left it empty
				goutils.UncheckedError(os.Remove(procDir))
			}
		}
	}()

	var frames []FrameStats
	frames, err = renderFrames(ctx, staging, mesh, camera, cfg, logger)
	if err != nil {
		return nil, err
	}
	infoPath := filepath.Join(staging, bundlefusion.InfoFileName)
	if err = NewIOError("write", infoPath, info.WriteFile(infoPath)); err != nil {
		return nil, err
	}
	if err = verifyFrames(staging, cfg.Frames); err != nil {
		return nil, err
	}
	if err = publish(staging, outputDir); err != nil {
		return nil, err
	}

	logSummary(logger, outputDir, frames, time.Since(start))
	return &Result{OutputDir: outputDir, Frames: frames}, nil
}

func renderFrames(
	ctx context.Context,
	dir string,
	mesh *spatialmath.Mesh,
	camera *render.Camera,
	cfg Config,
	logger logging.Logger,
) ([]FrameStats, error) {
	trajectory := cfg.Trajectory()
	frames := make([]FrameStats, trajectory.Len())
	naming := bundlefusion.RenderedFrameNaming

	err := utils.GroupWorkParallel(
		ctx,
		trajectory.Len(),
		cfg.Workers,
		func(numGroups int) {
			logger.Debugw("rendering", "frames", trajectory.Len(), "workers", numGroups)
		},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			renderer := render.NewRenderer(camera)
			return func(ctx context.Context, memberNum, workNum int) error {
				pose, err := trajectory.At(workNum)
				if err != nil {
					return err
				}
				img, depth, err := renderer.Render(ctx, mesh, pose)
				if err != nil {
					return err
				}
				frame, err := frameWriter(dir, naming, workNum, img, depth, pose, camera, cfg)
				if err != nil {
					return err
				}
				frames[workNum] = frame
				logger.Debugw("rendered frame",
					"frame", workNum,
					"coverage", frame.Coverage,
					"mean_depth", frame.MeanDepth,
					"overflowed", frame.Overflowed,
					"center_hit", frame.CenterHit,
					"center_point", frame.CenterPoint,
				)
				return nil
			}, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return frames, nil
}

func writeFrame(
	dir string,
	naming bundlefusion.FrameNaming,
	index int,
	img *rimage.Image,
	depth *render.DepthBuffer,
	pose spatialmath.Pose,
	camera *render.Camera,
	cfg Config,
) (FrameStats, error) {
	colorPath, depthPath, posePath := naming.FramePaths(dir, index, colorExt)

	dm, overflowed, err := depth.ToDepthMap(cfg.DepthScale, cfg.DepthOverflow)
	if err != nil {
		return FrameStats{}, err
	}
	if err := rimage.WriteImageToFile(colorPath, img); err != nil {
		return FrameStats{}, NewIOError("write", colorPath, err)
	}
	if err := rimage.WriteDepthMapToFile(depthPath, dm); err != nil {
		return FrameStats{}, NewIOError("write", depthPath, err)
	}
	if err := bundlefusion.WritePoseFile(posePath, pose, spatialmath.PoseFormatScientific); err != nil {
		return FrameStats{}, NewIOError("write", posePath, err)
	}

	frameStats := FrameStats{
		Index:      index,
		Coverage:   float64(depth.ValidCount()) / float64(depth.Width()*depth.Height()),
		Overflowed: overflowed,
	}
	if mean, err := stats.Mean(depth.Valid()); err == nil {
		frameStats.MeanDepth = mean
	}
	u := clampPixel(camera.Intrinsics.Ppx, depth.Width())
	v := clampPixel(camera.Intrinsics.Ppy, depth.Height())
	if d := float64(depth.At(u, v)); d > 0 {
		frameStats.CenterPoint = render.CameraToWorld(pose, camera.UnprojectPixel(float64(u), float64(v), d))
		frameStats.CenterHit = true
	}
	return frameStats, nil
}

func clampPixel(p float64, size int) int {
	return min(max(int(math.Round(p)), 0), size-1)
}

// verifyFrames checks that dir holds exactly the frames 0..n-1.
func verifyFrames(dir string, n int) error {
	indices, err := bundlefusion.ListFrameIndices(dir)
	if err != nil {
		return NewIOError("list", dir, err)
	}
	want := lo.Range(n)
	if missing, extra := lo.Difference(want, indices); len(missing) != 0 || len(extra) != 0 {
		return NewIOError("verify", dir, errors.Errorf("frame set incomplete: missing %v, unexpected %v", missing, extra))
	}
	naming := bundlefusion.RenderedFrameNaming
	for _, i := range want {
		colorPath, depthPath, _ := naming.FramePaths(dir, i, colorExt)
		for _, path := range []string{colorPath, depthPath} {
			if !utils.FileExists(path) {
				return NewIOError("verify", path, os.ErrNotExist)
			}
		}
	}
	return nil
}

// publish replaces outputDir with staging.
func publish(staging, outputDir string) error {
	if err := os.RemoveAll(outputDir); err != nil {
		return NewIOError("remove previous output", outputDir, err)
	}
	if err := os.Rename(staging, outputDir); err != nil {
		return NewIOError("publish", outputDir, err)
	}
	return nil
}

func logSummary(logger logging.Logger, outputDir string, frames []FrameStats, took time.Duration) {
	coverage := lo.Map(frames, func(f FrameStats, _ int) float64 { return f.Coverage })
	meanDepths := lo.FilterMap(frames, func(f FrameStats, _ int) (float64, bool) { return f.MeanDepth, f.MeanDepth > 0 })
	overflowed := lo.SumBy(frames, func(f FrameStats) int { return f.Overflowed })

	keysAndValues := []interface{}{
		"output", outputDir,
		"frames", len(frames),
		"overflowed_pixels", overflowed,
		"took", took,
	}
	if avg, err := stats.Mean(coverage); err == nil {
		keysAndValues = append(keysAndValues, "mean_coverage", avg)
	}
	if median, err := stats.Median(meanDepths); err == nil {
		keysAndValues = append(keysAndValues, "median_depth", median)
	}
	if empty := lo.CountBy(frames, func(f FrameStats) bool { return f.Coverage == 0 }); empty > 0 {
		logger.Warnw("some frames saw no geometry", "count", empty)
	}
	logger.Infow("published frames", keysAndValues...)
}
