package synth

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/scenerf/rgbdprep/bundlefusion"
	"github.com/scenerf/rgbdprep/logging"
	"github.com/scenerf/rgbdprep/render"
	"github.com/scenerf/rgbdprep/rimage"
	"github.com/scenerf/rgbdprep/spatialmath"
	"github.com/scenerf/rgbdprep/utils"
)

const triangleMesh = `ply
format ascii 1.0
comment one small triangle at the origin
element vertex 3
property float x
property float y
property float z
property uchar red
property uchar green
property uchar blue
element face 1
property list uchar int vertex_indices
end_header
-0.5 -0.5 0 255 0 0
0.5 -0.5 0 0 255 0
0 0.5 0 0 0 255
3 0 1 2
`

func newScene(t *testing.T, mesh string) string {
	t.Helper()
	scene := filepath.Join(t.TempDir(), "room0")
	test.That(t, os.Mkdir(scene, 0o750), test.ShouldBeNil)
	if mesh != "" {
		test.That(t, os.WriteFile(filepath.Join(scene, DefaultMeshName), []byte(mesh), 0o600), test.ShouldBeNil)
	}
	return scene
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Frames = 4
	cfg.Workers = 2
	return cfg
}

func readDir(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	files := map[string][]byte{}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		test.That(t, err, test.ShouldBeNil)
		files[entry.Name()] = data
	}
	return files
}

func TestRunOneTriangle(t *testing.T) {
	scene := newScene(t, triangleMesh)
	logger, logs := logging.NewObservedTestLogger(t)

	result, err := Run(context.Background(), scene, testConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.OutputDir, test.ShouldEqual, filepath.Join(filepath.Dir(scene), "room0_proc", "room0"))
	test.That(t, result.Frames, test.ShouldHaveLength, 4)
	test.That(t, logs.FilterMessage("published frames").Len(), test.ShouldEqual, 1)

	files := readDir(t, result.OutputDir)
	test.That(t, files, test.ShouldHaveLength, 13)
	test.That(t, files, test.ShouldContainKey, "info.txt")

	fr1, err := DefaultConfig().Camera()
	test.That(t, err, test.ShouldBeNil)
	info, err := bundlefusion.NewSensorInfo("Kinect", fr1.Intrinsics, 5000)
	test.That(t, err, test.ShouldBeNil)
	var expectedInfo bytes.Buffer
	test.That(t, info.Write(&expectedInfo), test.ShouldBeNil)
	test.That(t, string(files["info.txt"]), test.ShouldEqual, expectedInfo.String())

	translations := []r3.Vector{{X: 5, Z: 1.5}, {Y: 5, Z: 1.5}, {X: -5, Z: 1.5}, {Y: -5, Z: 1.5}}
	naming := bundlefusion.RenderedFrameNaming
	for i, expected := range translations {
		colorPath, depthPath, posePath := naming.FramePaths(result.OutputDir, i, ".png")
		test.That(t, filepath.Base(colorPath), test.ShouldEqual, []string{
			"frame-000.rgb.png", "frame-001.rgb.png", "frame-002.rgb.png", "frame-003.rgb.png",
		}[i])

		pose, err := bundlefusion.ReadPoseFile(posePath)
		test.That(t, err, test.ShouldBeNil)
		pt := pose.Point()
		test.That(t, pt.X, test.ShouldAlmostEqual, expected.X)
		test.That(t, pt.Y, test.ShouldAlmostEqual, expected.Y)
		test.That(t, pt.Z, test.ShouldAlmostEqual, expected.Z)
		test.That(t, pose.Rotation().IsProperRotation(1e-9), test.ShouldBeTrue)
		forward := spatialmath.CameraForward(pose)
		toOrigin := pt.Mul(-1).Normalize()
		test.That(t, forward.Sub(toOrigin).Norm(), test.ShouldBeLessThan, 1e-9)

		img, err := rimage.ReadImageFromFile(colorPath)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Bounds().Dx(), test.ShouldEqual, 640)
		test.That(t, rimage.NewImageFromStdImage(img).CountNot(rimage.Black), test.ShouldBeGreaterThan, 0)

		dm, err := rimage.ReadDepthMapFromFile(depthPath)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dm.ValidCount(), test.ShouldBeGreaterThan, 0)
		// the principal point looks straight at the origin
		test.That(t, float64(dm.GetDepth(319, 255)), test.ShouldAlmostEqual, 1000*pt.Norm(), 20)

		test.That(t, result.Frames[i].Index, test.ShouldEqual, i)
		test.That(t, result.Frames[i].Coverage, test.ShouldBeGreaterThan, 0)
		test.That(t, result.Frames[i].MeanDepth, test.ShouldAlmostEqual, pt.Norm(), 0.5)
		// back-projecting the principal pixel lands on the triangle at the orbit target
		test.That(t, result.Frames[i].CenterHit, test.ShouldBeTrue)
		test.That(t, result.Frames[i].CenterPoint.Norm(), test.ShouldBeLessThan, 0.05)
	}

	staging, err := filepath.Glob(filepath.Join(filepath.Dir(result.OutputDir), ".room0.staging-*"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, staging, test.ShouldBeEmpty)
}

func TestRunIdempotent(t *testing.T) {
	scene := newScene(t, triangleMesh)
	logger := logging.NewTestLogger(t)

	cfg := testConfig()
	result, err := Run(context.Background(), scene, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	first := readDir(t, result.OutputDir)

	// a stale file from an older run does not survive publication
	stale := filepath.Join(result.OutputDir, "frame-999.pose.txt")
	test.That(t, os.WriteFile(stale, []byte("stale"), 0o600), test.ShouldBeNil)

	cfg.Workers = 1
	result, err = Run(context.Background(), scene, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	second := readDir(t, result.OutputDir)
	test.That(t, second, test.ShouldResemble, first)
	test.That(t, utils.FileExists(stale), test.ShouldBeFalse)
}

func TestRunMissingScene(t *testing.T) {
	parent := t.TempDir()
	scene := filepath.Join(parent, "nope")
	_, err := Run(context.Background(), scene, testConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	var configErr *ConfigurationError
	test.That(t, errors.As(err, &configErr), test.ShouldBeTrue)

	entries, err := os.ReadDir(parent)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries, test.ShouldBeEmpty)

	// a file is not a scene either
	file := filepath.Join(parent, "file")
	test.That(t, os.WriteFile(file, nil, 0o600), test.ShouldBeNil)
	_, err = Run(context.Background(), file, testConfig(), logging.NewTestLogger(t))
	test.That(t, errors.As(err, &configErr), test.ShouldBeTrue)
	test.That(t, utils.IsDir(file+"_proc"), test.ShouldBeFalse)
}

func TestRunMissingMesh(t *testing.T) {
	scene := newScene(t, "")
	_, err := Run(context.Background(), scene, testConfig(), logging.NewTestLogger(t))
	var missing *MissingInputError
	test.That(t, errors.As(err, &missing), test.ShouldBeTrue)
	test.That(t, missing.Path, test.ShouldEqual, filepath.Join(scene, DefaultMeshName))
	test.That(t, utils.IsDir(scene+"_proc"), test.ShouldBeFalse)
}

func TestRunInvalidConfig(t *testing.T) {
	scene := newScene(t, triangleMesh)
	cfg := testConfig()
	cfg.Frames = 0
	_, err := Run(context.Background(), scene, cfg, logging.NewTestLogger(t))
	var configErr *ConfigurationError
	test.That(t, errors.As(err, &configErr), test.ShouldBeTrue)
	test.That(t, utils.IsDir(scene+"_proc"), test.ShouldBeFalse)
}

func TestRunBadMesh(t *testing.T) {
	scene := newScene(t, "ply\nformat ascii 1.0\nelement vertex 3\nend_header\n")
	_, err := Run(context.Background(), scene, testConfig(), logging.NewTestLogger(t))
	var ioErr *IOError
	test.That(t, errors.As(err, &ioErr), test.ShouldBeTrue)
	test.That(t, ioErr.Op, test.ShouldEqual, "load mesh")
}

func TestRunCancelled(t *testing.T) {
	scene := newScene(t, triangleMesh)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, scene, testConfig(), logging.NewTestLogger(t))
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)

	// nothing is published and the directory this run created is gone
	test.That(t, utils.IsDir(OutputDir(scene)), test.ShouldBeFalse)
	test.That(t, utils.IsDir(scene+"_proc"), test.ShouldBeFalse)
}

// failFrame makes frame 2 fail through writeFail or panic while the test runs.
func failFrame(t *testing.T, writeFail error) {
	t.Helper()
	orig := frameWriter
	t.Cleanup(func() { frameWriter = orig })
	frameWriter = func(
		dir string,
		naming bundlefusion.FrameNaming,
		index int,
		img *rimage.Image,
		depth *render.DepthBuffer,
		pose spatialmath.Pose,
		camera *render.Camera,
		cfg Config,
	) (FrameStats, error) {
		if index == 2 {
			if writeFail == nil {
				panic("frame 2 exploded")
			}
			return FrameStats{}, writeFail
		}
		return orig(dir, naming, index, img, depth, pose, camera, cfg)
	}
}

func TestRunFrameFailure(t *testing.T) {
	diskFull := errors.New("disk full")
	for _, tc := range []struct {
		name      string
		writeFail error
		message   string
	}{
		{"write error", diskFull, "disk full"},
		{"panic", nil, "frame 2 exploded"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			failFrame(t, tc.writeFail)
			scene := newScene(t, triangleMesh)

			_, err := Run(context.Background(), scene, testConfig(), logging.NewTestLogger(t))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.message)
			if tc.writeFail != nil {
				test.That(t, errors.Is(err, diskFull), test.ShouldBeTrue)
			}
			test.That(t, utils.IsDir(OutputDir(scene)), test.ShouldBeFalse)
			test.That(t, utils.IsDir(scene+"_proc"), test.ShouldBeFalse)
		})
	}
}

func TestRunFailureKeepsPreviousOutput(t *testing.T) {
	scene := newScene(t, triangleMesh)
	logger := logging.NewTestLogger(t)
	result, err := Run(context.Background(), scene, testConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	before := readDir(t, result.OutputDir)

	failFrame(t, errors.New("disk full"))
	_, err = Run(context.Background(), scene, testConfig(), logger)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, readDir(t, result.OutputDir), test.ShouldResemble, before)
	staging, err := filepath.Glob(filepath.Join(scene+"_proc", ".room0.staging-*"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, staging, test.ShouldBeEmpty)
	entries, err := os.ReadDir(scene + "_proc")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries, test.ShouldHaveLength, 1)
}

func TestOutputDir(t *testing.T) {
	test.That(t, OutputDir("/data/replica/room0/"), test.ShouldEqual, "/data/replica/room0_proc/room0")
	test.That(t, OutputDir("office"), test.ShouldEqual, "office_proc/office")
}
