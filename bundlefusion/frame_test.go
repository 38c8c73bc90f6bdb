package bundlefusion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/scenerf/rgbdprep/spatialmath"
)

func TestFrameNaming(t *testing.T) {
	test.That(t, RenderedFrameNaming.ColorFile(7, ".png"), test.ShouldEqual, "frame-007.rgb.png")
	test.That(t, RenderedFrameNaming.DepthFile(7), test.ShouldEqual, "frame-007.depth.png")
	test.That(t, RenderedFrameNaming.PoseFile(123), test.ShouldEqual, "frame-123.pose.txt")
	test.That(t, RenderedFrameNaming.Stem(1234), test.ShouldEqual, "frame-1234")

	test.That(t, ConvertedFrameNaming.ColorFile(42, ".jpg"), test.ShouldEqual, "frame-000042.color.jpg")
	test.That(t, ConvertedFrameNaming.DepthFile(0), test.ShouldEqual, "frame-000000.depth.png")

	c, d, p := ConvertedFrameNaming.FramePaths("/out", 1, ".png")
	test.That(t, c, test.ShouldEqual, "/out/frame-000001.color.png")
	test.That(t, d, test.ShouldEqual, "/out/frame-000001.depth.png")
	test.That(t, p, test.ShouldEqual, "/out/frame-000001.pose.txt")

	test.That(t, PoseFileForStamp("1305031102.175304"), test.ShouldEqual, "frame-1305031102175304.pose.txt")
}

func TestPoseFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pose, err := spatialmath.LookAt(r3.Vector{X: 5, Z: 1.5}, r3.Vector{}, spatialmath.WorldUp)
	test.That(t, err, test.ShouldBeNil)

	path := filepath.Join(dir, RenderedFrameNaming.PoseFile(0))
	test.That(t, WritePoseFile(path, pose, spatialmath.PoseFormatScientific), test.ShouldBeNil)
	read, err := ReadPoseFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.PoseAlmostEqualEps(read, pose, 1e-15), test.ShouldBeTrue)

	fixedPath := filepath.Join(dir, RenderedFrameNaming.PoseFile(1))
	test.That(t, WritePoseFile(fixedPath, spatialmath.NewPoseFromPoint(r3.Vector{X: 1, Y: -2, Z: 3}), spatialmath.PoseFormatFixed), test.ShouldBeNil)
	data, err := os.ReadFile(fixedPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual,
		"1.000000 0.000000 0.000000 1.000000\n"+
			"0.000000 1.000000 0.000000 -2.000000\n"+
			"0.000000 0.000000 1.000000 3.000000\n"+
			"0.000000 0.000000 0.000000 1.000000\n")

	test.That(t, os.WriteFile(filepath.Join(dir, "frame-002.pose.txt"), []byte("1 2 3"), 0o600), test.ShouldBeNil)
	_, err = ReadPoseFile(filepath.Join(dir, "frame-002.pose.txt"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ReadPoseFile(filepath.Join(dir, "frame-404.pose.txt"))
	test.That(t, err, test.ShouldNotBeNil)

	indices, err := ListFrameIndices(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, indices, test.ShouldResemble, []int{0, 1, 2})
}
