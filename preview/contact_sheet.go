// Package preview draws contact sheets of a mesh seen from an orbit of cameras, for checking a
// reconstruction or an input scene at a glance.
package preview

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"golang.org/x/image/font/basicfont"

	"github.com/scenerf/rgbdprep/logging"
	"github.com/scenerf/rgbdprep/render"
	"github.com/scenerf/rgbdprep/rimage"
	"github.com/scenerf/rgbdprep/rimage/transform"
	"github.com/scenerf/rgbdprep/spatialmath"
)

const (
	labelHeight = 18
	// Kinect focal length per pixel of image width
	kinectFocalRatio = 525.0 / 640.0
	// distance margin so the bounding sphere does not touch the tile border
	framingMargin = 1.1
	// DefaultBackground fills the gaps between tiles.
	DefaultBackground = "#181818"
)

var labelColor = color.White

// Options control RenderContactSheet. Zero values pick the defaults.
type Options struct {
	// Views is the number of orbit cameras. Default 8.
	Views int
	// Cols is the number of views per row. Default 4.
	Cols int
	// Width and Height are the size of one colour tile. Default 320x240.
	Width  int
	Height int
	// Elevation is the camera elevation above the orbit plane in degrees. Default 20.
	Elevation float64
	// Supersample renders each tile this many times larger and shrinks it. Default 2.
	Supersample int
	// Background is the sheet colour as #rrggbb. Default DefaultBackground.
	Background string
	// Logger receives per-view details; nil means no logging.
	Logger logging.Logger
}

func (opts Options) withDefaults() Options {
	if opts.Views == 0 {
		opts.Views = 8
	}
	if opts.Cols == 0 {
		opts.Cols = 4
	}
	if opts.Width == 0 {
		opts.Width = 320
	}
	if opts.Height == 0 {
		opts.Height = 240
	}
	if opts.Elevation == 0 {
		opts.Elevation = 20
	}
	if opts.Supersample == 0 {
		opts.Supersample = 2
	}
	if opts.Background == "" {
		opts.Background = DefaultBackground
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewBlankLogger("preview")
	}
	return opts
}

func (opts Options) validate() error {
	if opts.Views < 1 || opts.Cols < 1 || opts.Width < 1 || opts.Height < 1 || opts.Supersample < 1 {
		return errors.Errorf("views, cols, width, height and supersample must be positive, got %d, %d, %d, %d, %d",
			opts.Views, opts.Cols, opts.Width, opts.Height, opts.Supersample)
	}
	if math.Abs(opts.Elevation) >= 90 {
		return errors.Errorf("elevation must be within (-90, 90) degrees, got %v", opts.Elevation)
	}
	return nil
}

// ViewIntrinsics returns pinhole intrinsics with the Kinect field of view at the given size.
func ViewIntrinsics(width, height int) transform.PinholeCameraIntrinsics {
	f := kinectFocalRatio * float64(width)
	return transform.PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     f,
		Fy:     f,
		Ppx:    float64(width-1) / 2,
		Ppy:    float64(height-1) / 2,
	}
}

// FramingTrajectory returns an orbit around the mesh centroid whose cameras see the whole bounding
// sphere of the mesh.
func FramingTrajectory(mesh *spatialmath.Mesh, intrinsics transform.PinholeCameraIntrinsics, views int, elevationDeg float64) spatialmath.Trajectory {
	center := mesh.Centroid()
	radius := mesh.BoundingRadius(center)
	if radius <= 0 {
		radius = 1
	}
	halfFOV := math.Min(
		math.Atan2(float64(intrinsics.Width)/2, intrinsics.Fx),
		math.Atan2(float64(intrinsics.Height)/2, intrinsics.Fy),
	)
	distance := framingMargin * radius / math.Sin(halfFOV)
	elevation := elevationDeg * math.Pi / 180
	return spatialmath.Trajectory{
		Frames: views,
		Radius: distance * math.Cos(elevation),
		Height: distance * math.Sin(elevation),
		Target: center,
	}
}

// RenderContactSheet renders the mesh from opts.Views cameras orbiting its centroid and tiles the
// colour image and a pseudo-coloured depth image of every view into a labelled grid.
func RenderContactSheet(ctx context.Context, mesh *spatialmath.Mesh, opts Options) (image.Image, error) {
	if mesh == nil {
		return nil, errors.New("no mesh to preview")
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	background, err := rimage.NewColorFromHex(opts.Background)
	if err != nil {
		return nil, err
	}

	intrinsics := ViewIntrinsics(opts.Width*opts.Supersample, opts.Height*opts.Supersample)
	camera, err := render.NewCamera(intrinsics, render.DefaultZNear, render.DefaultZFar)
	if err != nil {
		return nil, err
	}
	trajectory := FramingTrajectory(mesh, intrinsics, opts.Views, opts.Elevation)
	if err := trajectory.Validate(); err != nil {
		return nil, err
	}

	cols := min(opts.Cols, opts.Views)
	rows := (opts.Views + cols - 1) / cols
	cellW, cellH := 2*opts.Width, opts.Height+labelHeight
	sheet := imaging.New(cols*cellW, rows*cellH, background)

	// spread depths over the 16-bit range; nothing visible is further than twice the orbit distance
	depthScale := float64(rimage.MaxDepth-1) / (2 * math.Hypot(trajectory.Radius, trajectory.Height))

	renderer := render.NewRenderer(camera)
	labels := make([]string, 0, opts.Views)
	for i, pose := range trajectory.Poses() {
		img, depth, err := renderer.Render(ctx, mesh, pose)
		if err != nil {
			return nil, err
		}
		dm, _, err := depth.ToDepthMap(depthScale, rimage.OverflowSaturate)
		if err != nil {
			return nil, err
		}
		colorTile := imaging.Resize(img, opts.Width, opts.Height, imaging.Lanczos)
		depthTile := imaging.Resize(dm.ToPrettyPicture(0, rimage.MaxDepth), opts.Width, opts.Height, imaging.NearestNeighbor)

		origin := image.Pt((i%cols)*cellW, (i/cols)*cellH+labelHeight)
		sheet = imaging.Paste(sheet, colorTile, origin)
		sheet = imaging.Paste(sheet, depthTile, origin.Add(image.Pt(opts.Width, 0)))

		pt := pose.Point()
		labels = append(labels, fmt.Sprintf("view %d  (%.2f, %.2f, %.2f)", i, pt.X, pt.Y, pt.Z))
		opts.Logger.Debugw("rendered view", "view", i, "position", pt, "coverage", depth.ValidCount())
	}

	dc := gg.NewContextForImage(sheet)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(labelColor)
	for i, label := range labels {
		x := float64((i%cols)*cellW) + 4
		y := float64((i/cols)*cellH) + labelHeight/2
		dc.DrawStringAnchored(label, x, y, 0, 0.5)
	}
	return dc.Image(), nil
}

// RenderMeshFile loads the PLY mesh at meshPath, renders its contact sheet and writes it to out.
// The format follows the extension of out: png, jpg, ppm or qoi.
func RenderMeshFile(ctx context.Context, meshPath, out string, opts Options) error {
	mesh, err := spatialmath.NewMeshFromPLYFile(meshPath)
	if err != nil {
		return errors.Wrapf(err, "cannot load mesh %q", meshPath)
	}
	sheet, err := RenderContactSheet(ctx, mesh, opts)
	if err != nil {
		return err
	}
	return rimage.WriteImageToFile(out, sheet)
}
