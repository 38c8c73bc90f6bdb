package render

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/scenerf/rgbdprep/rimage"
	"github.com/scenerf/rgbdprep/spatialmath"
)

// surface colour of meshes with neither vertex colours nor a texture
const (
	untexturedGrey = 200.0
	ambient        = 0.3
)

// faces rasterized between context checks
const cancelCheckInterval = 4096

type shading int

const (
	shadeLambert shading = iota
	shadeVertexColor
	shadeTexture
)

// Renderer is a reusable rasterization context. It caches per-mesh data and scratch buffers, so a
// Renderer must not be used from more than one goroutine at a time; give each worker its own.
type Renderer struct {
	camera *Camera

	mesh    *spatialmath.Mesh
	world   []r3.Vector
	colors  [][3]float64
	texture *image.NRGBA
	shading shading

	cam   []r3.Vector
	zbuf  []float64
	polyA []vertex
	polyB []vertex
}

// vertex is a clip-space polygon corner carrying everything that gets interpolated.
type vertex struct {
	pos   r3.Vector
	color [3]float64
	uv    r2.Point
}

// NewRenderer returns a rendering context for camera.
func NewRenderer(camera *Camera) *Renderer {
	return &Renderer{
		camera: camera,
		zbuf:   make([]float64, camera.Width()*camera.Height()),
		polyA:  make([]vertex, 0, 8),
		polyB:  make([]vertex, 0, 8),
	}
}

// Render rasterizes mesh as seen from a camera at pose. It is a stateless convenience wrapper
// around a fresh Renderer.
func Render(ctx context.Context, mesh *spatialmath.Mesh, pose spatialmath.Pose, camera *Camera) (*rimage.Image, *DepthBuffer, error) {
	return NewRenderer(camera).Render(ctx, mesh, pose)
}

// Camera returns the camera this renderer draws with.
func (r *Renderer) Camera() *Camera {
	return r.camera
}

func (r *Renderer) prepare(mesh *spatialmath.Mesh) {
	if r.mesh == mesh {
		return
	}
	r.mesh = mesh
	r.world = mesh.WorldVertices()
	r.colors = nil
	r.texture = nil
	switch {
	case mesh.HasTexture():
		r.shading = shadeTexture
		r.texture = imaging.Clone(mesh.Texture())
	case mesh.HasVertexColors():
		r.shading = shadeVertexColor
		r.colors = make([][3]float64, len(r.world))
		for i, c := range mesh.VertexColors() {
			r.colors[i] = [3]float64{float64(c.R), float64(c.G), float64(c.B)}
		}
	default:
		r.shading = shadeLambert
	}
	if cap(r.cam) < len(r.world) {
		r.cam = make([]r3.Vector, len(r.world))
	}
	r.cam = r.cam[:len(r.world)]
}

// Render rasterizes mesh as seen from a camera at pose and returns new colour and depth buffers.
// Triangles are clipped against the near plane, fragments beyond the far plane are dropped and
// the nearest fragment wins. Colours and texture coordinates are interpolated perspective
// correctly. Vertex colours are drawn unlit, textures are sampled nearest with wrapping and
// meshes without either are shaded grey with a light at the camera.
func (r *Renderer) Render(ctx context.Context, mesh *spatialmath.Mesh, pose spatialmath.Pose) (*rimage.Image, *DepthBuffer, error) {
	if mesh == nil {
		return nil, nil, errors.New("cannot render a nil mesh")
	}
	r.prepare(mesh)

	rot := pose.Rotation()
	eye := pose.Point()
	for i, v := range r.world {
		r.cam[i] = rot.Mul(v.Sub(eye))
	}
	for i := range r.zbuf {
		r.zbuf[i] = math.Inf(1)
	}

	width, height := r.camera.Width(), r.camera.Height()
	img := rimage.NewImage(width, height)
	depth := NewDepthBuffer(width, height)

	uvs := mesh.FaceUVs()
	for fi, f := range mesh.Faces() {
		if fi%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		poly := r.polyA[:0]
		for k, idx := range f {
			vtx := vertex{pos: r.cam[idx]}
			switch r.shading {
			case shadeVertexColor:
				vtx.color = r.colors[idx]
			case shadeTexture:
				vtx.uv = uvs[fi][k]
			case shadeLambert:
			}
			poly = append(poly, vtx)
		}
		r.polyA = poly[:0]
		faceColor := r.lambert(r.cam[f[0]], r.cam[f[1]], r.cam[f[2]])

		if crossesNear(poly, r.camera.ZNear) {
			r.polyB = clipNear(poly, r.polyB[:0], r.camera.ZNear)
			poly = r.polyB
		}
		for k := 1; k+1 < len(poly); k++ {
			r.rasterize(img, depth, &poly[0], &poly[k], &poly[k+1], faceColor)
		}
	}
	return img, depth, nil
}

func (r *Renderer) lambert(a, b, c r3.Vector) rimage.Color {
	if r.shading != shadeLambert {
		return rimage.Black
	}
	n := spatialmath.PlaneNormal(a, b, c)
	center := a.Add(b).Add(c).Mul(1. / 3.)
	intensity := 0.0
	if center.Norm() > 0 {
		intensity = math.Abs(n.Dot(center.Normalize()))
	}
	g := untexturedGrey * (ambient + (1-ambient)*intensity)
	return rimage.NewColor(uint8(g), uint8(g), uint8(g))
}

func crossesNear(poly []vertex, zNear float64) bool {
	for i := range poly {
		if -poly[i].pos.Z < zNear {
			return true
		}
	}
	return false
}

// clipNear appends to out the part of the polygon at optical depth >= zNear (camera z <= -zNear).
func clipNear(in, out []vertex, zNear float64) []vertex {
	inside := func(v *vertex) bool { return -v.pos.Z >= zNear }
	for i := range in {
		cur := &in[i]
		next := &in[(i+1)%len(in)]
		curIn, nextIn := inside(cur), inside(next)
		if curIn {
			out = append(out, *cur)
		}
		if curIn != nextIn {
			t := (-zNear - cur.pos.Z) / (next.pos.Z - cur.pos.Z)
			out = append(out, lerpVertex(cur, next, t))
		}
	}
	return out
}

func lerpVertex(a, b *vertex, t float64) vertex {
	return vertex{
		pos: a.pos.Add(b.pos.Sub(a.pos).Mul(t)),
		color: [3]float64{
			a.color[0] + (b.color[0]-a.color[0])*t,
			a.color[1] + (b.color[1]-a.color[1])*t,
			a.color[2] + (b.color[2]-a.color[2])*t,
		},
		uv: r2.Point{X: a.uv.X + (b.uv.X-a.uv.X)*t, Y: a.uv.Y + (b.uv.Y-a.uv.Y)*t},
	}
}

func (r *Renderer) rasterize(img *rimage.Image, depth *DepthBuffer, a, b, c *vertex, faceColor rimage.Color) {
	cam := r.camera
	ax, ay, ad := cam.ProjectCameraPoint(a.pos)
	bx, by, bd := cam.ProjectCameraPoint(b.pos)
	cx, cy, cd := cam.ProjectCameraPoint(c.pos)

	area := edge(ax, ay, bx, by, cx, cy)
	if math.Abs(area) < 1e-12 || math.IsNaN(area) || math.IsInf(area, 0) {
		return
	}

	width, height := cam.Width(), cam.Height()
	minX := max(0, int(math.Floor(min(ax, bx, cx))))
	maxX := min(width-1, int(math.Ceil(max(ax, bx, cx))))
	minY := max(0, int(math.Floor(min(ay, by, cy))))
	maxY := min(height-1, int(math.Ceil(max(ay, by, cy))))
	if minX > maxX || minY > maxY {
		return
	}

	invA, invB, invC := 1/ad, 1/bd, 1/cd
	for y := minY; y <= maxY; y++ {
		py := float64(y)
		for x := minX; x <= maxX; x++ {
			px := float64(x)
			l0 := edge(bx, by, cx, cy, px, py) / area
			l1 := edge(cx, cy, ax, ay, px, py) / area
			l2 := 1 - l0 - l1
			if l0 < 0 || l1 < 0 || l2 < 0 {
				continue
			}

			invD := l0*invA + l1*invB + l2*invC
			d := 1 / invD
			if d < cam.ZNear || d > cam.ZFar {
				continue
			}
			k := y*width + x
			if d >= r.zbuf[k] {
				continue
			}
			r.zbuf[k] = d
			depth.data[k] = float32(d)

			// perspective correct weights
			w0, w1, w2 := l0*invA*d, l1*invB*d, l2*invC*d
			switch r.shading {
			case shadeVertexColor:
				img.SetXY(x, y, rimage.NewColor(
					channel(w0*a.color[0]+w1*b.color[0]+w2*c.color[0]),
					channel(w0*a.color[1]+w1*b.color[1]+w2*c.color[1]),
					channel(w0*a.color[2]+w1*b.color[2]+w2*c.color[2]),
				))
			case shadeTexture:
				u := w0*a.uv.X + w1*b.uv.X + w2*c.uv.X
				v := w0*a.uv.Y + w1*b.uv.Y + w2*c.uv.Y
				img.SetXY(x, y, sampleNearest(r.texture, u, v))
			case shadeLambert:
				img.SetXY(x, y, faceColor)
			}
		}
	}
}

// edge is twice the signed area of (a, b, p).
func edge(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}

// sampleNearest reads the texel nearest to (u, v) with repeat wrapping. v grows upward from the
// bottom row of the texture.
func sampleNearest(tex *image.NRGBA, u, v float64) rimage.Color {
	w, h := tex.Rect.Dx(), tex.Rect.Dy()
	if w == 0 || h == 0 {
		return rimage.Black
	}
	u -= math.Floor(u)
	v -= math.Floor(v)
	x := min(int(u*float64(w)), w-1)
	y := min(int((1-v)*float64(h)), h-1)
	o := tex.PixOffset(tex.Rect.Min.X+x, tex.Rect.Min.Y+y)
	return rimage.NewColor(tex.Pix[o], tex.Pix[o+1], tex.Pix[o+2])
}
