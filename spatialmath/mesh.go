package spatialmath

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Mesh is a triangulated surface. Vertices are expressed in the mesh's own frame and placed in
// the world by its pose. A mesh optionally carries one colour per vertex or a texture with one
// UV coordinate per face corner.
type Mesh struct {
	pose     Pose
	label    string
	vertices []r3.Vector
	faces    [][3]int

	colors  []color.NRGBA
	uvs     [][3]r2.Point
	texture image.Image
}

// MeshOption configures optional mesh attributes.
type MeshOption func(m *Mesh) error

// WithVertexColors attaches one colour per vertex.
func WithVertexColors(colors []color.NRGBA) MeshOption {
	return func(m *Mesh) error {
		if len(colors) != len(m.vertices) {
			return errors.Errorf("got %d vertex colors for %d vertices", len(colors), len(m.vertices))
		}
		m.colors = colors
		return nil
	}
}

// WithTexture attaches a texture image and the UV coordinates of every face corner.
func WithTexture(uvs [][3]r2.Point, texture image.Image) MeshOption {
	return func(m *Mesh) error {
		if texture == nil {
			return errors.New("texture image is nil")
		}
		if len(uvs) != len(m.faces) {
			return errors.Errorf("got %d face UVs for %d faces", len(uvs), len(m.faces))
		}
		m.uvs = uvs
		m.texture = texture
		return nil
	}
}

// WithLabel names the mesh.
func WithLabel(label string) MeshOption {
	return func(m *Mesh) error {
		m.label = label
		return nil
	}
}

// NewMesh creates a mesh from vertices and triangular faces indexing into them.
func NewMesh(pose Pose, vertices []r3.Vector, faces [][3]int, opts ...MeshOption) (*Mesh, error) {
	for i, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(vertices) {
				return nil, errors.Errorf("face %d references vertex %d but mesh has %d vertices", i, idx, len(vertices))
			}
		}
	}
	m := &Mesh{
		pose:     pose,
		vertices: vertices,
		faces:    faces,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewMeshFromTriangles creates an uncoloured mesh whose faces are the given triangles.
func NewMeshFromTriangles(pose Pose, triangles []*Triangle, opts ...MeshOption) (*Mesh, error) {
	vertices := make([]r3.Vector, 0, 3*len(triangles))
	faces := make([][3]int, 0, len(triangles))
	for _, tri := range triangles {
		n := len(vertices)
		vertices = append(vertices, tri.Points()...)
		faces = append(faces, [3]int{n, n + 1, n + 2})
	}
	return NewMesh(pose, vertices, faces, opts...)
}

// Pose returns the pose of the mesh frame in the world.
func (m *Mesh) Pose() Pose {
	return m.pose
}

// Label returns the name of the mesh.
func (m *Mesh) Label() string {
	return m.label
}

// Vertices returns the vertices in the mesh frame.
func (m *Mesh) Vertices() []r3.Vector {
	return m.vertices
}

// Faces returns the vertex index triples of every face.
func (m *Mesh) Faces() [][3]int {
	return m.faces
}

// VertexColors returns the per-vertex colours, or nil.
func (m *Mesh) VertexColors() []color.NRGBA {
	return m.colors
}

// FaceUVs returns the per-corner UV coordinates, or nil.
func (m *Mesh) FaceUVs() [][3]r2.Point {
	return m.uvs
}

// Texture returns the texture image, or nil.
func (m *Mesh) Texture() image.Image {
	return m.texture
}

// HasVertexColors reports whether every vertex carries a colour.
func (m *Mesh) HasVertexColors() bool {
	return len(m.colors) > 0
}

// HasTexture reports whether the mesh is textured.
func (m *Mesh) HasTexture() bool {
	return m.texture != nil && len(m.uvs) > 0
}

// Triangles returns the faces as triangles in the mesh frame.
func (m *Mesh) Triangles() []*Triangle {
	tris := make([]*Triangle, 0, len(m.faces))
	for _, f := range m.faces {
		tris = append(tris, NewTriangle(m.vertices[f[0]], m.vertices[f[1]], m.vertices[f[2]]))
	}
	return tris
}

// WorldVertices returns the vertices placed in the world by the mesh pose.
func (m *Mesh) WorldVertices() []r3.Vector {
	out := make([]r3.Vector, len(m.vertices))
	for i, v := range m.vertices {
		out[i] = m.pose.Transform(v)
	}
	return out
}

// Bounds returns the axis-aligned world bounding box. An empty mesh yields two zero vectors.
func (m *Mesh) Bounds() (r3.Vector, r3.Vector) {
	if len(m.vertices) == 0 {
		return r3.Vector{}, r3.Vector{}
	}
	lo := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, v := range m.WorldVertices() {
		lo = r3.Vector{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vector{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return lo, hi
}

// Centroid returns the world-frame centre of the bounding box.
func (m *Mesh) Centroid() r3.Vector {
	lo, hi := m.Bounds()
	return lo.Add(hi).Mul(0.5)
}

// BoundingRadius returns the largest distance from center to any world vertex.
func (m *Mesh) BoundingRadius(center r3.Vector) float64 {
	var r float64
	for _, v := range m.WorldVertices() {
		r = math.Max(r, v.Sub(center).Norm())
	}
	return r
}
