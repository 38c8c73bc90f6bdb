package spatialmath

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chenzhekl/goply"
	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/scenerf/rgbdprep/utils"
)

const (
	plyFormatASCII        = "ascii"
	plyFormatLittleEndian = "binary_little_endian"
	plyFormatBigEndian    = "binary_big_endian"

	plyTextureFileComment = "TextureFile"
)

// goply only understands the original PLY type names.
var plyTypeNames = map[string]string{
	"char": "char", "int8": "char",
	"uchar": "uchar", "uint8": "uchar",
	"short": "short", "int16": "short",
	"ushort": "ushort", "uint16": "ushort",
	"int": "int", "int32": "int",
	"uint": "uint", "uint32": "uint",
	"float": "float", "float32": "float",
	"double": "double", "float64": "double",
}

var plyTypeSizes = map[string]int{
	"char": 1, "uchar": 1, "short": 2, "ushort": 2, "int": 4, "uint": 4, "float": 4, "double": 8,
}

type plyProperty struct {
	name      string
	typ       string
	isList    bool
	countType string
}

type plyElement struct {
	name       string
	count      int
	properties []plyProperty
}

type plyHeader struct {
	format      string
	elements    []plyElement
	textureFile string
}

// NewMeshFromPLYFile loads a mesh from a PLY file. A texture named by a "comment TextureFile"
// header line is loaded relative to the file's directory and must not lie outside it. The mesh is labelled with the file
// name without its extension.
func NewMeshFromPLYFile(path string) (*Mesh, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)

	label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return newMeshFromPLY(f, label, func(name string) (image.Image, error) {
		texturePath, err := utils.SafeJoinDir(filepath.Dir(path), name)
		if err != nil {
			return nil, err
		}
		return imaging.Open(texturePath)
	})
}

// NewMeshFromPLY reads an ascii or binary PLY stream. Polygon faces are fan triangulated. Texture
// references in the header are ignored since there is no directory to resolve them against.
func NewMeshFromPLY(r io.Reader, label string) (*Mesh, error) {
	return newMeshFromPLY(r, label, nil)
}

func newMeshFromPLY(r io.Reader, label string, loadTexture func(name string) (image.Image, error)) (*Mesh, error) {
	br := bufio.NewReader(r)
	header, err := readPLYHeader(br)
	if err != nil {
		return nil, err
	}
	ply, err := decodePLY(br, header)
	if err != nil {
		return nil, err
	}

	vertices, colors, vertexUVs, err := plyVertices(ply.Elements("vertex"))
	if err != nil {
		return nil, err
	}
	faces, faceUVs, err := plyFaces(ply.Elements("face"), vertexUVs)
	if err != nil {
		return nil, err
	}

	opts := []MeshOption{WithLabel(label)}
	if colors != nil {
		opts = append(opts, WithVertexColors(colors))
	}
	if faceUVs != nil && header.textureFile != "" && loadTexture != nil {
		texture, err := loadTexture(header.textureFile)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot load texture %q", header.textureFile)
		}
		opts = append(opts, WithTexture(faceUVs, texture))
	}
	return NewMesh(NewZeroPose(), vertices, faces, opts...)
}

func readPLYHeader(br *bufio.Reader) (*plyHeader, error) {
	readLine := func() ([]string, error) {
		line, err := br.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrap(err, "unexpected end of PLY header")
		}
		return strings.Fields(line), nil
	}

	magic, err := readLine()
	if err != nil {
		return nil, err
	}
	if len(magic) != 1 || magic[0] != "ply" {
		return nil, errors.New("not a PLY file")
	}

	header := &plyHeader{}
	for {
		fields, err := readLine()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, errors.New("PLY format line is missing the format")
			}
			header.format = fields[1]
		case "comment":
			if len(fields) >= 3 && strings.EqualFold(fields[1], plyTextureFileComment) {
				header.textureFile = strings.Join(fields[2:], " ")
			}
		case "obj_info":
		case "element":
			if len(fields) != 3 {
				return nil, errors.Errorf("malformed PLY element line %q", strings.Join(fields, " "))
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return nil, errors.Errorf("invalid count %q for PLY element %q", fields[2], fields[1])
			}
			header.elements = append(header.elements, plyElement{name: fields[1], count: count})
		case "property":
			if len(header.elements) == 0 {
				return nil, errors.New("PLY property declared before any element")
			}
			prop, err := parsePLYProperty(fields)
			if err != nil {
				return nil, err
			}
			last := &header.elements[len(header.elements)-1]
			last.properties = append(last.properties, prop)
		case "end_header":
			switch header.format {
			case plyFormatASCII, plyFormatLittleEndian, plyFormatBigEndian:
				return header, nil
			default:
				return nil, errors.Errorf("unsupported PLY format %q", header.format)
			}
		default:
			return nil, errors.Errorf("unexpected PLY header keyword %q", fields[0])
		}
	}
}

func parsePLYProperty(fields []string) (plyProperty, error) {
	if len(fields) == 5 && fields[1] == "list" {
		countType, ok1 := plyTypeNames[fields[2]]
		typ, ok2 := plyTypeNames[fields[3]]
		if !ok1 || !ok2 {
			return plyProperty{}, errors.Errorf("unsupported PLY list types %q %q", fields[2], fields[3])
		}
		return plyProperty{name: fields[4], typ: typ, isList: true, countType: countType}, nil
	}
	if len(fields) != 3 {
		return plyProperty{}, errors.Errorf("malformed PLY property line %q", strings.Join(fields, " "))
	}
	typ, ok := plyTypeNames[fields[1]]
	if !ok {
		return plyProperty{}, errors.Errorf("unsupported PLY property type %q", fields[1])
	}
	return plyProperty{name: fields[2], typ: typ}, nil
}

// decodePLY re-encodes the body as ascii under a normalized header and hands it to goply, which
// only reads the ascii format.
func decodePLY(br *bufio.Reader, header *plyHeader) (ply *goply.Ply, err error) {
	var buf bytes.Buffer
	buf.WriteString("ply\nformat ascii 1.0\n")
	for _, el := range header.elements {
		fmt.Fprintf(&buf, "element %s %d\n", el.name, el.count)
		for _, p := range el.properties {
			if p.isList {
				fmt.Fprintf(&buf, "property list %s %s %s\n", p.countType, p.typ, p.name)
			} else {
				fmt.Fprintf(&buf, "property %s %s\n", p.typ, p.name)
			}
		}
	}
	buf.WriteString("end_header\n")

	switch header.format {
	case plyFormatASCII:
		body, err := io.ReadAll(br)
		if err != nil {
			return nil, errors.Wrap(err, "cannot read PLY body")
		}
		buf.Write(bytes.TrimSpace(body))
		buf.WriteByte('\n')
	case plyFormatLittleEndian:
		if err := transcodePLYBody(br, &buf, header, binary.LittleEndian); err != nil {
			return nil, err
		}
	case plyFormatBigEndian:
		if err := transcodePLYBody(br, &buf, header, binary.BigEndian); err != nil {
			return nil, err
		}
	}

	defer func() {
		if r := recover(); r != nil {
			ply = nil
			err = errors.Errorf("malformed PLY data: %v", r)
		}
	}()
	return goply.New(&buf), nil
}

func transcodePLYBody(r io.Reader, w *bytes.Buffer, header *plyHeader, order binary.ByteOrder) error {
	scratch := make([]byte, 8)
	readScalar := func(typ string) (string, error) {
		b := scratch[:plyTypeSizes[typ]]
		if _, err := io.ReadFull(r, b); err != nil {
			return "", errors.Wrap(err, "truncated binary PLY body")
		}
		switch typ {
		case "char":
			return strconv.FormatInt(int64(int8(b[0])), 10), nil
		case "uchar":
			return strconv.FormatUint(uint64(b[0]), 10), nil
		case "short":
			return strconv.FormatInt(int64(int16(order.Uint16(b))), 10), nil
		case "ushort":
			return strconv.FormatUint(uint64(order.Uint16(b)), 10), nil
		case "int":
			return strconv.FormatInt(int64(int32(order.Uint32(b))), 10), nil
		case "uint":
			return strconv.FormatUint(uint64(order.Uint32(b)), 10), nil
		case "float":
			return strconv.FormatFloat(float64(math.Float32frombits(order.Uint32(b))), 'g', -1, 32), nil
		case "double":
			return strconv.FormatFloat(math.Float64frombits(order.Uint64(b)), 'g', -1, 64), nil
		default:
			return "", errors.Errorf("unsupported PLY type %q", typ)
		}
	}

	for _, el := range header.elements {
		for i := 0; i < el.count; i++ {
			for j, p := range el.properties {
				if j > 0 {
					w.WriteByte(' ')
				}
				if !p.isList {
					s, err := readScalar(p.typ)
					if err != nil {
						return err
					}
					w.WriteString(s)
					continue
				}
				s, err := readScalar(p.countType)
				if err != nil {
					return err
				}
				n, err := strconv.Atoi(s)
				if err != nil || n < 0 {
					return errors.Errorf("invalid list length %q in PLY element %q", s, el.name)
				}
				w.WriteString(s)
				for k := 0; k < n; k++ {
					v, err := readScalar(p.typ)
					if err != nil {
						return err
					}
					w.WriteByte(' ')
					w.WriteString(v)
				}
			}
			w.WriteByte('\n')
		}
	}
	return nil
}

var plyVertexUVNames = [][2]string{{"s", "t"}, {"u", "v"}, {"texture_u", "texture_v"}}

func plyVertices(elements []goply.PlyElement) ([]r3.Vector, []color.NRGBA, []r2.Point, error) {
	if len(elements) == 0 {
		return nil, nil, nil, errors.New("PLY file has no vertices")
	}
	first := elements[0]
	for _, name := range []string{"x", "y", "z"} {
		if _, ok := first[name]; !ok {
			return nil, nil, nil, utils.NewMissingPropertyError("vertex", name)
		}
	}
	_, hasColor := first["red"]
	_, hasAlpha := first["alpha"]
	uvNames := [2]string{}
	for _, names := range plyVertexUVNames {
		_, okU := first[names[0]]
		_, okV := first[names[1]]
		if okU && okV {
			uvNames = names
			break
		}
	}

	vertices := make([]r3.Vector, len(elements))
	var colors []color.NRGBA
	if hasColor {
		colors = make([]color.NRGBA, len(elements))
	}
	var uvs []r2.Point
	if uvNames[0] != "" {
		uvs = make([]r2.Point, len(elements))
	}

	for i, el := range elements {
		var xyz [3]float64
		for j, name := range []string{"x", "y", "z"} {
			v, err := plyFloat(el, name)
			if err != nil {
				return nil, nil, nil, errors.Wrapf(err, "vertex %d", i)
			}
			xyz[j] = v
		}
		vertices[i] = r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}

		if hasColor {
			c := color.NRGBA{A: 255}
			var err error
			if c.R, err = plyColorChannel(el, "red"); err != nil {
				return nil, nil, nil, errors.Wrapf(err, "vertex %d", i)
			}
			if c.G, err = plyColorChannel(el, "green"); err != nil {
				return nil, nil, nil, errors.Wrapf(err, "vertex %d", i)
			}
			if c.B, err = plyColorChannel(el, "blue"); err != nil {
				return nil, nil, nil, errors.Wrapf(err, "vertex %d", i)
			}
			if hasAlpha {
				if c.A, err = plyColorChannel(el, "alpha"); err != nil {
					return nil, nil, nil, errors.Wrapf(err, "vertex %d", i)
				}
			}
			colors[i] = c
		}
		if uvs != nil {
			u, err := plyFloat(el, uvNames[0])
			if err != nil {
				return nil, nil, nil, errors.Wrapf(err, "vertex %d", i)
			}
			v, err := plyFloat(el, uvNames[1])
			if err != nil {
				return nil, nil, nil, errors.Wrapf(err, "vertex %d", i)
			}
			uvs[i] = r2.Point{X: u, Y: v}
		}
	}
	return vertices, colors, uvs, nil
}

func plyFaces(elements []goply.PlyElement, vertexUVs []r2.Point) ([][3]int, [][3]r2.Point, error) {
	faces := make([][3]int, 0, len(elements))
	var uvs [][3]r2.Point
	for i, el := range elements {
		raw, ok := el["vertex_indices"]
		if !ok {
			raw, ok = el["vertex_index"]
		}
		if !ok {
			return nil, nil, utils.NewMissingPropertyError("face", "vertex_indices")
		}
		indices, err := plyIntList(raw)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "face %d", i)
		}
		if len(indices) < 3 {
			return nil, nil, errors.Errorf("face %d has %d vertices, need at least 3", i, len(indices))
		}

		var cornerUVs []r2.Point
		if texcoord, ok := el["texcoord"]; ok {
			flat, err := plyFloatList(texcoord)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "face %d texcoord", i)
			}
			if len(flat) != 2*len(indices) {
				return nil, nil, errors.Errorf("face %d has %d texcoords for %d corners", i, len(flat), len(indices))
			}
			for k := 0; k < len(flat); k += 2 {
				cornerUVs = append(cornerUVs, r2.Point{X: flat[k], Y: flat[k+1]})
			}
		} else if vertexUVs != nil {
			for _, idx := range indices {
				if idx < 0 || idx >= len(vertexUVs) {
					return nil, nil, errors.Errorf("face %d references vertex %d out of range", i, idx)
				}
				cornerUVs = append(cornerUVs, vertexUVs[idx])
			}
		}
		if cornerUVs != nil && uvs == nil {
			if len(faces) > 0 {
				return nil, nil, errors.Errorf("face %d has texture coordinates but earlier faces do not", i)
			}
			uvs = make([][3]r2.Point, 0, len(elements))
		}
		if cornerUVs == nil && uvs != nil {
			return nil, nil, errors.Errorf("face %d is missing texture coordinates", i)
		}

		for k := 1; k+1 < len(indices); k++ {
			faces = append(faces, [3]int{indices[0], indices[k], indices[k+1]})
			if uvs != nil {
				uvs = append(uvs, [3]r2.Point{cornerUVs[0], cornerUVs[k], cornerUVs[k+1]})
			}
		}
	}
	return faces, uvs, nil
}

func plyFloat(el goply.PlyElement, name string) (float64, error) {
	raw, ok := el[name]
	if !ok {
		return 0, utils.NewMissingPropertyError("element", name)
	}
	return plyNumber(raw)
}

func plyNumber(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case int8:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, utils.NewUnexpectedTypeError(float64(0), raw)
	}
}

// plyColorChannel reads an integer channel as is and scales a floating point channel from [0,1].
func plyColorChannel(el goply.PlyElement, name string) (uint8, error) {
	raw, ok := el[name]
	if !ok {
		return 0, utils.NewMissingPropertyError("vertex", name)
	}
	v, err := plyNumber(raw)
	if err != nil {
		return 0, err
	}
	switch raw.(type) {
	case float32, float64:
		v *= 255
	}
	return uint8(math.Round(math.Max(0, math.Min(255, v)))), nil
}

func plyFloatList(raw interface{}) ([]float64, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, utils.NewUnexpectedTypeError([]interface{}{}, raw)
	}
	out := make([]float64, len(list))
	for i, item := range list {
		v, err := plyNumber(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func plyIntList(raw interface{}) ([]int, error) {
	values, err := plyFloatList(raw)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out, nil
}

// WriteMeshToPLY writes the mesh in world coordinates as binary little endian PLY with float
// vertices, optional uchar colours and, when textureFile is set and the mesh is textured, per-face
// texture coordinates.
func WriteMeshToPLY(w io.Writer, m *Mesh, textureFile string) error {
	textured := textureFile != "" && m.HasTexture()
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "ply\nformat %s 1.0\n", plyFormatLittleEndian)
	if textured {
		fmt.Fprintf(bw, "comment %s %s\n", plyTextureFileComment, textureFile)
	}
	if m.Label() != "" {
		fmt.Fprintf(bw, "comment %s\n", m.Label())
	}
	fmt.Fprintf(bw, "element vertex %d\n", len(m.Vertices()))
	bw.WriteString("property float x\nproperty float y\nproperty float z\n")
	if m.HasVertexColors() {
		bw.WriteString("property uchar red\nproperty uchar green\nproperty uchar blue\nproperty uchar alpha\n")
	}
	fmt.Fprintf(bw, "element face %d\n", len(m.Faces()))
	bw.WriteString("property list uchar int vertex_indices\n")
	if textured {
		bw.WriteString("property list uchar float texcoord\n")
	}
	bw.WriteString("end_header\n")

	le := binary.LittleEndian
	colors := m.VertexColors()
	for i, v := range m.WorldVertices() {
		for _, c := range []float64{v.X, v.Y, v.Z} {
			if err := binary.Write(bw, le, float32(c)); err != nil {
				return err
			}
		}
		if colors != nil {
			c := colors[i]
			if _, err := bw.Write([]byte{c.R, c.G, c.B, c.A}); err != nil {
				return err
			}
		}
	}
	uvs := m.FaceUVs()
	for i, f := range m.Faces() {
		if err := bw.WriteByte(3); err != nil {
			return err
		}
		for _, idx := range f {
			if err := binary.Write(bw, le, int32(idx)); err != nil {
				return err
			}
		}
		if textured {
			if err := bw.WriteByte(6); err != nil {
				return err
			}
			for _, uv := range uvs[i] {
				if err := binary.Write(bw, le, [2]float32{float32(uv.X), float32(uv.Y)}); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// WriteMeshToPLYFile writes the mesh to path. A textured mesh also gets its texture written as
// a PNG next to it and referenced from the header.
func WriteMeshToPLYFile(path string, m *Mesh) error {
	textureFile := ""
	if m.HasTexture() {
		textureFile = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "_texture.png"
		err := utils.WriteFileAtomic(filepath.Join(filepath.Dir(path), textureFile), func(w io.Writer) error {
			return imaging.Encode(w, m.Texture(), imaging.PNG)
		})
		if err != nil {
			return err
		}
	}
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		return WriteMeshToPLY(w, m, textureFile)
	})
}
