package spatialmath

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

const floatEpsilon = 1e-6

// Pose is a rigid transform held as a homogeneous 4x4 matrix: a rotation block, a translation
// column and a (0,0,0,1) bottom row.
type Pose struct {
	m mgl64.Mat4
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose {
	return Pose{m: mgl64.Ident4()}
}

// NewPose builds a pose from a translation and a rotation.
func NewPose(pt r3.Vector, rot *RotationMatrix) Pose {
	m := mgl64.Ident4()
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			m.Set(row, col, rot.At(row, col))
		}
	}
	m.Set(0, 3, pt.X)
	m.Set(1, 3, pt.Y)
	m.Set(2, 3, pt.Z)
	return Pose{m: m}
}

// NewPoseFromPoint returns a pure translation.
func NewPoseFromPoint(pt r3.Vector) Pose {
	return NewPose(pt, NewIdentityRotationMatrix())
}

// NewPoseFromMatrix wraps an existing homogeneous matrix.
func NewPoseFromMatrix(m mgl64.Mat4) Pose {
	return Pose{m: m}
}

// Point returns the translation column.
func (p Pose) Point() r3.Vector {
	return r3.Vector{X: p.m.At(0, 3), Y: p.m.At(1, 3), Z: p.m.At(2, 3)}
}

// Rotation returns the upper-left 3x3 block.
func (p Pose) Rotation() *RotationMatrix {
	var rm RotationMatrix
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			rm.mat[row*3+col] = p.m.At(row, col)
		}
	}
	return &rm
}

// Matrix returns the homogeneous matrix.
func (p Pose) Matrix() mgl64.Mat4 {
	return p.m
}

// At returns a single entry of the homogeneous matrix.
func (p Pose) At(row, col int) float64 {
	return p.m.At(row, col)
}

// Transform applies the pose to a point: R·pt + t.
func (p Pose) Transform(pt r3.Vector) r3.Vector {
	v := p.m.Mul4x1(mgl64.Vec4{pt.X, pt.Y, pt.Z, 1})
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// PoseAlmostEqual reports whether every entry of the two poses is within floatEpsilon.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, floatEpsilon)
}

// PoseAlmostEqualEps is PoseAlmostEqual with a custom tolerance.
func PoseAlmostEqualEps(a, b Pose, eps float64) bool {
	for i := range a.m {
		if math.Abs(a.m[i]-b.m[i]) > eps {
			return false
		}
	}
	return true
}

// PoseFormat selects how FormatPose writes each number.
type PoseFormat struct {
	Fmt  byte
	Prec int
}

var (
	// PoseFormatScientific matches numpy's savetxt default ("%.18e").
	PoseFormatScientific = PoseFormat{Fmt: 'e', Prec: 18}
	// PoseFormatFixed writes six decimals ("%.6f").
	PoseFormatFixed = PoseFormat{Fmt: 'f', Prec: 6}
)

// FormatPose renders the pose as four lines of four space separated numbers in row-major order.
// Values that print as negative zero are written unsigned so repeated runs produce identical text.
func FormatPose(p Pose, format PoseFormat) string {
	var sb strings.Builder
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			if col > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(format.formatFloat(p.m.At(row, col)))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (f PoseFormat) formatFloat(v float64) string {
	s := strconv.FormatFloat(v, f.Fmt, f.Prec, 64)
	if strings.HasPrefix(s, "-") && strings.Trim(s, "-0.e+") == "" {
		return s[1:]
	}
	return s
}

// ParsePose parses the text written by FormatPose. Twelve values are accepted as the top three
// rows with an implicit (0,0,0,1) bottom row.
func ParsePose(s string) (Pose, error) {
	values := spaceDelimitedStringToSlice(s)
	switch len(values) {
	case 12:
		values = append(values, 0, 0, 0, 1)
	case 16:
	default:
		return Pose{}, errors.Errorf("pose needs 12 or 16 values, got %d", len(values))
	}
	var m mgl64.Mat4
	for i, v := range values {
		if math.IsNaN(v) {
			return Pose{}, errors.Errorf("pose value %d is not a number", i)
		}
		m.Set(i/4, i%4, v)
	}
	return Pose{m: m}, nil
}

// spaceDelimitedStringToSlice is a helper method to split up whitespace-delimited numbers such as
// pose files or ground truth lines.
func spaceDelimitedStringToSlice(s string) []float64 {
	var converted []float64
	slice := strings.Fields(s)
	for _, value := range slice {
		value, err := strconv.ParseFloat(value, 64)
		if err != nil {
			value = math.NaN()
		}
		converted = append(converted, value)
	}
	return converted
}
