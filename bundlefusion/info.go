// Package bundlefusion reads and writes the flat frame layout consumed by BundleFusion style
// reconstruction: a shared info.txt sensor descriptor plus per-frame colour, depth and pose files.
package bundlefusion

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/scenerf/rgbdprep/rimage/transform"
	rutils "github.com/scenerf/rgbdprep/utils"
)

const (
	// InfoFileName is the name of the shared sensor descriptor.
	InfoFileName = "info.txt"
	// InfoVersion is the only descriptor version written.
	InfoVersion = 4
	// DefaultSensorName is written when no sensor name is configured.
	DefaultSensorName = "Kinect"
	// DefaultDepthShift maps stored depth values to meters.
	DefaultDepthShift = 5000.0
)

const (
	keyVersionNumber    = "m_versionNumber"
	keySensorName       = "m_sensorName"
	keyColorWidth       = "m_colorWidth"
	keyColorHeight      = "m_colorHeight"
	keyDepthWidth       = "m_depthWidth"
	keyDepthHeight      = "m_depthHeight"
	keyDepthShift       = "m_depthShift"
	keyColorIntrinsic   = "m_calibrationColorIntrinsic"
	keyColorExtrinsic   = "m_calibrationColorExtrinsic"
	keyDepthIntrinsic   = "m_calibrationDepthIntrinsic"
	keyDepthExtrinsic   = "m_calibrationDepthExtrinsic"
	infoKeyValSeparator = " = "
)

// SensorInfo is the content of info.txt. Matrices are homogeneous 4x4.
type SensorInfo struct {
	VersionNumber  int
	SensorName     string
	ColorWidth     int
	ColorHeight    int
	DepthWidth     int
	DepthHeight    int
	DepthShift     float64
	ColorIntrinsic mgl64.Mat4
	ColorExtrinsic mgl64.Mat4
	DepthIntrinsic mgl64.Mat4
	DepthExtrinsic mgl64.Mat4
}

// NewSensorInfo describes a sensor whose colour and depth images share intrinsics and whose
// extrinsics are the identity.
func NewSensorInfo(sensorName string, intrinsics transform.PinholeCameraIntrinsics, depthShift float64) (*SensorInfo, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if !(depthShift > 0) {
		return nil, errors.Errorf("depth shift must be positive, got %v", depthShift)
	}
	if sensorName == "" {
		sensorName = DefaultSensorName
	}
	k := IntrinsicMatrix(intrinsics)
	return &SensorInfo{
		VersionNumber:  InfoVersion,
		SensorName:     sensorName,
		ColorWidth:     intrinsics.Width,
		ColorHeight:    intrinsics.Height,
		DepthWidth:     intrinsics.Width,
		DepthHeight:    intrinsics.Height,
		DepthShift:     depthShift,
		ColorIntrinsic: k,
		ColorExtrinsic: mgl64.Ident4(),
		DepthIntrinsic: k,
		DepthExtrinsic: mgl64.Ident4(),
	}, nil
}

// IntrinsicMatrix embeds the camera matrix of intrinsics in a 4x4 identity.
func IntrinsicMatrix(intrinsics transform.PinholeCameraIntrinsics) mgl64.Mat4 {
	dense := intrinsics.GetHomogeneousCameraMatrix()
	var m mgl64.Mat4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			m.Set(row, col, dense.At(row, col))
		}
	}
	return m
}

// ColorIntrinsics recovers the pinhole parameters of the colour camera.
func (si *SensorInfo) ColorIntrinsics() transform.PinholeCameraIntrinsics {
	return transform.PinholeCameraIntrinsics{
		Width:  si.ColorWidth,
		Height: si.ColorHeight,
		Fx:     si.ColorIntrinsic.At(0, 0),
		Fy:     si.ColorIntrinsic.At(1, 1),
		Ppx:    si.ColorIntrinsic.At(0, 2),
		Ppy:    si.ColorIntrinsic.At(1, 2),
	}
}

// Write writes the descriptor in the key = value form BundleFusion reads.
func (si *SensorInfo) Write(w io.Writer) error {
	var sb strings.Builder
	line := func(key, value string) {
		sb.WriteString(key)
		sb.WriteString(infoKeyValSeparator)
		sb.WriteString(value)
		sb.WriteByte('\n')
	}
	line(keyVersionNumber, strconv.Itoa(si.VersionNumber))
	line(keySensorName, si.SensorName)
	line(keyColorWidth, strconv.Itoa(si.ColorWidth))
	line(keyColorHeight, strconv.Itoa(si.ColorHeight))
	line(keyDepthWidth, strconv.Itoa(si.DepthWidth))
	line(keyDepthHeight, strconv.Itoa(si.DepthHeight))
	line(keyDepthShift, formatNumber(si.DepthShift))
	line(keyColorIntrinsic, FormatMatrix(si.ColorIntrinsic))
	line(keyColorExtrinsic, FormatMatrix(si.ColorExtrinsic))
	line(keyDepthIntrinsic, FormatMatrix(si.DepthIntrinsic))
	line(keyDepthExtrinsic, FormatMatrix(si.DepthExtrinsic))
	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteFile atomically writes the descriptor to path.
func (si *SensorInfo) WriteFile(path string) error {
	return rutils.WriteFileAtomic(path, si.Write)
}

// FormatMatrix writes the 16 entries of m row-major on one line with the shortest exact decimals.
func FormatMatrix(m mgl64.Mat4) string {
	values := make([]string, 0, 16)
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			values = append(values, formatNumber(m.At(row, col)))
		}
	}
	return strings.Join(values, " ")
}

func formatNumber(v float64) string {
	if v == 0 {
		// no negative zero
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseSensorInfo reads a descriptor written by Write or by BundleFusion itself. Unknown keys are
// ignored; every known key must be present.
func ParseSensorInfo(r io.Reader) (*SensorInfo, error) {
	values := map[string]string{}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errors.Errorf("info line %d has no '=': %q", lineNum, line)
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var si SensorInfo
	var err error
	intField := func(key string, into *int) {
		if err != nil {
			return
		}
		raw, ok := values[key]
		if !ok {
			err = rutils.NewMissingPropertyError(InfoFileName, key)
			return
		}
		*into, err = strconv.Atoi(raw)
		err = errors.Wrapf(err, "bad value for %s", key)
	}
	matField := func(key string, into *mgl64.Mat4) {
		if err != nil {
			return
		}
		raw, ok := values[key]
		if !ok {
			err = rutils.NewMissingPropertyError(InfoFileName, key)
			return
		}
		*into, err = parseMatrix(raw)
		err = errors.Wrapf(err, "bad value for %s", key)
	}

	intField(keyVersionNumber, &si.VersionNumber)
	intField(keyColorWidth, &si.ColorWidth)
	intField(keyColorHeight, &si.ColorHeight)
	intField(keyDepthWidth, &si.DepthWidth)
	intField(keyDepthHeight, &si.DepthHeight)
	matField(keyColorIntrinsic, &si.ColorIntrinsic)
	matField(keyColorExtrinsic, &si.ColorExtrinsic)
	matField(keyDepthIntrinsic, &si.DepthIntrinsic)
	matField(keyDepthExtrinsic, &si.DepthExtrinsic)
	if err != nil {
		return nil, err
	}

	name, ok := values[keySensorName]
	if !ok {
		return nil, rutils.NewMissingPropertyError(InfoFileName, keySensorName)
	}
	si.SensorName = name
	shift, ok := values[keyDepthShift]
	if !ok {
		return nil, rutils.NewMissingPropertyError(InfoFileName, keyDepthShift)
	}
	if si.DepthShift, err = strconv.ParseFloat(shift, 64); err != nil {
		return nil, errors.Wrapf(err, "bad value for %s", keyDepthShift)
	}
	return &si, nil
}

// ReadSensorInfoFile parses the descriptor at path.
func ReadSensorInfoFile(path string) (*SensorInfo, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ParseSensorInfo(f)
}

func parseMatrix(s string) (mgl64.Mat4, error) {
	fields := strings.Fields(s)
	if len(fields) != 16 {
		return mgl64.Mat4{}, errors.Errorf("matrix needs 16 values, got %d", len(fields))
	}
	var m mgl64.Mat4
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return mgl64.Mat4{}, err
		}
		m.Set(i/4, i%4, v)
	}
	return m, nil
}
