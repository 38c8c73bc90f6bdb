package tum

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// DefaultMargin is the largest timestamp difference, in seconds, of an associated frame.
const DefaultMargin = 0.02

// StampedFile is a file named after its capture time, such as "1305031102.175304.png".
type StampedFile struct {
	Stamp float64
	Name  string
}

// Ext returns the lowercased extension of the file including the dot.
func (f StampedFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// ListStampedFiles returns the regular files in dir with one of exts whose stem is a timestamp,
// ordered by timestamp. Other files are ignored.
func ListStampedFiles(dir string, exts ...string) ([]StampedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := lo.FilterMap(entries, func(entry os.DirEntry, _ int) (StampedFile, bool) {
		name := entry.Name()
		ext := filepath.Ext(name)
		if entry.IsDir() || !lo.Contains(exts, strings.ToLower(ext)) {
			return StampedFile{}, false
		}
		stamp, err := strconv.ParseFloat(strings.TrimSuffix(name, ext), 64)
		if err != nil || math.IsNaN(stamp) || math.IsInf(stamp, 0) {
			return StampedFile{}, false
		}
		return StampedFile{Stamp: stamp, Name: name}, true
	})
	sort.SliceStable(files, func(i, j int) bool { return files[i].Stamp < files[j].Stamp })
	return files, nil
}

// Match is one associated frame.
type Match struct {
	Color StampedFile
	Depth StampedFile
	Pose  StampedPose
}

// Associate pairs every colour image, in order, with the nearest remaining depth image and the
// nearest remaining pose. A colour image whose nearest depth or pose is further than margin
// seconds away is skipped and returned separately. Matched depth images and poses are consumed
// and never paired twice.
func Associate(color, depth []StampedFile, poses []StampedPose, margin float64) (matches []Match, skipped []StampedFile) {
	depthUsed := make([]bool, len(depth))
	poseUsed := make([]bool, len(poses))
	for _, c := range color {
		di := nearest(len(depth), depthUsed, func(i int) float64 { return depth[i].Stamp }, c.Stamp)
		if di < 0 || math.Abs(depth[di].Stamp-c.Stamp) > margin {
			skipped = append(skipped, c)
			continue
		}
		pi := nearest(len(poses), poseUsed, func(i int) float64 { return poses[i].Stamp }, c.Stamp)
		if pi < 0 || math.Abs(poses[pi].Stamp-c.Stamp) > margin {
			skipped = append(skipped, c)
			continue
		}
		depthUsed[di] = true
		poseUsed[pi] = true
		matches = append(matches, Match{Color: c, Depth: depth[di], Pose: poses[pi]})
	}
	return matches, skipped
}

// nearest returns the index of the unused entry closest to stamp, the first one on ties, or -1.
func nearest(n int, used []bool, stampAt func(int) float64, stamp float64) int {
	best := -1
	bestDiff := math.Inf(1)
	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		if diff := math.Abs(stampAt(i) - stamp); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}
