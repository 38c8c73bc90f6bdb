package bundlefusion

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/scenerf/rgbdprep/logging"
	"github.com/scenerf/rgbdprep/rimage"
	"github.com/scenerf/rgbdprep/utils"
)

const (
	colorPNGSuffix = ".color.png"
	colorJPGSuffix = ".color.jpg"
	// removal matches anything ending in color.png, including "_color.png" exports.
	removableSuffix = "color.png"
)

// findFiles walks root and returns every regular file whose name ends in suffix, in walk order.
func findFiles(ctx context.Context, root, suffix string) ([]string, error) {
	if !utils.IsDir(root) {
		return nil, errors.Errorf("%q is not a directory", root)
	}
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), suffix) {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}

// ConvertColorImagesToJPEG re-encodes every *.color.png below root as a sibling *.color.jpg at
// the given quality. Sources are left in place. A file that fails is logged and skipped; the
// failures are returned combined alongside the number of files converted.
func ConvertColorImagesToJPEG(ctx context.Context, root string, quality int, logger logging.Logger) (int, error) {
	if quality < 1 || quality > 100 {
		return 0, errors.Errorf("jpeg quality must be within [1, 100], got %d", quality)
	}
	sources, err := findFiles(ctx, root, colorPNGSuffix)
	if err != nil {
		return 0, err
	}
	logger.Debugw("found colour images", "root", root, "count", len(sources))

	var (
		mu        sync.Mutex
		converted int
		saved     int64
		combined  error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(utils.ParallelFactor)
	for _, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dst := strings.TrimSuffix(src, colorPNGSuffix) + colorJPGSuffix
			srcSize, dstSize, err := convertToJPEG(src, dst, quality)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warnw("failed to convert", "src", src, "error", err)
				combined = multierr.Append(combined, err)
				return nil
			}
			converted++
			saved += srcSize - dstSize
			logger.Infow("converted", "src", src, "dst", dst,
				"png", units.HumanSize(float64(srcSize)), "jpg", units.HumanSize(float64(dstSize)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		combined = multierr.Append(combined, err)
	}
	logger.Debugw("jpeg conversion done", "root", root, "converted", converted, "saved", units.HumanSize(float64(saved)))
	return converted, combined
}

// convertToJPEG writes src as a JPEG at dst and returns the sizes of both files.
func convertToJPEG(src, dst string, quality int) (int64, int64, error) {
	img, err := rimage.ReadImageFromFile(src)
	if err != nil {
		return 0, 0, err
	}
	if err := rimage.WriteJPEGToFile(dst, img, quality); err != nil {
		return 0, 0, err
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, 0, err
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return 0, 0, err
	}
	return srcInfo.Size(), dstInfo.Size(), nil
}

// RemoveColorPNGs deletes every file below root whose name ends in "color.png". With dryRun the
// files are only logged. It returns the number of files removed (or that would be removed).
func RemoveColorPNGs(ctx context.Context, root string, dryRun bool, logger logging.Logger) (int, error) {
	targets, err := findFiles(ctx, root, removableSuffix)
	if err != nil {
		return 0, err
	}
	removed := 0
	var combined error
	for _, path := range targets {
		if err := ctx.Err(); err != nil {
			return removed, multierr.Append(combined, err)
		}
		if dryRun {
			logger.Infow("would delete", "path", path)
			removed++
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warnw("failed to delete", "path", path, "error", err)
			combined = multierr.Append(combined, err)
			continue
		}
		logger.Infow("deleted", "path", path)
		removed++
	}
	return removed, combined
}
