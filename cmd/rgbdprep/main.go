// Package main is the dataset preparation CLI: TUM conversion, pose export, colour image
// housekeeping and mesh previews.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/scenerf/rgbdprep/bundlefusion"
	"github.com/scenerf/rgbdprep/logging"
	"github.com/scenerf/rgbdprep/preview"
	"github.com/scenerf/rgbdprep/rimage"
	"github.com/scenerf/rgbdprep/tum"
)

const (
	// Flags.
	flagDebug      = "debug"
	flagOutput     = "output"
	flagMargin     = "margin"
	flagCopy       = "copy"
	flagQuality    = "quality"
	flagDryRun     = "dry-run"
	flagViews      = "views"
	flagCols       = "cols"
	flagWidth      = "width"
	flagHeight     = "height"
	flagBackground = "background"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	var logger logging.Logger

	return &cli.App{
		Name:  "rgbdprep",
		Usage: "prepare RGB-D datasets for BundleFusion",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("rgbdprep")
			} else {
				logger = logging.NewLogger("rgbdprep")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "tum2bf",
				Usage:     "convert a TUM RGB-D sequence into BundleFusion frames",
				ArgsUsage: "<sequence folder>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagOutput,
						Usage: "write frames to `DIR` instead of the sequence folder",
					},
					&cli.Float64Flag{
						Name:  flagMargin,
						Value: tum.DefaultMargin,
						Usage: "largest timestamp difference in seconds of an associated frame",
					},
					&cli.BoolFlag{
						Name:  flagCopy,
						Usage: "copy the images instead of moving them",
					},
				},
				Action: func(c *cli.Context) error {
					folder, err := singleArg(c, "sequence folder")
					if err != nil {
						return err
					}
					result, err := tum.Convert(c.Context, tum.Options{
						Folder: folder,
						Output: c.String(flagOutput),
						Margin: c.Float64(flagMargin),
						Copy:   c.Bool(flagCopy),
					}, logger)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "wrote %d frames to %s (%d colour images skipped)\n",
						result.Frames, result.OutputDir, result.Skipped)
					return nil
				},
			},
			{
				Name:      "gt-poses",
				Usage:     "write every ground truth pose of a TUM sequence as a pose file",
				ArgsUsage: "<sequence folder> <output dir>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return errors.New("expected a sequence folder and an output dir")
					}
					n, err := tum.ExportGroundTruthPoses(c.Args().Get(0), c.Args().Get(1))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "wrote %d poses\n", n)
					return nil
				},
			},
			{
				Name:      "png2jpg",
				Usage:     "write a .color.jpg next to every .color.png under a directory",
				ArgsUsage: "<root>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagQuality,
						Value: rimage.DefaultJPEGQuality,
						Usage: "JPEG quality from 1 to 100",
					},
				},
				Action: func(c *cli.Context) error {
					root, err := singleArg(c, "root")
					if err != nil {
						return err
					}
					n, err := bundlefusion.ConvertColorImagesToJPEG(c.Context, root, c.Int(flagQuality), logger)
					fmt.Fprintf(c.App.Writer, "converted %d images\n", n)
					return err
				},
			},
			{
				Name:      "rmcolor",
				Usage:     "delete every file ending in color.png under a directory",
				ArgsUsage: "<root>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagDryRun,
						Usage: "only list what would be deleted",
					},
				},
				Action: func(c *cli.Context) error {
					root, err := singleArg(c, "root")
					if err != nil {
						return err
					}
					dryRun := c.Bool(flagDryRun)
					n, err := bundlefusion.RemoveColorPNGs(c.Context, root, dryRun, logger)
					verb := "deleted"
					if dryRun {
						verb = "would delete"
					}
					fmt.Fprintf(c.App.Writer, "%s %d files\n", verb, n)
					return err
				},
			},
			{
				Name:      "preview",
				Usage:     "render a contact sheet of a PLY mesh from cameras orbiting it",
				ArgsUsage: "<mesh.ply> <sheet.png|jpg|ppm|qoi>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: flagViews, Value: 8, Usage: "number of views"},
					&cli.IntFlag{Name: flagCols, Value: 4, Usage: "views per row"},
					&cli.IntFlag{Name: flagWidth, Value: 320, Usage: "width of one tile"},
					&cli.IntFlag{Name: flagHeight, Value: 240, Usage: "height of one tile"},
					&cli.StringFlag{Name: flagBackground, Value: preview.DefaultBackground, Usage: "sheet colour as `#RRGGBB`"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return errors.New("expected a mesh file and an output image")
					}
					return preview.RenderMeshFile(c.Context, c.Args().Get(0), c.Args().Get(1), preview.Options{
						Views:      c.Int(flagViews),
						Cols:       c.Int(flagCols),
						Width:      c.Int(flagWidth),
						Height:     c.Int(flagHeight),
						Background: c.String(flagBackground),
						Logger:     logger,
					})
				},
			},
		},
	}
}

func singleArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", errors.Errorf("expected exactly one argument: %s", name)
	}
	return c.Args().First(), nil
}
