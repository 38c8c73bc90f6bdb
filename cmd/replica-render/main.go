// Package main renders a synthetic RGB-D orbit of a scene mesh into the BundleFusion layout.
package main

import (
	"context"

	"go.viam.com/utils"

	"github.com/scenerf/rgbdprep/logging"
	"github.com/scenerf/rgbdprep/synth"
)

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

var logger = logging.NewLogger("replica-render")

// Arguments for the command.
type Arguments struct {
	Config  string `flag:"config,usage=JSON5 render config overlaid on the defaults"`
	Mesh    string `flag:"mesh,usage=mesh file name inside the scene directory"`
	Frames  int    `flag:"frames,usage=number of orbit frames"`
	Workers int    `flag:"workers,usage=number of frames rendered in parallel"`
	Debug   bool   `flag:"debug"`
	Scene   string `flag:"0,required,usage=scene directory holding the mesh"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Debug {
		logger = logging.NewDebugLogger("replica-render")
	}

	cfg, err := loadConfig(argsParsed)
	if err != nil {
		return err
	}
	result, err := synth.Run(ctx, argsParsed.Scene, cfg, logger)
	if err != nil {
		return err
	}
	logger.Infof("wrote %d frames to %s", len(result.Frames), result.OutputDir)
	return nil
}

func loadConfig(args Arguments) (synth.Config, error) {
	cfg := synth.DefaultConfig()
	if args.Config != "" {
		var err error
		if cfg, err = synth.LoadConfig(args.Config); err != nil {
			return synth.Config{}, err
		}
	}
	if args.Mesh != "" {
		cfg.MeshName = args.Mesh
	}
	if args.Frames != 0 {
		cfg.Frames = args.Frames
	}
	if args.Workers != 0 {
		cfg.Workers = args.Workers
	}
	return cfg, nil
}
