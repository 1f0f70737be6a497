// Command mapfusiond runs the central map-fusion aggregation node: it loads
// configuration, wires a filesystem submap notifier and a pexec-backed
// command runner, and blocks until an OS signal requests shutdown.
package main

import (
	"context"
	"os"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/136709865/maplab/command"
	"github.com/136709865/maplab/config"
	"github.com/136709865/maplab/notify"
	"github.com/136709865/maplab/server"
	"github.com/136709865/maplab/visualize"
)

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

var logger = golog.NewDevelopmentLogger("mapfusiond")

// Arguments are the command's flags.
type Arguments struct {
	ConfigFile     string `flag:"0,required,usage=server config yaml file"`
	SeedCheckpoint string `flag:"seed,usage=checkpoint file to restore on startup"`
	VisualizeOut   string `flag:"visualize-out,usage=path the visualization publisher dumps map snapshots to"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg, err := config.Load(argsParsed.ConfigFile)
	if err != nil {
		return err
	}

	runner := command.NewPexecRunner(cfg.CommandBinary, logger)

	visualizePath := argsParsed.VisualizeOut
	if visualizePath == "" {
		visualizePath = "map_snapshot.json"
	}
	visualizer := &visualize.FileDumper{Path: visualizePath}

	srv := server.New(cfg, runner, logger, visualizer)

	if len(cfg.SubmapWatchDirs) > 0 {
		watcher, err := notify.New(cfg.SubmapWatchDirs, submapIngestor{srv}, pathToRobotName, logger.Named("notify"))
		if err != nil {
			return err
		}
		watcher.Start(ctx)
		defer watcher.Close()
	}

	if err := srv.Start(ctx, argsParsed.SeedCheckpoint); err != nil {
		return err
	}

	<-ctx.Done()
	return srv.Shutdown(context.Background())
}

// submapIngestor adapts *server.Server to notify.Ingestor.
type submapIngestor struct {
	srv *server.Server
}

func (s submapIngestor) LoadAndProcessSubmap(ctx context.Context, robotName, submapPath string) error {
	return s.srv.LoadAndProcessSubmap(ctx, robotName, submapPath)
}

// pathToRobotName derives the owning robot's name from a watched submap
// file's path, per the producer layout convention <watch_dir>/<robot>/<map_hash>.json.
func pathToRobotName(path string) (string, bool) {
	dir := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == os.PathSeparator {
			dir = path[:i]
			break
		}
	}
	for i := len(dir) - 1; i >= 0; i-- {
		if dir[i] == os.PathSeparator {
			return dir[i+1:], dir[i+1:] != ""
		}
	}
	return dir, dir != ""
}
