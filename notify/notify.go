// Package notify provides the ingest notification source: a filesystem-watch
// collaborator that turns submap file arrivals into LoadAndProcessSubmap
// calls, grounded in the fsnotify watch-loop idiom used for the example
// pack's own directory-watching daemon.
package notify

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/fsnotify/fsnotify"
	"go.viam.com/utils"
)

// Ingestor is the subset of the server's public API the watcher drives.
type Ingestor interface {
	LoadAndProcessSubmap(ctx context.Context, robotName, submapPath string) error
}

// PathToRobot extracts the owning robot name from an arrived submap's path,
// e.g. by parent-directory convention. Callers supply this since the
// directory layout robots write into is deployment-specific.
type PathToRobot func(path string) (robotName string, ok bool)

// Watcher watches one or more directories for submap file arrivals and
// dispatches each one to an Ingestor.
type Watcher struct {
	watcher     *fsnotify.Watcher
	ingestor    Ingestor
	pathToRobot PathToRobot
	logger      golog.Logger

	wg sync.WaitGroup
}

// New creates a Watcher that will watch the given directories once Start is
// called.
func New(dirs []string, ingestor Ingestor, pathToRobot PathToRobot, logger golog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return &Watcher{watcher: fsw, ingestor: ingestor, pathToRobot: pathToRobot, logger: logger}, nil
}

// Start launches the watch loop in the background, supervised against panics
// the way every background goroutine in this repository is (§7: a worker
// panic must never crash the process).
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	utils.PanicCapturingGo(func() {
		defer w.wg.Done()
		w.loop(ctx)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			w.handle(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorw("submap watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	robotName, ok := w.pathToRobot(path)
	if !ok {
		w.logger.Warnw("submap arrival with unresolvable robot name, ignoring", "path", path)
		return
	}
	if err := w.ingestor.LoadAndProcessSubmap(ctx, robotName, path); err != nil {
		w.logger.Errorw("failed to ingest submap", "path", path, "robot", robotName, "error", err)
	}
}

// Close stops the watch loop and releases the underlying OS resources.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
