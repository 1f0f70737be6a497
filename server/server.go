// Package server implements the Lifecycle Controller: the public operations
// every other package's work is reachable through (§4.1).
package server

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/utils"

	"github.com/136709865/maplab/blacklist"
	"github.com/136709865/maplab/command"
	"github.com/136709865/maplab/config"
	"github.com/136709865/maplab/errs"
	"github.com/136709865/maplab/ingest"
	"github.com/136709865/maplab/logging"
	"github.com/136709865/maplab/lookup"
	"github.com/136709865/maplab/mapstore"
	"github.com/136709865/maplab/merge"
	"github.com/136709865/maplab/mergestate"
	"github.com/136709865/maplab/pubsub"
	"github.com/136709865/maplab/queue"
	"github.com/136709865/maplab/registry"
	"github.com/136709865/maplab/status"
	"github.com/136709865/maplab/submap"
	"github.com/136709865/maplab/visualize"
)

// ErrAlreadyStarted is returned by Start on a node that has already started.
var ErrAlreadyStarted = errs.New(errs.InvalidArgument, "server already started")

// ErrShutDown is returned by Start and LoadAndProcessSubmap on a node that
// has already shut down, and by Shutdown on a node that was never started.
var ErrShutDown = errs.New(errs.ShuttingDown, "server has shut down")

type lifecycleState int

const (
	stateNotStarted lifecycleState = iota
	stateRunning
	stateShutDown
)

// Server is the central aggregation node. The zero value is not usable; use New.
type Server struct {
	cfg    config.Config
	logger golog.Logger

	queue         *queue.Queue
	store         *mapstore.Store
	registry      *registry.Registry
	blacklist     *blacklist.Blacklist
	pool          *ingest.Pool
	mergeLoop     *merge.Loop
	lookupSvc     *lookup.Service
	reporter      *status.Reporter
	statusLogFile io.Closer
	visualizer    visualize.Publisher

	mu    sync.Mutex
	state lifecycleState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Server from cfg and its external collaborators. The
// server does not start any goroutines until Start is called.
func New(cfg config.Config, runner command.Runner, logger golog.Logger, visualizer visualize.Publisher) *Server {
	q := queue.New()
	store := mapstore.New()
	reg := registry.New(cfg.RobotRegistryTTLNs())
	bl := blacklist.New()
	ms := mergestate.New()

	pool := ingest.New(q, store, reg, bl, runner, cfg, logger.Named("ingest"))
	mergeLoop := merge.New(q, store, reg, bl, runner, cfg, ms, logger.Named("merge"))
	lookupSvc := lookup.New(store, reg, cfg)

	statusLogFile := logging.NewRotatingWriter(cfg.StatusLogPath, cfg.StatusLogMaxSizeMB, cfg.StatusLogMaxBackups, cfg.StatusLogCompress)
	reporter := status.New(q, bl, reg, ms, logger.Named("status"), statusLogFile, cfg.StatusInterval())

	return &Server{
		cfg:           cfg,
		logger:        logger,
		queue:         q,
		store:         store,
		registry:      reg,
		blacklist:     bl,
		pool:          pool,
		mergeLoop:     mergeLoop,
		lookupSvc:     lookupSvc,
		reporter:      reporter,
		statusLogFile: statusLogFile,
		visualizer:    visualizer,
	}
}

// Start freezes configuration (already frozen by New) and launches the
// merge loop and status reporter goroutines. seedCheckpointPath, if
// non-empty, is loaded as the initial merged map before anything else runs
// (§4.1 seed recovery).
func (s *Server) Start(ctx context.Context, seedCheckpointPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateShutDown:
		return ErrShutDown
	}

	if seedCheckpointPath != "" {
		if err := s.loadSeedCheckpoint(seedCheckpointPath); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	utils.PanicCapturingGo(func() {
		defer s.wg.Done()
		s.mergeLoop.Run(runCtx)
	})
	utils.PanicCapturingGo(func() {
		defer s.wg.Done()
		s.reporter.Run(runCtx)
	})

	s.state = stateRunning
	return nil
}

// loadSeedCheckpoint restores the merged map from a prior checkpoint. Robot
// ownership of recovered missions is not restored: the Robot Registry rebuilds
// itself as each robot's next submap arrives and calls ObserveMission again.
func (s *Server) loadSeedCheckpoint(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(err, errs.IOFailure, "read seed checkpoint %q", path)
	}
	data, err := mapstore.DecodeCheckpoint(b)
	if err != nil {
		return errs.Wrap(err, errs.IOFailure, "decode seed checkpoint %q", path)
	}
	s.store.Put(mapstore.MergedMapKey, data)
	return nil
}

// Shutdown cancels the merge loop and status reporter, waits for in-flight
// ingest work to finish (queued-but-unstarted submaps are abandoned), and
// performs a final checkpoint if the merged map exists (§4.1).
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		if s.state == stateShutDown {
			return nil
		}
		return ErrShutDown
	}
	s.state = stateShutDown
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.pool.Wait()
	s.wg.Wait()

	if closeErr := s.statusLogFile.Close(); closeErr != nil {
		s.logger.Errorw("failed to close status log file", "error", closeErr)
	}

	if s.cfg.CheckpointPath != "" {
		if err := s.mergeLoop.SaveMap(s.cfg.CheckpointPath); err != nil && errs.KindOf(err) != errs.NotFound {
			return errs.Wrap(err, errs.IOFailure, "final checkpoint on shutdown")
		}
	}
	return nil
}

// LoadAndProcessSubmap admits a notified submap (§4.2).
func (s *Server) LoadAndProcessSubmap(ctx context.Context, robotName, submapPath string) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == stateShutDown {
		return ErrShutDown
	}

	proc := submap.New(robotName, submapPath)
	if duplicate := s.queue.Enqueue(proc); duplicate {
		s.logger.Infow("duplicate submap notification ignored", "robot", robotName, "path", submapPath)
		return nil
	}
	return s.pool.Dispatch(ctx, proc)
}

// SaveMap serializes the current merged map to path, independent of the
// periodic checkpoint schedule.
func (s *Server) SaveMap(path string) error {
	return s.mergeLoop.SaveMap(path)
}

// MapLookup resolves a sensor-frame point to the global frame (§4.5).
func (s *Server) MapLookup(robotName, sensorType string, timestampNs int64, pointSensor r3.Vector) (lookup.Result, error) {
	return s.lookupSvc.MapLookup(robotName, sensorType, timestampNs, pointSensor)
}

// DeleteMission resolves partialID against every known mission id and
// blacklists the unique match (§4.4).
func (s *Server) DeleteMission(partialID string) (string, error) {
	if len(partialID) < 4 {
		return "", errs.New(errs.InvalidArgument, "partial mission id %q shorter than minimum prefix length 4", partialID)
	}

	candidates := s.allKnownMissionIDs()
	matches := blacklist.ResolvePrefix(partialID, candidates)
	switch len(matches) {
	case 0:
		return "", errs.New(errs.NotFound, "no mission matches prefix %q", partialID)
	case 1:
		s.blacklist.Add(matches[0], "deleted via DeleteMission("+partialID+")")
		return matches[0], nil
	default:
		return "", errs.New(errs.InvalidArgument, "prefix %q is ambiguous among %d missions", partialID, len(matches))
	}
}

// DeleteAllRobotMissions blacklists every mission id ever observed for
// robotName. Idempotent (§4.4).
func (s *Server) DeleteAllRobotMissions(robotName string) {
	for _, missionID := range s.registry.MissionChain(robotName) {
		s.blacklist.Add(missionID, "deleted via DeleteAllRobotMissions("+robotName+")")
	}
}

func (s *Server) allKnownMissionIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range s.registry.AllMissionIDs() {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	handle, err := s.store.AcquireRead(mapstore.MergedMapKey)
	if err == nil {
		for _, id := range handle.Data().MissionIDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
		handle.Close()
	}
	return out
}

// VisualizeMap publishes a snapshot of the merged map via the configured
// visualization publisher.
func (s *Server) VisualizeMap(ctx context.Context) error {
	handle, err := s.store.AcquireRead(mapstore.MergedMapKey)
	if err != nil {
		return errs.New(errs.NotFound, "no merged map to visualize yet")
	}
	defer handle.Close()

	snapshot := visualize.MapSnapshot{
		TakenAt:  time.Now(),
		Missions: make(map[string][]mapstore.Vertex),
	}
	for _, id := range handle.Data().MissionIDs() {
		snapshot.Missions[id] = handle.Data().Vertices(id)
	}
	return s.visualizer.Publish(snapshot)
}

// RegisterStatusCallback installs the status publisher the lifecycle
// controller's status reporter delivers to, in addition to local logging.
func (s *Server) RegisterStatusCallback(cb pubsub.StatusPublisher) {
	s.reporter.RegisterCallback(cb)
}

// RegisterCorrectionCallback installs the pose-correction publisher the
// merge loop delivers to.
func (s *Server) RegisterCorrectionCallback(cb pubsub.CorrectionPublisher) {
	s.mergeLoop.RegisterCorrectionCallback(cb)
}
