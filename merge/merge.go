// Package merge implements the single-threaded merge loop: the sole writer
// of the merged map (§4.3).
package merge

import (
	"context"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/136709865/maplab/blacklist"
	"github.com/136709865/maplab/command"
	"github.com/136709865/maplab/config"
	"github.com/136709865/maplab/mapstore"
	"github.com/136709865/maplab/mergestate"
	"github.com/136709865/maplab/pubsub"
	"github.com/136709865/maplab/queue"
	"github.com/136709865/maplab/registry"
	"github.com/136709865/maplab/spatial"
)

// Loop owns the merged map's only writer. Exactly one Loop.Run goroutine
// must exist per server (§5: "exactly one merge-loop goroutine").
type Loop struct {
	store     *mapstore.Store
	queue     *queue.Queue
	registry  *registry.Registry
	blacklist *blacklist.Blacklist
	runner    command.Runner
	logger    golog.Logger

	globalCommands     []string
	checkpointInterval time.Duration
	checkpointPath     string
	pollInterval       time.Duration

	state               *mergestate.State
	correctionPublisher pubsub.CorrectionPublisher // nil until RegisterCorrectionCallback.

	lastCheckpoint time.Time
}

// New returns a Loop wired to its collaborators and configured per cfg.
func New(q *queue.Queue, store *mapstore.Store, reg *registry.Registry, bl *blacklist.Blacklist, runner command.Runner, cfg config.Config, state *mergestate.State, logger golog.Logger) *Loop {
	return &Loop{
		store:              store,
		queue:              q,
		registry:           reg,
		blacklist:          bl,
		runner:             runner,
		logger:             logger,
		globalCommands:     cfg.GlobalCommands,
		checkpointInterval: cfg.CheckpointInterval(),
		checkpointPath:     cfg.CheckpointPath,
		pollInterval:       cfg.MergeLoopPollInterval(),
		state:              state,
	}
}

// RegisterCorrectionCallback installs the pose-correction destination. Safe
// to call before or after Run starts; nil clears it.
func (l *Loop) RegisterCorrectionCallback(cb pubsub.CorrectionPublisher) {
	l.correctionPublisher = cb
}

// Run blocks, running one iteration then sleeping pollInterval, until ctx is
// cancelled. Intended to be launched via utils.PanicCapturingGo.
func (l *Loop) Run(ctx context.Context) {
	for {
		start := time.Now()
		l.iterate(ctx)
		l.state.SetLastIterationDuration(time.Since(start).Seconds())

		if !utils.SelectContextOrWait(ctx, l.pollInterval) {
			return
		}
	}
}

func (l *Loop) iterate(ctx context.Context) {
	l.state.SetBusy(true)
	defer l.state.SetBusy(false)

	l.deleteBlacklistedMissions()
	changedRobots := l.appendAvailableSubmaps()
	l.runGlobalCommands(ctx)
	l.publishCorrections(changedRobots)
	l.maybeCheckpoint()
}

// deleteBlacklistedMissions is merge-loop step 1.
func (l *Loop) deleteBlacklistedMissions() {
	handle, err := l.store.AcquireWrite(mapstore.MergedMapKey, false)
	if err != nil {
		return // no merged map yet; nothing to delete from.
	}
	defer handle.Close()

	data := handle.Data()
	for _, id := range data.MissionIDs() {
		if l.blacklist.Contains(id) {
			data.RemoveMission(id)
			l.registry.RemoveMission(id)
		}
	}
	if data.IsEmpty() {
		l.store.Delete(mapstore.MergedMapKey)
	}
}

// appendAvailableSubmaps is merge-loop step 2. It returns the set of robots
// that contributed at least one newly merged submap this iteration, which
// gates correction publishing in step 4.
func (l *Loop) appendAvailableSubmaps() map[string]bool {
	mergeable, discarded := l.queue.DrainMergeablePrefix(l.blacklist.Contains)
	for _, proc := range discarded {
		l.store.Delete(proc.MapKey())
	}
	if len(mergeable) == 0 {
		return nil
	}

	handle, err := l.store.AcquireWrite(mapstore.MergedMapKey, true)
	if err != nil {
		l.logger.Errorw("failed to acquire merged map for append", "error", err)
		return nil
	}
	defer handle.Close()

	changed := make(map[string]bool)
	for _, proc := range mergeable {
		missionID, ok := proc.MissionID()
		if !ok {
			continue
		}

		submapHandle, err := l.store.AcquireRead(proc.MapKey())
		if err != nil {
			l.logger.Errorw("merged-ready submap missing from store", "map_key", proc.MapKey(), "error", err)
			continue
		}
		vertices := submapHandle.Data().Vertices(missionID)
		sensors := submapHandle.Data().Sensors(missionID)
		submapHandle.Close()

		handle.Data().AppendMission(missionID, vertices, sensors)
		l.store.Delete(proc.MapKey())
		proc.SetMerged()
		changed[proc.RobotName] = true
	}
	return changed
}

// runGlobalCommands is merge-loop step 3.
func (l *Loop) runGlobalCommands(ctx context.Context) {
	for _, cmdText := range l.globalCommands {
		l.state.SetCurrentCommand(cmdText)
		if err := l.runner.Run(ctx, mapstore.MergedMapKey, cmdText); err != nil {
			l.logger.Errorw("global command failed", "command", cmdText, "error", err)
		}
	}
	l.state.SetCurrentCommand("")
}

// publishCorrections is merge-loop step 4.
func (l *Loop) publishCorrections(changed map[string]bool) {
	if l.correctionPublisher == nil || len(changed) == 0 {
		return
	}

	handle, err := l.store.AcquireRead(mapstore.MergedMapKey)
	if err != nil {
		return
	}
	defer handle.Close()
	data := handle.Data()

	for robotName := range changed {
		missionID, ok := l.registry.CurrentMission(robotName)
		if !ok {
			continue
		}
		vertices := data.Vertices(missionID)
		if len(vertices) == 0 {
			continue
		}

		tStar, ok := latestCommonTimestamp(vertices, l.registry.AnchorTimestamps(robotName))
		if !ok {
			continue
		}
		tmbOld, tgmOld, ok := l.registry.AnchorAt(robotName, tStar)
		if !ok {
			continue
		}
		tgbNew, ok := vertexAt(vertices, tStar)
		if !ok {
			continue
		}

		tGOldBOld := tgmOld.Compose(tmbOld)
		tBOldBNew := tGOldBOld.Invert().Compose(tgbNew)

		l.correctionPublisher.Publish(pubsub.Correction{
			TimestampNs: tStar,
			RobotName:   robotName,
			TMBOld:      tmbOld,
			TGMOld:      tgmOld,
			TGBNew:      tgbNew,
			TBOldBNew:   tBOldBNew,
		})
	}
}

func latestCommonTimestamp(vertices []mapstore.Vertex, anchorTimestamps []int64) (int64, bool) {
	set := make(map[int64]struct{}, len(anchorTimestamps))
	for _, ts := range anchorTimestamps {
		set[ts] = struct{}{}
	}
	var best int64
	found := false
	for _, v := range vertices {
		if _, ok := set[v.TimestampNs]; !ok {
			continue
		}
		if !found || v.TimestampNs > best {
			best = v.TimestampNs
			found = true
		}
	}
	return best, found
}

func vertexAt(vertices []mapstore.Vertex, ts int64) (spatial.Pose, bool) {
	for _, v := range vertices {
		if v.TimestampNs == ts {
			return v.TGB, true
		}
	}
	return spatial.Pose{}, false
}

// maybeCheckpoint is merge-loop step 5.
func (l *Loop) maybeCheckpoint() {
	if l.checkpointPath == "" {
		return
	}
	if !l.lastCheckpoint.IsZero() && time.Since(l.lastCheckpoint) < l.checkpointInterval {
		return
	}

	handle, err := l.store.AcquireRead(mapstore.MergedMapKey)
	if err != nil {
		return // nothing to checkpoint yet.
	}
	b, encErr := mapstore.EncodeCheckpoint(handle.Data())
	handle.Close()
	if encErr != nil {
		l.logger.Errorw("failed to encode checkpoint", "error", encErr)
		return
	}

	if err := mapstore.AtomicWriteCheckpoint(l.checkpointPath, b); err != nil {
		l.logger.Errorw("failed to write checkpoint", "path", l.checkpointPath, "error", err)
		return
	}
	l.lastCheckpoint = time.Now()
}

// SaveMap serializes the current merged map to an explicit path, independent
// of the periodic checkpoint_path/checkpoint_interval_s schedule.
func (l *Loop) SaveMap(path string) error {
	handle, err := l.store.AcquireRead(mapstore.MergedMapKey)
	if err != nil {
		return err
	}
	b, encErr := mapstore.EncodeCheckpoint(handle.Data())
	handle.Close()
	if encErr != nil {
		return encErr
	}
	return mapstore.AtomicWriteCheckpoint(path, b)
}
