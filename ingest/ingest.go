// Package ingest implements submap admission: enqueueing a notified submap
// and running its load-then-process pipeline on a bounded worker pool
// (§4.2). Concurrency is bounded with golang.org/x/sync/semaphore, the same
// module the teacher already depends on for errgroup elsewhere.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/utils"
	"golang.org/x/sync/semaphore"

	"github.com/136709865/maplab/blacklist"
	"github.com/136709865/maplab/command"
	"github.com/136709865/maplab/config"
	"github.com/136709865/maplab/errs"
	"github.com/136709865/maplab/mapstore"
	"github.com/136709865/maplab/queue"
	"github.com/136709865/maplab/registry"
	"github.com/136709865/maplab/submap"
)

// Pool runs the per-submap pipeline (load, anchor extraction, per-submap
// commands) on at most config.IngestParallelism submaps concurrently.
type Pool struct {
	queue     *queue.Queue
	store     *mapstore.Store
	registry  *registry.Registry
	blacklist *blacklist.Blacklist
	runner    command.Runner
	commands  []string
	failFast  bool
	logger    golog.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New returns a Pool sized per cfg.IngestParallelism.
func New(q *queue.Queue, store *mapstore.Store, reg *registry.Registry, bl *blacklist.Blacklist, runner command.Runner, cfg config.Config, logger golog.Logger) *Pool {
	n := cfg.IngestParallelism
	if n <= 0 {
		n = 1
	}
	return &Pool{
		queue:     q,
		store:     store,
		registry:  reg,
		blacklist: bl,
		runner:    runner,
		commands:  cfg.SubmapCommands,
		failFast:  cfg.FailFastOnCommandError,
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(n)),
	}
}

// Dispatch schedules proc's pipeline on the pool (proc must already be in the
// queue), blocking only until a worker slot is claimed (not until the
// pipeline finishes). The
// caller (LoadAndProcessSubmap) returns as soon as Dispatch returns.
func (p *Pool) Dispatch(ctx context.Context, proc *submap.Process) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return errs.Wrap(err, errs.ShuttingDown, "acquire ingest pool slot")
	}
	p.wg.Add(1)
	utils.PanicCapturingGo(func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		p.run(ctx, proc)
	})
	return nil
}

// Wait blocks until every dispatched pipeline currently running has finished.
// Queued-but-unstarted submaps (blocked on the semaphore) are abandoned, per
// the shutdown contract in §4.1: "joins the ingest pool after draining
// in-flight tasks (not the queue)".
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, proc *submap.Process) {
	mapKey := proc.MapHash

	missionID, data, err := mapstore.LoadSubmapFile(proc.Path)
	if err != nil {
		p.logger.Errorw("failed to load submap", "path", proc.Path, "error", err)
		p.queue.Remove(proc)
		return
	}

	if p.blacklist.Contains(missionID) {
		p.logger.Infow("discarding submap for blacklisted mission", "mission", missionID, "path", proc.Path)
		p.queue.Remove(proc)
		return
	}

	p.store.Put(mapKey, data)
	proc.SetLoaded(mapKey, missionID)
	p.registry.ObserveMission(proc.RobotName, missionID)

	if v, ok := data.LatestVertex(missionID); ok {
		p.registry.RecordAnchor(proc.RobotName, v.TimestampNs, v.TMB, v.TGM, time.Now().UnixNano())
	}

	var procErr error
	for _, cmdText := range p.commands {
		if ctx.Err() != nil {
			procErr = errs.Wrap(ctx.Err(), errs.ShuttingDown, "submap command interrupted by shutdown")
			break
		}
		proc.SetCurrentCommand(cmdText)
		if err := p.runner.Run(ctx, mapKey, cmdText); err != nil {
			wrapped := errs.Wrap(err, errs.CommandFailed, "command %q failed for map %q", cmdText, mapKey)
			p.logger.Errorw("submap command failed", "command", cmdText, "map_key", mapKey, "error", wrapped)
			if p.failFast {
				p.blacklist.Add(missionID, wrapped.Error())
				procErr = wrapped
				break
			}
			procErr = wrapped
			continue
		}
	}
	proc.SetCurrentCommand("")
	proc.SetProcessed(procErr)
}
