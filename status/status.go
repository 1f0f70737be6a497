// Package status builds and delivers the periodic textual snapshot the
// lifecycle controller publishes via the Status Reporter (§4.6).
package status

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/136709865/maplab/blacklist"
	"github.com/136709865/maplab/mergestate"
	"github.com/136709865/maplab/pubsub"
	"github.com/136709865/maplab/queue"
	"github.com/136709865/maplab/registry"
)

// Reporter periodically snapshots the server's live state into text and
// delivers it to a local logger, a rotating local log file, and, if one is
// registered, a callback.
type Reporter struct {
	queue      *queue.Queue
	blacklist  *blacklist.Blacklist
	registry   *registry.Registry
	mergeState *mergestate.State
	logger     golog.Logger
	localLog   io.Writer
	interval   time.Duration

	callback pubsub.StatusPublisher // nil until RegisterCallback.
}

// New returns a Reporter. logger and localLog both receive every snapshot
// unconditionally, independent of each other and of whether a callback is
// registered (§4.6 "local logging always on"); RegisterCallback adds a
// third, optional destination.
func New(q *queue.Queue, bl *blacklist.Blacklist, reg *registry.Registry, ms *mergestate.State, logger golog.Logger, localLog io.Writer, interval time.Duration) *Reporter {
	return &Reporter{queue: q, blacklist: bl, registry: reg, mergeState: ms, logger: logger, localLog: localLog, interval: interval}
}

// RegisterCallback installs the third, optional delivery destination. Safe to call
// before or after Run starts; nil clears it.
func (r *Reporter) RegisterCallback(cb pubsub.StatusPublisher) {
	r.callback = cb
}

// Snapshot builds the current textual status report without waiting for the
// next tick, so callers (and tests) can pull a report on demand.
func (r *Reporter) Snapshot() string {
	var b strings.Builder

	records := r.queue.Snapshot()
	fmt.Fprintf(&b, "queue: %d record(s)\n", len(records))
	for _, rec := range records {
		fmt.Fprintf(&b, "  robot=%s map_hash=%s stage=%s command=%q mission=%s error=%v\n",
			rec.RobotName, rec.MapHash, rec.Stage, rec.CurrentCommand, rec.MissionID, rec.HasError)
	}

	ms := r.mergeState.Snapshot()
	fmt.Fprintf(&b, "merge_loop: busy=%v current_command=%q last_duration_s=%.3f\n",
		ms.Busy, ms.CurrentCommand, ms.LastIterationDuration)

	ids := r.blacklist.MissionIDs()
	fmt.Fprintf(&b, "blacklist: %d mission(s)\n", len(ids))
	for _, id := range ids {
		reason, _ := r.blacklist.Reason(id)
		fmt.Fprintf(&b, "  mission=%s reason=%q\n", id, reason)
	}

	robots := r.registry.RobotNames()
	fmt.Fprintf(&b, "robots: %d\n", len(robots))
	for _, name := range robots {
		fmt.Fprintf(&b, "  robot=%s missions=%v\n", name, r.registry.MissionChain(name))
	}

	return b.String()
}

// publish delivers one snapshot to the local logger, the rotating local log
// file, and, if registered, the callback.
func (r *Reporter) publish() {
	text := r.Snapshot()
	r.logger.Info(text)
	if r.localLog != nil {
		if _, err := io.WriteString(r.localLog, text); err != nil {
			r.logger.Errorw("failed to write status snapshot to local log file", "error", err)
		}
	}
	if r.callback != nil {
		r.callback.Publish(text)
	}
}

// Run blocks, publishing a snapshot every interval until ctx is cancelled.
// Intended to be launched via utils.PanicCapturingGo by the caller so a
// formatting bug here can never take down the merge loop or ingest pool.
func (r *Reporter) Run(ctx context.Context) {
	for utils.SelectContextOrWait(ctx, r.interval) {
		r.publish()
	}
}
