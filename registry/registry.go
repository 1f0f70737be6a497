// Package registry tracks, per robot, the chain of mission ids it has
// contributed and the latest unoptimized odometry anchors received for it,
// which the merge loop needs to compute pose corrections (§4.3 step 4).
package registry

import (
	"sync"

	"github.com/136709865/maplab/spatial"
)

// Anchor is one (timestamp, pose) sample recorded at submap-ingest time,
// before any global optimization. It holds a single pose; the registry itself
// stores T_M_B and T_G_M samples in separate per-robot maps keyed by timestamp.
type Anchor struct {
	TimestampNs int64
	Pose        spatial.Pose
}

type robotState struct {
	// missionIDs is ordered most-recent-first; front() is "this robot's
	// current mission" for lookup and correction purposes.
	missionIDs []string
	tmbInput   map[int64]spatial.Pose // T_M_B_submaps_input, keyed by timestamp.
	tgmInput   map[int64]spatial.Pose // T_G_M_submaps_input, keyed by timestamp.
	lastSeenNs int64                  // nowNs of the latest RecordAnchor; pruning compares anchor timestamps, not this.
}

// Registry is the Robot Registry: per-robot mission chains plus the reverse
// mission->robot index the deletion protocol needs.
type Registry struct {
	mu           sync.Mutex
	robots       map[string]*robotState
	missionOwner map[string]string // mission id -> robot name.
	ttlNs        int64
}

// New returns an empty Registry. ttlNs is the TTL (§3 robot_registry_ttl_s,
// converted to nanoseconds by the caller) after which old anchor entries may
// be pruned; 0 disables pruning.
func New(ttlNs int64) *Registry {
	return &Registry{
		robots:       make(map[string]*robotState),
		missionOwner: make(map[string]string),
		ttlNs:        ttlNs,
	}
}

func (r *Registry) stateFor(robotName string) *robotState {
	st, ok := r.robots[robotName]
	if !ok {
		st = &robotState{
			tmbInput: make(map[int64]spatial.Pose),
			tgmInput: make(map[int64]spatial.Pose),
		}
		r.robots[robotName] = st
	}
	return st
}

// ObserveMission records that robotName has produced missionID. If it
// differs from the robot's current front mission, it is prepended and the
// reverse index updated (§4.2 step b).
func (r *Registry) ObserveMission(robotName, missionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stateFor(robotName)
	if len(st.missionIDs) > 0 && st.missionIDs[0] == missionID {
		return
	}
	st.missionIDs = append([]string{missionID}, st.missionIDs...)
	r.missionOwner[missionID] = robotName
}

// RecordAnchor inserts the latest unoptimized body pose sample for a robot
// (§4.2 step c), keyed by the vertex timestamp it was extracted from.
func (r *Registry) RecordAnchor(robotName string, timestampNs int64, tmb, tgm spatial.Pose, nowNs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stateFor(robotName)
	st.tmbInput[timestampNs] = tmb
	st.tgmInput[timestampNs] = tgm
	st.lastSeenNs = nowNs
	r.pruneLocked(st, nowNs)
}

func (r *Registry) pruneLocked(st *robotState, nowNs int64) {
	if r.ttlNs <= 0 {
		return
	}
	cutoff := nowNs - r.ttlNs
	for ts := range st.tmbInput {
		if ts < cutoff {
			delete(st.tmbInput, ts)
			delete(st.tgmInput, ts)
		}
	}
}

// CurrentMission returns the robot's most recently observed mission id.
func (r *Registry) CurrentMission(robotName string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.robots[robotName]
	if !ok || len(st.missionIDs) == 0 {
		return "", false
	}
	return st.missionIDs[0], true
}

// MissionChain returns a robot's mission ids, most-recent-first.
func (r *Registry) MissionChain(robotName string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.robots[robotName]
	if !ok {
		return nil
	}
	out := make([]string, len(st.missionIDs))
	copy(out, st.missionIDs)
	return out
}

// RobotNames returns every robot with at least one recorded mission.
func (r *Registry) RobotNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.robots))
	for name := range r.robots {
		out = append(out, name)
	}
	return out
}

// Owner returns the robot that produced missionID, per the reverse index.
func (r *Registry) Owner(missionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.missionOwner[missionID]
	return name, ok
}

// AllMissionIDs returns every mission id known to the registry, across all
// robots, for deletion-prefix resolution (§4.4: "in Robot Registry ∪
// merged-map contents").
func (r *Registry) AllMissionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.missionOwner))
	for id := range r.missionOwner {
		out = append(out, id)
	}
	return out
}

// AnchorAt returns the T_M_B and T_G_M anchors recorded for robotName at
// exactly timestampNs, used by the merge loop to look up t* (§4.3 step 4).
func (r *Registry) AnchorAt(robotName string, timestampNs int64) (tmb, tgm spatial.Pose, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, exists := r.robots[robotName]
	if !exists {
		return spatial.Pose{}, spatial.Pose{}, false
	}
	tmb, ok1 := st.tmbInput[timestampNs]
	tgm, ok2 := st.tgmInput[timestampNs]
	if !ok1 || !ok2 {
		return spatial.Pose{}, spatial.Pose{}, false
	}
	return tmb, tgm, true
}

// AnchorTimestamps returns every timestamp with a recorded anchor for
// robotName, in map-iteration (unordered) order, so the merge loop can
// intersect it against the merged map's vertex timestamps to find t*. Callers
// treat the result as a set, not a sequence, so the lack of ordering is
// harmless.
func (r *Registry) AnchorTimestamps(robotName string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.robots[robotName]
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(st.tmbInput))
	for ts := range st.tmbInput {
		out = append(out, ts)
	}
	return out
}

// RemoveMission drops missionID from the reverse index and from whatever
// robot's chain contains it, per the blacklist deletion protocol (§4.3 step 1:
// "clear per-blacklisted-mission entries from the Robot Registry").
func (r *Registry) RemoveMission(missionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.missionOwner[missionID]
	if !ok {
		return
	}
	delete(r.missionOwner, missionID)
	st, ok := r.robots[owner]
	if !ok {
		return
	}
	for i, id := range st.missionIDs {
		if id == missionID {
			st.missionIDs = append(st.missionIDs[:i], st.missionIDs[i+1:]...)
			break
		}
	}
}
