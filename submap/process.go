// Package submap defines the in-flight record tracked for every submap a
// robot hands to the server, from first notification through merge.
package submap

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Stage is the monotonic pipeline position of a Process record.
type Stage int

const (
	// StageNotLoaded is the initial stage: enqueued, not yet read from disk.
	StageNotLoaded Stage = iota
	// StageLoaded means the submap file has been read into the Map Store.
	StageLoaded
	// StageProcessed means all per-submap commands have run (successfully or not).
	StageProcessed
	// StageMerged is terminal; the record is removed from the queue once reached.
	StageMerged
)

func (s Stage) String() string {
	switch s {
	case StageNotLoaded:
		return "not_loaded"
	case StageLoaded:
		return "loaded"
	case StageProcessed:
		return "processed"
	case StageMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// Process is one submap in flight. Its stage flags are monotonic: once set,
// never cleared. Each Process owns its own mutex so ingest-pool workers can
// update a single record's fields without taking the queue-wide lock that the
// merge loop uses to scan the backlog (Design Note, §9).
type Process struct {
	RobotName string
	Path      string
	MapHash   string

	mu               sync.Mutex
	mapKey           string
	stage            Stage
	lastCommand      string
	processError     error
	missionID        string
	missionIDAssigned bool
}

// New creates a Process in StageNotLoaded for the given robot and path.
// MapHash is derived from Path so duplicate notifications of the same file
// collide on the same hash regardless of when they arrive (§4.2 step 1).
func New(robotName, path string) *Process {
	return &Process{
		RobotName: robotName,
		Path:      path,
		MapHash:   HashPath(path),
		stage:     StageNotLoaded,
	}
}

// HashPath derives the stable map_hash used for dedup, logs, and per-submap
// command tagging. It is a content-free hash of the path string: two
// notifications for the same path always collide, which is exactly the
// duplicate-detection behavior §4.2 step 1 requires.
func HashPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// Stage returns the current pipeline stage.
func (p *Process) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// IsProcessed reports whether per-submap commands have finished (successfully or not).
func (p *Process) IsProcessed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage >= StageProcessed
}

// MapKey returns the key this submap was loaded under in the Map Store.
// Empty until SetLoaded is called.
func (p *Process) MapKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mapKey
}

// MissionID returns the mission id read from the loaded submap, and whether
// it has been assigned yet (it is read after loading, before processing).
func (p *Process) MissionID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.missionID, p.missionIDAssigned
}

// SetLoaded assigns the map store key and advances the stage to StageLoaded.
// It is a programmer error to call this more than once.
func (p *Process) SetLoaded(mapKey, missionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mapKey = mapKey
	p.missionID = missionID
	p.missionIDAssigned = true
	if p.stage < StageLoaded {
		p.stage = StageLoaded
	}
}

// SetCurrentCommand records the name of the submap command presently running,
// for the status reporter (§4.6).
func (p *Process) SetCurrentCommand(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCommand = name
}

// CurrentCommand returns the most recently started (or completed) submap command name.
func (p *Process) CurrentCommand() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCommand
}

// SetProcessed advances the stage to StageProcessed, recording procErr (nil on
// success) for status reporting. §4.2d: the record is still merged unless the
// caller additionally blacklists its mission.
func (p *Process) SetProcessed(procErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processError = procErr
	if p.stage < StageProcessed {
		p.stage = StageProcessed
	}
}

// ProcessError returns the error recorded by SetProcessed, if any.
func (p *Process) ProcessError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processError
}

// SetMerged advances the stage to its terminal value.
func (p *Process) SetMerged() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = StageMerged
}

// Snapshot is an immutable copy of a Process's fields, used by the status
// reporter so it never has to hold a Process's mutex while formatting text.
type Snapshot struct {
	RobotName      string
	MapHash        string
	Stage          Stage
	CurrentCommand string
	MissionID      string
	HasError       bool
}

// Snapshot captures the current field values under the record's own mutex.
func (p *Process) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		RobotName:      p.RobotName,
		MapHash:        p.MapHash,
		Stage:          p.stage,
		CurrentCommand: p.lastCommand,
		MissionID:      p.missionID,
		HasError:       p.processError != nil,
	}
}
