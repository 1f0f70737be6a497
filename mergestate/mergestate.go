// Package mergestate holds the merge loop's externally-visible status
// fields, factored out of the merge package so the status reporter can read
// them without importing the merge loop itself (§5: current_merge_command
// and merging_thread_busy are guarded by their own small mutex).
package mergestate

import "sync"

// State is the merge loop's live status, safe for concurrent read by the
// status reporter and write by the merge loop goroutine.
type State struct {
	mu                    sync.Mutex
	busy                  bool
	currentCommand        string
	lastIterationDuration float64 // seconds
}

// New returns an idle State.
func New() *State {
	return &State{}
}

// SetBusy flips the busy flag, true for the duration of a merge iteration's
// append/global-command/correction work (§4.3).
func (s *State) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
	if !busy {
		s.currentCommand = ""
	}
}

// SetCurrentCommand records the name of the global command presently running.
func (s *State) SetCurrentCommand(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentCommand = name
}

// SetLastIterationDuration records how long the most recently completed
// iteration took, for status reporting (duration_last_merging_loop_s).
func (s *State) SetLastIterationDuration(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIterationDuration = seconds
}

// Snapshot is an immutable copy of the state's fields.
type Snapshot struct {
	Busy                  bool
	CurrentCommand        string
	LastIterationDuration float64
}

// Snapshot captures the current field values.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Busy:                  s.busy,
		CurrentCommand:        s.currentCommand,
		LastIterationDuration: s.lastIterationDuration,
	}
}
