// Package fake provides an in-memory Command Runner for tests, standing in
// for the external map-processing binary the production PexecRunner shells
// out to.
package fake

import (
	"context"
	"sync"
)

// Effect is invoked synchronously by Run for every matching command, letting
// a test simulate a command's real effect on the store (e.g. mutating poses
// via mapstore.MapData.ApplyGlobalOptimization) without a real subprocess.
type Effect func(mapKey string) error

// Runner records every call it receives and lets tests register effects and
// forced failures per command name.
type Runner struct {
	mu       sync.Mutex
	calls    []Call
	effects  map[string]Effect
	failWith map[string]error
}

// Call is one recorded invocation.
type Call struct {
	MapKey      string
	CommandText string
}

// New returns an empty Runner.
func New() *Runner {
	return &Runner{
		effects:  make(map[string]Effect),
		failWith: make(map[string]error),
	}
}

// OnCommand registers an effect to run whenever commandText is executed.
func (r *Runner) OnCommand(commandText string, effect Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects[commandText] = effect
}

// FailCommand makes every future invocation of commandText return err.
func (r *Runner) FailCommand(commandText string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith[commandText] = err
}

// Run implements command.Runner.
func (r *Runner) Run(_ context.Context, mapKey, commandText string) error {
	r.mu.Lock()
	r.calls = append(r.calls, Call{MapKey: mapKey, CommandText: commandText})
	failErr, shouldFail := r.failWith[commandText]
	effect, hasEffect := r.effects[commandText]
	r.mu.Unlock()

	if shouldFail {
		return failErr
	}
	if hasEffect {
		return effect(mapKey)
	}
	return nil
}

// Calls returns every invocation recorded so far, in order.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
