// Package queue holds the ordered backlog of submaps in flight, from
// notification through merge. It owns only ordering and the duplicate-hash
// check; per-record stage tracking lives on each *submap.Process itself.
package queue

import (
	"sync"

	"github.com/136709865/maplab/submap"
)

// Queue is the submap processing backlog. FIFO over submaps of the same
// robot is mandatory; across robots, order is simply "first notification
// wins", so a single spine with a single mutex is enough (§4.3 step 2 relies
// on being able to scan it head-to-tail under one lock).
type Queue struct {
	mu      sync.Mutex
	records []*submap.Process
	hashes  map[string]struct{}
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{hashes: make(map[string]struct{})}
}

// Enqueue appends p to the tail unless a record with the same MapHash is
// already present, in which case it reports a duplicate and does not enqueue.
func (q *Queue) Enqueue(p *submap.Process) (duplicate bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.hashes[p.MapHash]; ok {
		return true
	}
	q.hashes[p.MapHash] = struct{}{}
	q.records = append(q.records, p)
	return false
}

// Remove drops p from the backlog, e.g. when its load fails or its mission
// turns out to be blacklisted (§4.2 steps a, b).
func (q *Queue) Remove(p *submap.Process) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.records {
		if r == p {
			q.records = append(q.records[:i], q.records[i+1:]...)
			delete(q.hashes, p.MapHash)
			return
		}
	}
}

// Len returns the current backlog length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Snapshot returns every record's status snapshot in queue order, for the
// status reporter (§4.6).
func (q *Queue) Snapshot() []submap.Snapshot {
	q.mu.Lock()
	records := make([]*submap.Process, len(q.records))
	copy(records, q.records)
	q.mu.Unlock()

	out := make([]submap.Snapshot, len(records))
	for i, r := range records {
		out[i] = r.Snapshot()
	}
	return out
}

// IsBlacklisted abstracts the blacklist membership check the drain needs
// without importing the blacklist package, avoiding an import cycle (the
// blacklist package has no reason to know about the queue).
type IsBlacklisted func(missionID string) bool

// DrainMergeablePrefix scans from the head and pops the maximal prefix of
// processed records, returning them split into mergeable (processed, not
// blacklisted) and discarded (processed, blacklisted) (§4.3 steps 1-2). Only
// the first non-processed record stops the scan — preserving per-robot FIFO
// through a slow submap; a processed-but-blacklisted record is popped and
// reported as discarded so the caller can release its loaded map, and the
// scan continues past it, since leaving it at the head would otherwise stall
// every record behind it forever.
func (q *Queue) DrainMergeablePrefix(blacklisted IsBlacklisted) (mergeable, discarded []*submap.Process) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := 0
	for ; i < len(q.records); i++ {
		r := q.records[i]
		if !r.IsProcessed() {
			break
		}
		missionID, assigned := r.MissionID()
		delete(q.hashes, r.MapHash)
		if assigned && blacklisted(missionID) {
			discarded = append(discarded, r)
			continue
		}
		mergeable = append(mergeable, r)
	}
	q.records = q.records[i:]
	return mergeable, discarded
}
