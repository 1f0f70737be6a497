package mapstore

import (
	"sync"

	"github.com/136709865/maplab/errs"
)

// MergedMapKey is the fixed key under which the single growing merged map lives.
const MergedMapKey = "merged_map"

// entry pairs a map's data with the reader-writer lock that gives the merge
// loop exclusive write access while letting MapLookup (and other readers)
// proceed concurrently with each other.
type entry struct {
	mu   sync.RWMutex
	data *MapData
}

// Store owns every loaded map by string key. Submaps get a fresh key derived
// from their map_hash on load; the merged map always lives at MergedMapKey.
// Single-writer-per-key is enforced by taking entry.mu for mutation; readers
// take an RLock via ReadHandle so MapLookup never observes a merge in progress
// (§5 ordering guarantees).
type Store struct {
	mu      sync.Mutex // guards the key->entry map itself, not the entries' contents.
	entries map[string]*entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Put installs data under key, creating or replacing the entry. Used when a
// submap finishes loading and when the merged map is (re)created.
func (s *Store) Put(key string, data *MapData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{data: data}
}

// Delete removes a key entirely, e.g. after a submap's contents have been
// transferred into the merged map, or the merged map has become empty.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Has reports whether key currently has an entry.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

func (s *Store) get(key string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

// ReadHandle is a held read lock on one map, released by Close. Multiple
// ReadHandles may coexist; none may coexist with a WriteHandle on the same key.
type ReadHandle struct {
	e    *entry
	data *MapData
}

// Data returns the locked map's contents. Valid until Close.
func (h *ReadHandle) Data() *MapData { return h.data }

// Close releases the read lock.
func (h *ReadHandle) Close() { h.e.mu.RUnlock() }

// AcquireRead takes a read lock on key's map. Returns errs.NotFound if the key
// doesn't exist (the caller, typically MapLookup, should treat this as
// "mission unknown" rather than blocking).
func (s *Store) AcquireRead(key string) (*ReadHandle, error) {
	e, ok := s.get(key)
	if !ok {
		return nil, errs.New(errs.NotFound, "no map loaded under key %q", key)
	}
	e.mu.RLock()
	return &ReadHandle{e: e, data: e.data}, nil
}

// WriteHandle is a held write lock on one map, released by Close. Exactly one
// WriteHandle may be held on a key at a time, and it excludes all readers —
// this is what makes the merge loop's mutations atomic from MapLookup's
// perspective (§5: "MapLookup observes either the pre- or post-iteration
// merged map, never an intermediate state").
type WriteHandle struct {
	e    *entry
	data *MapData
}

// Data returns the locked map's contents. Valid until Close.
func (h *WriteHandle) Data() *MapData { return h.data }

// Close releases the write lock.
func (h *WriteHandle) Close() { h.e.mu.Unlock() }

// AcquireWrite takes (creating if necessary) a write lock on key's map. The
// merge loop uses create=true so "create the merged map if absent" (§4.3 step
// 2) happens under the same lock as the append that needs it.
func (s *Store) AcquireWrite(key string, create bool) (*WriteHandle, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		if !create {
			s.mu.Unlock()
			return nil, errs.New(errs.NotFound, "no map loaded under key %q", key)
		}
		e = &entry{data: NewMapData()}
		s.entries[key] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	return &WriteHandle{e: e, data: e.data}, nil
}
