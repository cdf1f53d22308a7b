package engine

import (
	"sort"
	"sync"
)

// VisitedSet tracks channel IDs already admitted to a pipeline this run
// (and, when carried across runs by the caller, across runs). Concurrent
// pipelines race to admit the same neighbor; Add arbitrates.
type VisitedSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{ids: make(map[string]struct{})}
}

// NewVisitedSetFrom pre-seeds a set, e.g. from a persisted snapshot.
func NewVisitedSetFrom(ids []string) *VisitedSet {
	v := NewVisitedSet()
	for _, id := range ids {
		v.ids[id] = struct{}{}
	}
	return v
}

// Add marks id visited. Returns true when id was not yet in the set,
// i.e. the caller won the admission race.
func (v *VisitedSet) Add(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.ids[id]; ok {
		return false
	}
	v.ids[id] = struct{}{}
	return true
}

// Has reports whether id has been visited.
func (v *VisitedSet) Has(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.ids[id]
	return ok
}

// Len returns the set size.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.ids)
}

// Snapshot returns the visited IDs sorted, for persistence by the caller.
func (v *VisitedSet) Snapshot() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.ids))
	for id := range v.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
