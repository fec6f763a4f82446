package volume

import (
	"fmt"
	"iter"
	"sync"
)

// ============================================================================
// Graph - Shared Listing State
// ============================================================================

// Graph holds a store's volume and diff listing and answers the read-side
// Store methods. Store implementations embed a Graph and call Rebuild at
// the end of every successful Refresh.
//
// Rebuild swaps the whole listing under a write lock, so concurrent
// readers always see one complete listing, never a mix of two. Queries
// never block on the backend.
type Graph struct {
	mu    sync.RWMutex
	byID  map[ID]Volume
	vols  []Volume
	diffs []Diff
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{byID: make(map[ID]Volume)}
}

// Rebuild atomically replaces the listing. The inputs are copied, so the
// caller may keep mutating its slices afterwards.
func (g *Graph) Rebuild(vols []Volume, diffs []Diff) {
	byID := make(map[ID]Volume, len(vols))
	for _, v := range vols {
		byID[v.ID] = v
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.byID = byID
	g.vols = append([]Volume(nil), vols...)
	g.diffs = append([]Diff(nil), diffs...)
}

// Volumes returns every known volume in listing order.
func (g *Graph) Volumes() []Volume {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Volume(nil), g.vols...)
}

// Volume returns the volume with the given ID, or ErrNotFound.
func (g *Graph) Volume(id ID) (Volume, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.byID[id]
	if !ok {
		return Volume{}, fmt.Errorf("volume %s: %w", id, ErrNotFound)
	}
	return v, nil
}

// Edges yields the diffs that start at from, in listing order. Duplicate
// (From, To) pairs are all yielded. The sequence is restartable and walks
// the listing that was current when Edges was called, even if a Rebuild
// lands mid-iteration.
func (g *Graph) Edges(from ID) iter.Seq[Diff] {
	diffs := g.snapshot()
	return func(yield func(Diff) bool) {
		for _, d := range diffs {
			if d.From != from {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// Diffs yields every diff in the graph in listing order.
func (g *Graph) Diffs() iter.Seq[Diff] {
	diffs := g.snapshot()
	return func(yield func(Diff) bool) {
		for _, d := range diffs {
			if !yield(d) {
				return
			}
		}
	}
}

// HasEdge reports whether at least one diff produces to from from.
func (g *Graph) HasEdge(to, from ID) bool {
	for _, d := range g.snapshot() {
		if d.To == to && d.From == from {
			return true
		}
	}
	return false
}

// snapshot returns the current diff slice. Rebuild replaces the slice
// wholesale and never mutates it in place, so holding a reference outside
// the lock is safe.
func (g *Graph) snapshot() []Diff {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.diffs
}
