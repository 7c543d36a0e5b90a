package cluster

import (
	"sync"

	"github.com/xDarkicex/streamcluster/internal/memory"
)

// VisitorIndex holds, per cluster id, the append-only list of frame indices
// whose probe touched that cluster's anchor (spec.md §3/§4.4). It backs
// gprob reweighting: a cluster's recent visitors tell the engine how earlier,
// similar frames behaved near that anchor.
type VisitorIndex struct {
	mu   sync.RWMutex
	byID map[int][]int
}

// NewVisitorIndex returns an empty index sized with maxClustHint as a
// capacity hint for the backing map.
func NewVisitorIndex(maxClustHint int) *VisitorIndex {
	return &VisitorIndex{byID: make(map[int][]int, maxClustHint)}
}

// Record appends frame index k to cluster id's visitor list.
func (v *VisitorIndex) Record(id, k int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.byID[id] = append(v.byID[id], k)
}

// Suffix returns the newest suffix of cluster id's visitor list, capped at
// the given length and excluding the given frame index (typically the frame
// currently being assigned, which may already have been recorded as a
// visitor of id by the time Suffix is called). The returned slice is a copy
// and safe for the caller to range over without holding the index lock.
func (v *VisitorIndex) Suffix(id, cap_, exclude int) []int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	list := v.byID[id]

	out := make([]int, 0, cap_)
	for i := len(list) - 1; i >= 0 && len(out) < cap_; i-- {
		if list[i] == exclude {
			continue
		}
		out = append(out, list[i])
	}
	return out
}

// Concat appends src's visitor list onto dst's, used by the merge overflow
// strategy (spec.md §4.6) when folding a retired cluster into a survivor.
func (v *VisitorIndex) Concat(dst, src int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.byID[dst] = append(v.byID[dst], v.byID[src]...)
	v.byID[src] = nil
}

// Len reports the raw (uncapped) visitor count for a cluster.
func (v *VisitorIndex) Len(id int) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.byID[id])
}

// Size implements memory.Cache.
func (v *VisitorIndex) Size() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var n int64
	for _, list := range v.byID {
		n += int64(len(list)) * 8
	}
	return n
}

// Evict implements memory.Cache. Visitor lists are append-only and grow
// without bound (Suffix caps only what a caller reads), but there is nothing
// safe to evict without breaking gprob's frame-index lookups; Evict is a
// no-op.
func (v *VisitorIndex) Evict(int64) int64 { return 0 }

// Clear implements memory.Cache.
func (v *VisitorIndex) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.byID = make(map[int][]int)
}

// Name implements memory.Cache.
func (v *VisitorIndex) Name() string { return "cluster.visitor_index" }

var _ memory.Cache = (*VisitorIndex)(nil)

// Fmatch is the piecewise-linear gprob reweight function, ported from
// original_source/cluster_core.c's fmatch: it returns a at dr=0, interpolates
// linearly down to b at dr=2, and 0 beyond dr=2.
func Fmatch(dr, a, b float64) float64 {
	if dr > 2.0 {
		return 0
	}
	v := a - (a-b)*dr/2.0
	if v < 0 {
		return 0
	}
	return v
}

// GprobTable holds the current frame's per-cluster gprob multiplier. It
// starts every frame at 1.0 for every active cluster (spec.md §4.1 step 3)
// and is updated in place by ReweightGprob during the probe loop.
type GprobTable struct {
	values []float64
}

// NewGprobTable returns a table of n clusters, each initialized to 1.0.
func NewGprobTable(n int) *GprobTable {
	g := &GprobTable{values: make([]float64, n)}
	g.Reset(n)
	return g
}

// Reset grows the table to n entries if needed and sets every entry to 1.0.
func (g *GprobTable) Reset(n int) {
	if cap(g.values) < n {
		g.values = make([]float64, n)
	}
	g.values = g.values[:n]
	for i := range g.values {
		g.values[i] = 1.0
	}
}

// Get returns cluster id's current gprob multiplier.
func (g *GprobTable) Get(id int) float64 { return g.values[id] }

// Multiply applies a multiplicative reweight to cluster id's gprob.
func (g *GprobTable) Multiply(id int, factor float64) { g.values[id] *= factor }

// ReweightGprob implements spec.md §4.1.e: for each earlier visitor v in the
// capped suffix of probed cluster j's visitor list (excluding the current
// frame k), if v's recorded assignment ell is still active, find v's probe
// distance to j (dJ, guaranteed to exist since v probed j) and fold
// Fmatch(|dfc-dJ|/R, a, b) into gprob(ell).
func ReweightGprob(
	visitors *VisitorIndex,
	records *FrameRecordLog,
	store *Store,
	gprob *GprobTable,
	j, k int,
	dfc, radius, fmatchA, fmatchB float64,
	maxVisitors int,
	isActive func(id int) bool,
) {
	for _, v := range visitors.Suffix(j, maxVisitors, k) {
		rec, ok := records.Get(v)
		if !ok {
			continue
		}
		ell := rec.Assignment
		ell = store.Resolve(ell)
		if ell < 0 || !isActive(ell) {
			continue
		}
		dV, ok := rec.ProbeDistance(j)
		if !ok {
			continue
		}
		dr := abs(dfc-dV) / radius
		gprob.Multiply(ell, Fmatch(dr, fmatchA, fmatchB))
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
