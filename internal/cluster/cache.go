package cluster

import (
	"sync"

	"github.com/xDarkicex/streamcluster/internal/geom"
	"github.com/xDarkicex/streamcluster/internal/memory"
)

// Missing is the sentinel value Peek reports in place of a distance that has
// not yet been computed. It is distinguishable from any valid distance,
// which is always >= 0.
const Missing = -1.0

type cellKey struct{ i, j int }

func pairKey(i, j int) cellKey {
	if i > j {
		i, j = j, i
	}
	return cellKey{i, j}
}

// DistanceCache is the symmetric anchor-to-anchor distance cache of spec.md
// §3/§4.3, grounded on cluster_defs.h's dccarray. A C-style flat
// `maxcl*maxcl` array cannot be used here: the merge overflow strategy
// (spec.md §4.6) retires a cluster id without reusing its slot, so the
// highest live id is unbounded relative to any fixed N_max. A sparse map
// keyed by the unordered {i,j} pair gives the same O(1) symmetric lookup
// without that bound, at the cost of the sentinel value living in Peek's
// second return rather than in the backing storage itself.
type DistanceCache struct {
	mu    sync.RWMutex
	cells map[cellKey]float64
	store *Store

	calls int64 // distance kernel invocations attributable to this cache
}

// NewDistanceCache returns an empty cache backed by store for anchor lookups
// on miss.
func NewDistanceCache(maxClustHint int, store *Store) *DistanceCache {
	return &DistanceCache{cells: make(map[cellKey]float64, maxClustHint*4), store: store}
}

// Get returns the cached distance between clusters i and j, computing and
// storing it symmetrically on first access. i==j always returns 0 without
// touching the kernel.
func (c *DistanceCache) Get(i, j int) float64 {
	if i == j {
		return 0
	}
	key := pairKey(i, j)

	c.mu.RLock()
	v, ok := c.cells[key]
	c.mu.RUnlock()
	if ok {
		return v
	}

	ci, cj := c.store.Get(i), c.store.Get(j)
	d := geom.Distance(ci.Anchor.Data, cj.Anchor.Data)

	c.mu.Lock()
	c.cells[key] = d
	c.calls++
	c.mu.Unlock()
	return d
}

// Peek returns the cached distance without computing it on miss, and
// whether it was present.
func (c *DistanceCache) Peek(i, j int) (float64, bool) {
	if i == j {
		return 0, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.cells[pairKey(i, j)]
	return v, ok
}

// Populate fills cluster n's distances against every existing cluster id in
// [0, n), by direct computation — the "free" distances spec.md §4.3 says
// must be reused rather than recomputed once a new cluster is created.
func (c *DistanceCache) Populate(n int) {
	for i := 0; i < n; i++ {
		c.Get(n, i)
	}
}

// Cells returns every populated (i, j, distance) triple with i < j, used by
// the DCC text sink (spec.md §6).
func (c *DistanceCache) Cells() [][3]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][3]float64, 0, len(c.cells))
	for k, d := range c.cells {
		out = append(out, [3]float64{float64(k.i), float64(k.j), d})
	}
	return out
}

// FrameDistanceCalls returns the number of distance-kernel invocations this
// cache has performed, used by the te4/te5 equivalence property of spec.md
// §8 (framedist_calls must be monotonically non-increasing as pruning
// strength increases).
func (c *DistanceCache) FrameDistanceCalls() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls
}

// Size implements memory.Cache.
func (c *DistanceCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.cells)) * 24 // two ints + a float64 per entry, roughly
}

// Evict implements memory.Cache. Cache entries are immutable once written
// (anchors never move), so there is nothing to evict outside of the
// discard/merge overflow strategies, which retire whole clusters rather
// than individual cells.
func (c *DistanceCache) Evict(int64) int64 { return 0 }

// Clear implements memory.Cache.
func (c *DistanceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells = make(map[cellKey]float64)
	c.calls = 0
}

// Name implements memory.Cache.
func (c *DistanceCache) Name() string { return "cluster.distance_cache" }

var _ memory.Cache = (*DistanceCache)(nil)
