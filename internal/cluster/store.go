// Package cluster implements the clustering core: the cluster store, the
// anchor-to-anchor distance cache, the visitor/gprob subsystem, the frame
// record log, the transition matrix and pattern prediction, the max-cluster
// overflow strategies, the auto-radius scanner, and the assignment engine
// that ties them together.
package cluster

// Frame is one unit of clustering input: a stable index and a dense
// real-valued buffer. Frames are immutable once read; a Frame that becomes a
// cluster's anchor is retained for the lifetime of that cluster, otherwise it
// is released at the end of its assignment step.
type Frame struct {
	Index int
	Data  []float64
}

// Cluster is a named equivalence class represented by its first-seen frame
// (the anchor) and a non-normalized prior. Anchors never move; an id is
// stable for the cluster's lifetime even if the cluster is later merged away
// by an overflow strategy.
type Cluster struct {
	ID       int
	Anchor   Frame
	Prior    float64
	tomb     bool // retired by discard/merge; inactive for scoring but id stays reserved
	mergedTo int  // when tomb is set via merge, the surviving cluster id; -1 otherwise
}

// Tombstoned reports whether this cluster has been retired by an overflow
// strategy and should be skipped by scoring and pruning.
func (c *Cluster) Tombstoned() bool { return c.tomb }

// Store is the grow-only ordered sequence of clusters described by spec.md
// §3: a cluster's id equals its insertion index and is never reassigned.
// Discard and merge retire entries in place (Store.Retire/Store.MergeInto)
// rather than removing or reindexing them, so that ids referenced from
// visitor lists, frame records, and the transition matrix remain valid.
type Store struct {
	clusters []*Cluster
}

// NewStore returns an empty cluster store.
func NewStore() *Store {
	return &Store{clusters: make([]*Cluster, 0, 16)}
}

// Add appends a new cluster anchored on f with the given initial prior and
// returns it. The returned Cluster's ID is len(s.clusters) before the append.
func (s *Store) Add(f Frame, prior float64) *Cluster {
	c := &Cluster{ID: len(s.clusters), Anchor: f, Prior: prior, mergedTo: -1}
	s.clusters = append(s.clusters, c)
	return c
}

// Len returns the number of cluster slots ever allocated, including
// tombstoned ones. This is N_cl in spec.md terms.
func (s *Store) Len() int { return len(s.clusters) }

// Get returns the cluster with the given id, or nil if out of range.
func (s *Store) Get(id int) *Cluster {
	if id < 0 || id >= len(s.clusters) {
		return nil
	}
	return s.clusters[id]
}

// Active returns the ids of all non-tombstoned clusters, in id order.
func (s *Store) Active() []int {
	ids := make([]int, 0, len(s.clusters))
	for _, c := range s.clusters {
		if !c.tomb {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// ActiveCount returns the number of non-tombstoned clusters.
func (s *Store) ActiveCount() int {
	n := 0
	for _, c := range s.clusters {
		if !c.tomb {
			n++
		}
	}
	return n
}

// Retire tombstones the cluster with the given id (used by the discard
// overflow strategy). It is a no-op if the cluster is already tombstoned.
func (s *Store) Retire(id int) {
	c := s.Get(id)
	if c == nil || c.tomb {
		return
	}
	c.tomb = true
	c.mergedTo = -1
}

// MergeInto tombstones the cluster at id j, folds its prior into cluster i,
// and records i as j's surviving cluster (used by the merge overflow
// strategy, spec.md §4.6). The caller is responsible for concatenating
// visitor lists and summing transition-matrix rows/columns, since the Store
// has no visibility into those structures.
func (s *Store) MergeInto(i, j int) {
	ci, cj := s.Get(i), s.Get(j)
	if ci == nil || cj == nil || i == j {
		return
	}
	ci.Prior += cj.Prior
	cj.tomb = true
	cj.mergedTo = i
}

// Resolve follows merge chains starting from id and returns the surviving,
// non-tombstoned cluster id. Discarded (non-merged) tombstones have no
// surviving id and Resolve returns -1 for them.
func (s *Store) Resolve(id int) int {
	for {
		c := s.Get(id)
		if c == nil {
			return -1
		}
		if !c.tomb {
			return id
		}
		if c.mergedTo < 0 {
			return -1
		}
		id = c.mergedTo
	}
}
