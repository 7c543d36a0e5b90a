package cluster

import "sort"

// OverflowStrategy selects the behavior when the engine would otherwise
// create a cluster beyond N_max (spec.md §4.6), ported from
// cluster_defs.h's MaxClustStrategy.
type OverflowStrategy int

const (
	// OverflowStop halts new-cluster creation: the current frame is left
	// unassigned and the caller should terminate the run gracefully,
	// preserving every assignment made so far.
	OverflowStop OverflowStrategy = iota
	// OverflowDiscard retires the lowest-prior discard-fraction of
	// clusters to free capacity for the current frame.
	OverflowDiscard
	// OverflowMerge folds the closest cached cluster pair into one,
	// freeing a slot for the current frame.
	OverflowMerge
)

func (s OverflowStrategy) String() string {
	switch s {
	case OverflowStop:
		return "stop"
	case OverflowDiscard:
		return "discard"
	case OverflowMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// Overflow bundles the structures an overflow strategy needs to mutate
// together when it retires or merges clusters.
type Overflow struct {
	Store      *Store
	Visitors   *VisitorIndex
	Transition *TransitionMatrix
}

// Discard retires the fraction lowest-prior active clusters (ties broken by
// smaller, i.e. older, id), per the Open Question resolution in spec.md §9:
// "lowest prior by a discard_frac fraction". Returns the retired ids.
func (o *Overflow) Discard(fraction float64) []int {
	active := o.Store.Active()
	n := len(active)
	if n == 0 {
		return nil
	}
	count := int(float64(n) * fraction)
	if count < 1 {
		count = 1
	}
	if count > n {
		count = n
	}

	sort.SliceStable(active, func(i, j int) bool {
		ci, cj := o.Store.Get(active[i]), o.Store.Get(active[j])
		if ci.Prior != cj.Prior {
			return ci.Prior < cj.Prior
		}
		return ci.ID < cj.ID
	})

	retired := make([]int, 0, count)
	for _, id := range active[:count] {
		o.Store.Retire(id)
		retired = append(retired, id)
	}
	return retired
}

// Merge finds the closest cached pair among active clusters and folds the
// higher id into the lower one: anchor of the lower id is kept, priors
// summed, visitor lists concatenated, transition rows/columns summed
// (spec.md §4.6). Returns the (survivor, retired) pair, or (-1,-1) if fewer
// than two active clusters exist.
func (o *Overflow) Merge(cache *DistanceCache) (survivor, retired int) {
	active := o.Store.Active()
	if len(active) < 2 {
		return -1, -1
	}

	best := -1.0
	survivor, retired = -1, -1
	for a := 0; a < len(active); a++ {
		for b := a + 1; b < len(active); b++ {
			i, j := active[a], active[b]
			d := cache.Get(i, j)
			if best < 0 || d < best {
				best = d
				if i < j {
					survivor, retired = i, j
				} else {
					survivor, retired = j, i
				}
			}
		}
	}
	if survivor < 0 {
		return -1, -1
	}

	o.Store.MergeInto(survivor, retired)
	o.Visitors.Concat(survivor, retired)
	o.Transition.MergeInto(survivor, retired)
	return survivor, retired
}
