package cluster

import (
	"sort"
	"sync"

	"github.com/xDarkicex/streamcluster/internal/util"
)

// TransitionMatrix is the square matrix of consecutive-assignment counts
// described by spec.md §3/§4.5, ported from cluster_defs.h's
// transition_matrix. t(i,j) counts how many times a frame assigned to i was
// immediately followed by a frame assigned to j.
//
// Unlike the source's dense fixed-size array, this is a sparse map keyed by
// (i,j): the merge overflow strategy (spec.md §4.6) retires a cluster id
// without reusing its slot, so the highest live id is unbounded relative to
// any fixed N_max, and most (i,j) pairs are never visited regardless.
type TransitionMatrix struct {
	mu    sync.RWMutex
	cells map[[2]int]int64
}

// NewTransitionMatrix returns an empty matrix, using maxClustHint as a
// capacity hint for the backing map.
func NewTransitionMatrix(maxClustHint int) *TransitionMatrix {
	return &TransitionMatrix{cells: make(map[[2]int]int64, maxClustHint*4)}
}

// Increment records that a frame assigned to prev was immediately followed
// by a frame assigned to cur (spec.md §4.1 step 9).
func (t *TransitionMatrix) Increment(prev, cur int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cells[[2]int{prev, cur}]++
}

// Row returns t(prev, ·) normalized into a probability distribution over
// [0, size). If prev is negative (no previous assignment yet) or the row is
// all-zero, every entry is 0, matching spec.md §4.1 step 3's "0 if row empty
// or no prev" rule.
func (t *TransitionMatrix) Row(prev, size int) []float64 {
	row := make([]float64, size)
	if prev < 0 {
		return row
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total int64
	for j := 0; j < size; j++ {
		total += t.cells[[2]int{prev, j}]
	}
	if total == 0 {
		return row
	}
	for j := 0; j < size; j++ {
		row[j] = float64(t.cells[[2]int{prev, j}]) / float64(total)
	}
	return row
}

// MergeInto folds row/column j into row/column i (summed), used by the
// merge overflow strategy (spec.md §4.6) when retiring cluster j.
func (t *TransitionMatrix) MergeInto(i, j int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, count := range t.cells {
		if count == 0 {
			continue
		}
		switch {
		case key[0] == j && key[1] == j:
			t.cells[[2]int{i, i}] += count
			t.cells[key] = 0
		case key[0] == j:
			t.cells[[2]int{i, key[1]}] += count
			t.cells[key] = 0
		case key[1] == j:
			t.cells[[2]int{key[0], i}] += count
			t.cells[key] = 0
		}
	}
}

// NonZero returns every (i, j, count) triple with count > 0, used by the
// transition-matrix text sink (spec.md §6).
func (t *TransitionMatrix) NonZero() [][3]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([][3]int64, 0, len(t.cells))
	for key, c := range t.cells {
		if c > 0 {
			out = append(out, [3]int64{int64(key[0]), int64(key[1]), c})
		}
	}
	return out
}

// PredictionConfig configures the pattern-prediction subsystem of spec.md
// §4.5.
type PredictionConfig struct {
	PatternLen int // pred_len
	Horizon    int // pred_h
	TopN       int // pred_n
}

// PredictCandidates ports original_source/cluster_core.c's
// get_prediction_candidates: let P be the last cfg.PatternLen assignments
// ending at position k (exclusive). Scan the window
// [k-cfg.Horizon, k-cfg.PatternLen) for prior occurrences of P and tally the
// cluster that immediately followed each match. Returns up to cfg.TopN
// cluster ids ordered by descending tally, ties broken by smaller id.
//
// Returns nil if k < cfg.PatternLen (prediction skipped per spec.md §8's
// boundary behavior "pred_len > k at current position").
func PredictCandidates(assignments []int, k int, cfg PredictionConfig) []int {
	if cfg.PatternLen <= 0 || k < cfg.PatternLen {
		return nil
	}
	pattern := assignments[k-cfg.PatternLen : k]

	searchStart := k - cfg.Horizon
	if searchStart < 0 {
		searchStart = 0
	}
	searchLimit := k - cfg.PatternLen
	if searchLimit < 0 {
		return nil
	}

	tally := make(map[int]int)
	for start := searchStart; start < searchLimit; start++ {
		end := start + cfg.PatternLen
		if end >= k { // the successor slot must exist and precede k
			break
		}
		if matchesPattern(assignments[start:end], pattern) {
			tally[assignments[end]]++
		}
	}
	if len(tally) == 0 {
		return nil
	}

	h := util.NewMaxHeap(len(tally))
	for id, count := range tally {
		h.PushCandidate(&util.Candidate{ID: uint32(id), Score: float32(count)})
	}

	n := cfg.TopN
	if n > h.Len() {
		n = h.Len()
	}
	candidates := make([]*util.Candidate, 0, n)
	for i := 0; i < n; i++ {
		candidates = append(candidates, h.PopCandidate())
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})

	out := make([]int, len(candidates))
	for i, c := range candidates {
		out[i] = int(c.ID)
	}
	return out
}

func matchesPattern(window, pattern []int) bool {
	if len(window) != len(pattern) {
		return false
	}
	for i := range window {
		if window[i] != pattern[i] {
			return false
		}
	}
	return true
}
