package util

import "container/heap"

// Candidate pairs an integer id with an orderable score. MaxHeap orders on
// Score, ties by smaller ID; cluster.PredictCandidates uses it to hold a successor tally count.
type Candidate struct {
	ID    uint32
	Score float32
}

// MaxHeap implements a max-heap for candidates. cluster.PredictCandidates
// uses this to keep the top pred_n successor clusters by tally without
// sorting the full successor table (spec.md §4.5).
type MaxHeap struct {
	candidates []*Candidate
	maxSize    int
}

// NewMaxHeap creates a new max-heap
func NewMaxHeap(maxSize int) *MaxHeap {
	return &MaxHeap{
		candidates: make([]*Candidate, 0, maxSize),
		maxSize:    maxSize,
	}
}

func (h *MaxHeap) Len() int { return len(h.candidates) }

func (h *MaxHeap) Less(i, j int) bool {
	if h.candidates[i].Score != h.candidates[j].Score {
		return h.candidates[i].Score > h.candidates[j].Score // Reverse for max-heap
	}
	return h.candidates[i].ID < h.candidates[j].ID
}

func (h *MaxHeap) Swap(i, j int) {
	h.candidates[i], h.candidates[j] = h.candidates[j], h.candidates[i]
}

func (h *MaxHeap) Push(x interface{}) {
	h.candidates = append(h.candidates, x.(*Candidate))
}

func (h *MaxHeap) Pop() interface{} {
	old := h.candidates
	n := len(old)
	item := old[n-1]
	h.candidates = old[0 : n-1]
	return item
}

// PushCandidate adds a candidate to the heap
func (h *MaxHeap) PushCandidate(c *Candidate) {
	heap.Push(h, c)
}

// PopCandidate removes and returns the maximum candidate
func (h *MaxHeap) PopCandidate() *Candidate {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*Candidate)
}

// Top returns the maximum candidate without removing it
func (h *MaxHeap) Top() *Candidate {
	if h.Len() == 0 {
		return nil
	}
	return h.candidates[0]
}
