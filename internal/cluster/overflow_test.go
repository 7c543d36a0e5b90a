package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestOverflow() (*Overflow, *Store) {
	s := NewStore()
	return &Overflow{Store: s, Visitors: NewVisitorIndex(8), Transition: NewTransitionMatrix(8)}, s
}

func TestOverflowDiscardRetiresLowestPriorFraction(t *testing.T) {
	ov, s := newTestOverflow()
	a := s.Add(Frame{Index: 0}, 0.1)
	b := s.Add(Frame{Index: 1}, 0.5)
	c := s.Add(Frame{Index: 2}, 0.9)

	retired := ov.Discard(0.34)
	assert.Equal(t, []int{a.ID}, retired)
	assert.True(t, s.Get(a.ID).Tombstoned())
	assert.False(t, s.Get(b.ID).Tombstoned())
	assert.False(t, s.Get(c.ID).Tombstoned())
}

func TestOverflowDiscardTiesBreakBySmallerID(t *testing.T) {
	ov, s := newTestOverflow()
	a := s.Add(Frame{Index: 0}, 0.5)
	s.Add(Frame{Index: 1}, 0.5)

	retired := ov.Discard(0.5)
	assert.Equal(t, []int{a.ID}, retired)
}

func TestOverflowDiscardAtLeastOne(t *testing.T) {
	ov, s := newTestOverflow()
	a := s.Add(Frame{Index: 0}, 1.0)
	s.Add(Frame{Index: 1}, 1.0)

	retired := ov.Discard(0.01)
	assert.Len(t, retired, 1)
	assert.Equal(t, a.ID, retired[0])
}

func TestOverflowMergeFoldsClosestPairAndSumsPriors(t *testing.T) {
	ov, s := newTestOverflow()
	a := s.Add(Frame{Index: 0, Data: []float64{0}}, 0.3)
	b := s.Add(Frame{Index: 1, Data: []float64{1}}, 0.2) // closest to a
	s.Add(Frame{Index: 2, Data: []float64{100}}, 0.5)

	cache := NewDistanceCache(8, s)
	survivor, retired := ov.Merge(cache)

	assert.Equal(t, a.ID, survivor)
	assert.Equal(t, b.ID, retired)
	assert.InDelta(t, 0.5, s.Get(survivor).Prior, 1e-9)
	assert.True(t, s.Get(retired).Tombstoned())
}

func TestOverflowMergeRequiresTwoActiveClusters(t *testing.T) {
	ov, s := newTestOverflow()
	s.Add(Frame{Index: 0, Data: []float64{0}}, 1.0)
	cache := NewDistanceCache(8, s)

	survivor, retired := ov.Merge(cache)
	assert.Equal(t, -1, survivor)
	assert.Equal(t, -1, retired)
}
