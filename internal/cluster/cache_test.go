package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceCacheSymmetricAndSelfZero(t *testing.T) {
	s := NewStore()
	s.Add(Frame{Index: 0, Data: []float64{0, 0}}, 1.0)
	s.Add(Frame{Index: 1, Data: []float64{3, 4}}, 1.0)
	c := NewDistanceCache(4, s)

	assert.Equal(t, 0.0, c.Get(0, 0))
	d := c.Get(0, 1)
	assert.InDelta(t, 5.0, d, 1e-9)
	assert.Equal(t, d, c.Get(1, 0))
}

func TestDistanceCachePeekMissingBeforeComputed(t *testing.T) {
	s := NewStore()
	s.Add(Frame{Index: 0, Data: []float64{0}}, 1.0)
	s.Add(Frame{Index: 1, Data: []float64{1}}, 1.0)
	c := NewDistanceCache(4, s)

	_, ok := c.Peek(0, 1)
	assert.False(t, ok)
	c.Get(0, 1)
	v, ok := c.Peek(0, 1)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-9)
}

func TestDistanceCachePopulateFillsAgainstAllExisting(t *testing.T) {
	s := NewStore()
	s.Add(Frame{Index: 0, Data: []float64{0}}, 1.0)
	s.Add(Frame{Index: 1, Data: []float64{1}}, 1.0)
	c := NewDistanceCache(4, s)
	s.Add(Frame{Index: 2, Data: []float64{2}}, 1.0)
	c.Populate(2)

	_, ok0 := c.Peek(2, 0)
	_, ok1 := c.Peek(2, 1)
	assert.True(t, ok0)
	assert.True(t, ok1)
}

func TestDistanceCacheFrameDistanceCallsCountsOnlyMisses(t *testing.T) {
	s := NewStore()
	s.Add(Frame{Index: 0, Data: []float64{0}}, 1.0)
	s.Add(Frame{Index: 1, Data: []float64{1}}, 1.0)
	c := NewDistanceCache(4, s)

	c.Get(0, 1)
	c.Get(1, 0) // same cell, already cached
	assert.EqualValues(t, 1, c.FrameDistanceCalls())
}

func TestDistanceCacheClearResetsState(t *testing.T) {
	s := NewStore()
	s.Add(Frame{Index: 0, Data: []float64{0}}, 1.0)
	s.Add(Frame{Index: 1, Data: []float64{1}}, 1.0)
	c := NewDistanceCache(4, s)
	c.Get(0, 1)
	c.Clear()
	assert.EqualValues(t, 0, c.Size())
	_, ok := c.Peek(0, 1)
	assert.False(t, ok)
}
