package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepAll(t *testing.T, e *Engine, vectors [][]float64) []int {
	t.Helper()
	assignments := make([]int, len(vectors))
	for i, v := range vectors {
		res, err := e.Step(Frame{Index: i, Data: v})
		require.NoError(t, err)
		assignments[i] = res.Assignment
	}
	return assignments
}

func TestEngineFiveFrame1DSequence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 3
	e := NewEngine(cfg, nil)

	vectors := [][]float64{{0}, {1}, {2}, {4}, {7}}
	assignments := stepAll(t, e, vectors)

	assert.Equal(t, []int{0, 0, 0, 1, 2}, assignments)
	assert.Equal(t, 0, e.Store.Get(0).Anchor.Index)
	assert.Equal(t, 3, e.Store.Get(1).Anchor.Index)
	assert.Equal(t, 4, e.Store.Get(2).Anchor.Index)

	assert.InDelta(t, 4.0, e.Cache.Get(0, 1), 1e-9)
	assert.InDelta(t, 7.0, e.Cache.Get(0, 2), 1e-9)
	assert.InDelta(t, 3.0, e.Cache.Get(1, 2), 1e-9)
}

func TestEngineHundredIdenticalZeroVectorFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 0.1
	e := NewEngine(cfg, nil)

	vectors := make([][]float64, 100)
	for i := range vectors {
		vectors[i] = make([]float64, 10)
	}
	assignments := stepAll(t, e, vectors)

	for _, a := range assignments {
		assert.Equal(t, 0, a)
	}
	assert.Equal(t, 1, e.Store.ActiveCount())

	tm := e.Transition.NonZero()
	require.Len(t, tm, 1)
	assert.Equal(t, [3]int64{0, 0, 99}, tm[0])
}

func TestEngineTwentyFrameLineSequence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 1.0
	e := NewEngine(cfg, nil)

	vectors := make([][]float64, 20)
	for k := range vectors {
		vectors[k] = []float64{float64(k) * 0.5}
	}
	assignments := stepAll(t, e, vectors)

	// Anchors land on frame k every two steps (k*0.5 apart, R=1.0): the odd
	// frame in between is within R of the even anchor and attaches, but the
	// next even frame sits exactly at distance R from that anchor, which the
	// engine's strict `<` attachment rule (engine.go, matching the glossary
	// and spec.md §8's "frame exactly at R -> not attached" boundary
	// behavior) does not attach, so it anchors a new cluster instead.
	want := []int{0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9}
	assert.Equal(t, want, assignments)

	for id := 0; id < 10; id++ {
		assert.Equal(t, id*2, e.Store.Get(id).Anchor.Index)
	}
}

func TestEngineRadiusZeroCreatesOneClusterPerFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 0
	cfg.MaxClusters = 10
	e := NewEngine(cfg, nil)

	vectors := [][]float64{{1}, {1}, {2}, {3}}
	assignments := stepAll(t, e, vectors)
	assert.Equal(t, []int{0, 1, 2, 3}, assignments)
}

func TestEngineRadiusInfiniteAssignsEveryFrameToClusterZero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = math.Inf(1)
	e := NewEngine(cfg, nil)

	vectors := [][]float64{{1}, {100}, {-50}, {0}}
	assignments := stepAll(t, e, vectors)
	for _, a := range assignments {
		assert.Equal(t, 0, a)
	}
}

func TestEngineSingleFrameInputCreatesOneCluster(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 1
	e := NewEngine(cfg, nil)

	res, err := e.Step(Frame{Index: 0, Data: []float64{1, 2, 3}})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 0, res.Assignment)
	assert.Equal(t, 1, e.Store.ActiveCount())
}

func TestEngineTwoIdenticalFramesShareOneCluster(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 0.5
	e := NewEngine(cfg, nil)

	assignments := stepAll(t, e, [][]float64{{3, 3}, {3, 3}})
	assert.Equal(t, []int{0, 0}, assignments)
	assert.Equal(t, 1, e.Store.ActiveCount())
}

func TestEngineFrameExactlyAtRadiusIsNotAttached(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 2.0
	e := NewEngine(cfg, nil)

	_, err := e.Step(Frame{Index: 0, Data: []float64{0}})
	require.NoError(t, err)
	res, err := e.Step(Frame{Index: 1, Data: []float64{2}})
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestEngineTE4AndTE5MatchBaselineAssignments(t *testing.T) {
	vectors := make([][]float64, 12)
	for k := range vectors {
		vectors[k] = []float64{float64(k%5) * 2.0, float64(k)}
	}

	run := func(te4, te5 bool) []int {
		cfg := DefaultConfig()
		cfg.Radius = 3
		cfg.TE4 = te4
		cfg.TE5 = te5
		e := NewEngine(cfg, nil)
		return stepAll(t, e, vectors)
	}

	baseline := run(false, false)
	withTE4 := run(true, false)
	withTE5 := run(false, true)

	assert.Equal(t, baseline, withTE4)
	assert.Equal(t, baseline, withTE5)
}

func TestEngineOverflowMergeReducesToMaxClusters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 0.5
	cfg.MaxClusters = 2
	cfg.OverflowStrategy = OverflowMerge
	e := NewEngine(cfg, nil)

	vectors := [][]float64{{0}, {100}, {50}}
	for _, v := range vectors {
		_, err := e.Step(Frame{Index: len(e.assignments), Data: v})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, e.Store.ActiveCount())
	for _, id := range e.Store.Active() {
		assert.Greater(t, e.Store.Get(id).Prior, 0.0)
	}
}

func TestEngineOverflowStopReturnsErrMaxClusters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 0.5
	cfg.MaxClusters = 1
	cfg.OverflowStrategy = OverflowStop
	e := NewEngine(cfg, nil)

	_, err := e.Step(Frame{Index: 0, Data: []float64{0}})
	require.NoError(t, err)
	_, err = e.Step(Frame{Index: 1, Data: []float64{100}})
	assert.ErrorIs(t, err, ErrMaxClusters)
}

func TestEngineOverflowDiscardMarksEveryMemberFrameOfRetiredClusters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 0.5
	cfg.MaxClusters = 2
	cfg.OverflowStrategy = OverflowDiscard
	cfg.DiscardFraction = 1.0
	e := NewEngine(cfg, nil)

	_, err := e.Step(Frame{Index: 0, Data: []float64{0}})
	require.NoError(t, err)
	// A second frame close enough to cluster 0 to attach rather than anchor
	// its own cluster, so cluster 0 has a non-anchor member frame.
	_, err = e.Step(Frame{Index: 1, Data: []float64{0.1}})
	require.NoError(t, err)
	_, err = e.Step(Frame{Index: 2, Data: []float64{100}})
	require.NoError(t, err)
	_, err = e.Step(Frame{Index: 3, Data: []float64{50}})
	require.NoError(t, err)

	rec0, _ := e.Records.Get(0)
	rec1, _ := e.Records.Get(1)
	assert.Equal(t, rec0.Discarded, rec1.Discarded,
		"both the anchor frame and its non-anchor member must be discarded together")

	discardedSomewhere := false
	for i := 0; i < e.Records.Len(); i++ {
		rec, _ := e.Records.Get(i)
		if rec.Discarded {
			discardedSomewhere = true
		}
	}
	assert.True(t, discardedSomewhere)
}

func TestPredictionSkippedWhenPatternLongerThanCurrentPosition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Radius = 1
	cfg.Prediction = PredictionConfig{PatternLen: 5, Horizon: 10, TopN: 1}
	e := NewEngine(cfg, nil)

	_, err := e.Step(Frame{Index: 0, Data: []float64{0}})
	require.NoError(t, err)
	// History is shorter than PatternLen, so the prediction prefix must be
	// skipped rather than index out of range.
	res, err := e.Step(Frame{Index: 1, Data: []float64{10}})
	require.NoError(t, err)
	assert.True(t, res.Created)
}
