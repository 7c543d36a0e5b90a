package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisitorIndexRecordAndLen(t *testing.T) {
	v := NewVisitorIndex(4)
	v.Record(0, 10)
	v.Record(0, 11)
	v.Record(1, 12)
	assert.Equal(t, 2, v.Len(0))
	assert.Equal(t, 1, v.Len(1))
}

func TestVisitorIndexSuffixCapsAndExcludes(t *testing.T) {
	v := NewVisitorIndex(4)
	for _, k := range []int{1, 2, 3, 4, 5} {
		v.Record(0, k)
	}
	got := v.Suffix(0, 2, 5)
	assert.Equal(t, []int{4, 3}, got)
}

func TestVisitorIndexConcatMovesListAndClearsSource(t *testing.T) {
	v := NewVisitorIndex(4)
	v.Record(0, 1)
	v.Record(1, 2)
	v.Concat(0, 1)
	assert.Equal(t, 2, v.Len(0))
	assert.Equal(t, 0, v.Len(1))
}

func TestFmatchEndpointsAndCutoff(t *testing.T) {
	assert.InDelta(t, 2.0, Fmatch(0, 2.0, 0.5), 1e-9)
	assert.InDelta(t, 0.5, Fmatch(2.0, 2.0, 0.5), 1e-9)
	assert.Equal(t, 0.0, Fmatch(3.0, 2.0, 0.5))
	assert.InDelta(t, 1.25, Fmatch(1.0, 2.0, 0.5), 1e-9)
}

func TestGprobTableResetAndMultiply(t *testing.T) {
	g := NewGprobTable(3)
	assert.Equal(t, 1.0, g.Get(0))
	g.Multiply(0, 0.5)
	assert.InDelta(t, 0.5, g.Get(0), 1e-9)
	g.Reset(3)
	assert.Equal(t, 1.0, g.Get(0))
}

func TestReweightGprobFoldsFmatchIntoVisitorAssignment(t *testing.T) {
	store := NewStore()
	j := store.Add(Frame{Index: 0, Data: []float64{0}}, 1.0)
	ell := store.Add(Frame{Index: 1, Data: []float64{5}}, 1.0)

	visitors := NewVisitorIndex(4)
	records := NewFrameRecordLog(4)
	gprob := NewGprobTable(2)

	visitors.Record(j.ID, 10)
	records.Append(FrameRecord{Index: 10, Assignment: ell.ID, Probes: []Probe{{ClusterID: j.ID, Distance: 1.0}}})

	active := map[int]bool{j.ID: true, ell.ID: true}
	ReweightGprob(visitors, records, store, gprob, j.ID, 99, 1.5, 2.0, 2.0, 0.5, 10, func(id int) bool { return active[id] })

	assert.NotEqual(t, 1.0, gprob.Get(ell.ID))
}

func TestReweightGprobSkipsInactiveVisitorAssignment(t *testing.T) {
	store := NewStore()
	j := store.Add(Frame{Index: 0, Data: []float64{0}}, 1.0)
	ell := store.Add(Frame{Index: 1, Data: []float64{5}}, 1.0)

	visitors := NewVisitorIndex(4)
	records := NewFrameRecordLog(4)
	gprob := NewGprobTable(2)

	visitors.Record(j.ID, 10)
	records.Append(FrameRecord{Index: 10, Assignment: ell.ID, Probes: []Probe{{ClusterID: j.ID, Distance: 1.0}}})

	active := map[int]bool{j.ID: true, ell.ID: false}
	ReweightGprob(visitors, records, store, gprob, j.ID, 99, 1.5, 2.0, 2.0, 0.5, 10, func(id int) bool { return active[id] })

	assert.Equal(t, 1.0, gprob.Get(ell.ID))
}
