package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceBasic(t *testing.T) {
	assert.Equal(t, 0.0, Distance([]float64{1, 2, 3}, []float64{1, 2, 3}))
	assert.InDelta(t, 5.0, Distance([]float64{0, 0}, []float64{3, 4}), 1e-9)
}

func TestDistanceEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Distance(nil, nil))
}

func TestDistancePanicsOnShapeMismatch(t *testing.T) {
	assert.Panics(t, func() {
		Distance([]float64{1, 2}, []float64{1})
	})
}

func TestDistanceLargeBuffersMatchScalar(t *testing.T) {
	n := 200
	a := make([]float64, n)
	b := make([]float64, n)
	for i := range a {
		a[i] = float64(i)
		b[i] = float64(i) + 0.5
	}
	got := Distance(a, b)
	want := scalarDistance(a, b)
	assert.InDelta(t, want, got, 1e-9)
}
