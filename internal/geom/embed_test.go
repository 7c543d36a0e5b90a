package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func dist2(ax, ay, bx, by float64) float64 {
	dx, dy := ax-bx, ay-by
	return math.Sqrt(dx*dx + dy*dy)
}

func TestMinDist4ExactWhenSameSide(t *testing.T) {
	// j at origin, p on the x-axis, f and ℓ both above the line j-p.
	jx, jy := 0.0, 0.0
	px, py := 4.0, 0.0
	fx, fy := 1.0, 3.0
	lx, ly := 2.0, 2.0

	dJP := dist2(jx, jy, px, py)
	dAf := dist2(jx, jy, fx, fy)
	dAp := dist2(px, py, fx, fy)
	dJL := dist2(jx, jy, lx, ly)
	dPL := dist2(px, py, lx, ly)

	want := dist2(fx, fy, lx, ly)
	got := MinDist4(dAf, dAp, dJP, dJL, dPL)
	assert.InDelta(t, want, got, 1e-6)
}

func TestMinDist4IsLowerBoundWhenOppositeSides(t *testing.T) {
	jx, jy := 0.0, 0.0
	px, py := 4.0, 0.0
	fx, fy := 1.0, 3.0
	lx, ly := 2.0, -2.0 // opposite side from f

	dJP := dist2(jx, jy, px, py)
	dAf := dist2(jx, jy, fx, fy)
	dAp := dist2(px, py, fx, fy)
	dJL := dist2(jx, jy, lx, ly)
	dPL := dist2(px, py, lx, ly)

	actual := dist2(fx, fy, lx, ly)
	bound := MinDist4(dAf, dAp, dJP, dJL, dPL)
	assert.LessOrEqual(t, bound, actual+1e-6)
}

func TestMinDist5LowerBoundsActualDistance(t *testing.T) {
	// Reference anchors in 3-space.
	c1 := [3]float64{0, 0, 0}
	c2 := [3]float64{5, 0, 0}
	c3 := [3]float64{2, 4, 0}
	f := [3]float64{1, 1, 3}
	l := [3]float64{3, 2, -2}

	d3 := func(a, b [3]float64) float64 {
		dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
		return math.Sqrt(dx*dx + dy*dy + dz*dz)
	}

	d12 := d3(c1, c2)
	d13 := d3(c1, c3)
	d23 := d3(c2, c3)
	dAf, dBf, dCf := d3(c1, f), d3(c2, f), d3(c3, f)
	dAl, dBl, dCl := d3(c1, l), d3(c2, l), d3(c3, l)

	actual := d3(f, l)
	bound := MinDist5(d12, d13, d23, dAf, dBf, dCf, dAl, dBl, dCl)
	assert.LessOrEqual(t, bound, actual+1e-6)
}
