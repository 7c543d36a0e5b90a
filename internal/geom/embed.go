package geom

import "math"

// clampTol is the tolerance below zero that a squared term computed from
// rounding-prone distance differences is clamped to zero before taking a
// square root. Without this, legitimate near-degenerate triangles (nearly
// collinear anchors) produce small negative values under sqrt and NaN
// propagates through the pruning decision.
const clampTol = 1e-9

func clampSqrt(v float64) float64 {
	if v < 0 {
		if v > -clampTol {
			return 0
		}
		return math.NaN()
	}
	return math.Sqrt(v)
}

// solveTriangle places a third point C in the plane given the side lengths
// of a triangle whose first edge A-B has length d12, the A-C edge has
// length d13, and the B-C edge has length d23. A sits at the origin, B at
// (d12, 0). Returns C's coordinates.
func solveTriangle(d12, d13, d23 float64) (cx, cy float64) {
	if d12 < 1e-9 {
		return 0, 0
	}
	cx = (d13*d13 + d12*d12 - d23*d23) / (2.0 * d12)
	cy = clampSqrt(d13*d13 - cx*cx)
	return cx, cy
}

// MinDist4 computes a lower bound on the distance between the frame f and a
// candidate cluster anchor ℓ, given:
//
//	dAf  = d(f, anchor(j))       the just-measured probe distance
//	dAp  = d(f, anchor(p))       an earlier probe distance this frame
//	dJP  = c(j, p)                cached anchor-to-anchor distance
//	dJL  = c(j, ℓ)                cached anchor-to-anchor distance
//	dPL  = c(p, ℓ)                cached anchor-to-anchor distance
//
// It embeds {anchor(j), anchor(p)} on the x-axis and places f and anchor(ℓ)
// each on the positive-y side of that axis (the minimum-distance
// reflection), then returns the planar distance between them. This is the
// 4-point geometric pruning bound of the assignment engine's probe loop.
func MinDist4(dAf, dAp, dJP, dJL, dPL float64) float64 {
	if dJP < 1e-9 {
		return math.Abs(dAf - dAp)
	}
	lx, ly := solveTriangle(dJP, dJL, dPL)
	fx, fy := solveTriangle(dJP, dAf, dAp)
	dx := lx - fx
	dy := ly - fy
	return math.Sqrt(dx*dx + dy*dy)
}

// MinDist5 extends MinDist4 to a 3-point reference frame {c1, c2, c3}. It
// embeds c1 at the origin, c2 on the x-axis, c3 in the xy-plane, then places
// f and ℓ each at the positive-z solution of the trilateration from their
// distances to c1, c2, c3. The returned value lower-bounds d(f, anchor(ℓ)).
//
// Parameters:
//
//	d12, d13, d23       cached anchor-to-anchor distances among c1, c2, c3
//	dAf, dBf, dCf       probe distances from f to c1, c2, c3 respectively
//	dAl, dBl, dCl       cached anchor-to-anchor distances from ℓ to c1, c2, c3
func MinDist5(d12, d13, d23, dAf, dBf, dCf, dAl, dBl, dCl float64) float64 {
	cx, cy := solveTriangle(d12, d13, d23)
	fx, fy, fz := trilaterate(d12, cx, cy, dAf, dBf, dCf)
	lx, ly, lz := trilaterate(d12, cx, cy, dAl, dBl, dCl)
	dx := fx - lx
	dy := fy - ly
	dz := fz - lz
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// trilaterate solves for the positive-z coordinates of a point P given its
// distances dA, dB, dC to three reference points A=(0,0,0), B=(d12,0,0) and
// C=(cx,cy,0).
func trilaterate(d12, cx, cy, dA, dB, dC float64) (x, y, z float64) {
	if d12 < 1e-9 || cy < 1e-9 {
		return 0, 0, 0
	}
	x = (dA*dA - dB*dB + d12*d12) / (2.0 * d12)
	y = (dA*dA - dC*dC - 2*cx*x + cx*cx + cy*cy) / (2.0 * cy)
	z = clampSqrt(dA*dA - x*x - y*y)
	return x, y, z
}
