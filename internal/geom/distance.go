// Package geom implements the distance kernel and the geometric pruning
// bounds used by the clustering engine to avoid measuring distances it can
// rule out analytically.
package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrShapeMismatch is the value Distance panics with when two frames do not
// share the same dimensionality. The engine treats this as a fatal bug
// (spec §7), not a recoverable condition.
var ErrShapeMismatch = fmt.Errorf("geom: frame shapes do not match")

// Distance computes the Euclidean norm of the elementwise difference between
// a and b. Panics if the lengths differ, since the caller (the assignment
// engine) guarantees shape-checked input and a length mismatch here is a
// programming error, not user input.
//
// The inner loop is unrolled four-wide to encourage the compiler to emit
// fused multiply-adds; for longer buffers it defers to gonum/floats, which
// is the pack's vectorized numerical kernel. Neither path allocates.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		panic(ErrShapeMismatch)
	}
	if len(a) == 0 {
		return 0
	}
	if len(a) >= floatsThreshold {
		return floats.Distance(a, b, 2)
	}
	return scalarDistance(a, b)
}

// floatsThreshold is the buffer length above which we hand off to
// gonum/floats.Distance instead of the hand-unrolled loop below. Short
// buffers (typical for low-dimensional coordinate frames) pay more in call
// overhead than they save; long buffers (image-shaped frames) amortize it.
const floatsThreshold = 64

func scalarDistance(a, b []float64) float64 {
	var sum float64
	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		sum += d0*d0 + d1*d1 + d2*d2 + d3*d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
