package cluster

import (
	"context"
	"sort"

	"github.com/xDarkicex/streamcluster/internal/geom"
)

// ScanStats summarizes the consecutive-frame distance distribution computed
// by Scan (spec.md §4.7).
type ScanStats struct {
	Count  int
	Min    float64
	P20    float64
	Median float64
	P80    float64
	Max    float64
}

// Scan streams frames in order from src, computes d(frame_k, frame_{k+1})
// for up to maxnbfr intervals, and reports min, 20th percentile, median,
// 80th percentile, and max. Each percentile q is the linear interpolation at
// fractional index (n-1)*q of the sorted distances.
//
// The source is reset to index 0 before returning, matching spec.md §4.7's
// final step: the clustering pass that follows a scan must see the full
// stream again.
func Scan(ctx context.Context, src FrameSource, maxnbfr int) (ScanStats, error) {
	if _, _, _, err := src.Open(ctx); err != nil {
		return ScanStats{}, err
	}

	dists := make([]float64, 0, maxnbfr)
	prev, hasPrev, err := src.Next(ctx)
	if err != nil {
		return ScanStats{}, err
	}
	if !hasPrev {
		if rerr := src.Reset(ctx); rerr != nil {
			return ScanStats{}, rerr
		}
		return ScanStats{}, nil
	}

	for len(dists) < maxnbfr {
		cur, ok, err := src.Next(ctx)
		if err != nil {
			return ScanStats{}, err
		}
		if !ok {
			break
		}
		dists = append(dists, geom.Distance(prev.Data, cur.Data))
		prev = cur
	}

	if err := src.Reset(ctx); err != nil {
		return ScanStats{}, err
	}

	if len(dists) == 0 {
		return ScanStats{}, nil
	}

	sort.Float64s(dists)
	quantile := func(q float64) float64 {
		pos := float64(len(dists)-1) * q
		lo := int(pos)
		if lo+1 >= len(dists) {
			return dists[lo]
		}
		return dists[lo] + (pos-float64(lo))*(dists[lo+1]-dists[lo])
	}
	return ScanStats{
		Count:  len(dists),
		Min:    dists[0],
		P20:    quantile(0.2),
		Median: quantile(0.5),
		P80:    quantile(0.8),
		Max:    dists[len(dists)-1],
	}, nil
}

// AutoRadius derives the clustering radius from a prior Scan's median, per
// spec.md §4.7's auto_rlim mode: R = factor * median.
func AutoRadius(stats ScanStats, factor float64) float64 {
	return factor * stats.Median
}
