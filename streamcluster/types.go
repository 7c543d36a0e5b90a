package streamcluster

import "time"

// HistogramBin is one bin of the run log's distance-count/pruned-count
// histograms (spec.md §6): "<bin> <count> <pruned>".
type HistogramBin struct {
	Count  int
	Pruned int
}

// RunReport summarizes a completed Run call: totals suitable for the run
// log plus the raw histogram data, mirroring the teacher's own pattern of
// returning a stats struct from a long-running operation.
type RunReport struct {
	FramesProcessed   int
	ClustersCreated   int
	ClustersDiscarded int
	ClustersMerged    int
	OverflowEvents    int
	PrunedFraction    float64
	Duration          time.Duration
	RequestID         string

	DistanceHistogram []HistogramBin

	// StoppedEarly is set when the run ended via a stop-policy overflow or
	// context cancellation rather than source exhaustion.
	StoppedEarly bool
	StopReason   string

	// PeakMemoryBytes is the highest total-managed reading across the run's
	// memory snapshot history (0 if memory monitoring was never started).
	PeakMemoryBytes int64
}
