package streamcluster

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xDarkicex/streamcluster/internal/cluster"
)

// AssignmentWriter consumes the final "<frame_index> <cluster_id>" stream of
// spec.md §6.
type AssignmentWriter interface {
	WriteAssignments(w io.Writer, log *cluster.FrameRecordLog) error
}

// DCCWriter consumes the populated distance-cache cells.
type DCCWriter interface {
	WriteDCC(w io.Writer, cache *cluster.DistanceCache) error
}

// TransitionMatrixWriter consumes the non-zero transition-matrix cells.
type TransitionMatrixWriter interface {
	WriteTransitions(w io.Writer, tm *cluster.TransitionMatrix) error
}

// ProbeDistanceWriter consumes one line per measured distance, gated by the
// dist_all configuration option.
type ProbeDistanceWriter interface {
	WriteProbe(w io.Writer, e cluster.ProbeLogEntry) error
}

// AnchorWriter consumes the final set of cluster anchors. WritePNG is the
// out-of-scope per-anchor image sink, represented as an interface method
// returning a structured "not supported" error rather than an
// implementation, the same stub shape as the teacher's own
// WithIndexPersistence option.
type AnchorWriter interface {
	WriteAnchors(w io.Writer, store *cluster.Store) error
	WritePNG(path string, store *cluster.Store) error
}

// RunLogWriter consumes the final key:value run summary plus the two
// STATS_DIST_HIST_START/END histograms.
type RunLogWriter interface {
	WriteRunLog(w io.Writer, report *RunReport) error
}

// Sinks bundles every optional output destination for a run. Nil fields are
// skipped.
type Sinks struct {
	Assignments AssignmentWriter
	DCC         DCCWriter
	Transitions TransitionMatrixWriter
	Probes      ProbeDistanceWriter
	Anchors     AnchorWriter
	RunLog      RunLogWriter
}

// TextAssignmentWriter writes the plain "<frame_index> <cluster_id>" stream,
// delegating to FrameRecordLog.Flush, which already resolves discarded
// frames to -1.
type TextAssignmentWriter struct{}

func (TextAssignmentWriter) WriteAssignments(w io.Writer, log *cluster.FrameRecordLog) error {
	return log.Flush(w)
}

// TextDCCWriter writes "<i> <j> <distance>" lines, sorted by (i,j) for
// reproducible output.
type TextDCCWriter struct{}

func (TextDCCWriter) WriteDCC(w io.Writer, cache *cluster.DistanceCache) error {
	cells := cache.Cells()
	sort.Slice(cells, func(a, b int) bool {
		if cells[a][0] != cells[b][0] {
			return cells[a][0] < cells[b][0]
		}
		return cells[a][1] < cells[b][1]
	})
	bw := bufio.NewWriter(w)
	for _, c := range cells {
		if _, err := fmt.Fprintf(bw, "%d %d %g\n", int(c[0]), int(c[1]), c[2]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// TextTransitionMatrixWriter writes "<i> <j> <count>" lines, sorted by
// (i,j).
type TextTransitionMatrixWriter struct{}

func (TextTransitionMatrixWriter) WriteTransitions(w io.Writer, tm *cluster.TransitionMatrix) error {
	cells := tm.NonZero()
	sort.Slice(cells, func(a, b int) bool {
		if cells[a][0] != cells[b][0] {
			return cells[a][0] < cells[b][0]
		}
		return cells[a][1] < cells[b][1]
	})
	bw := bufio.NewWriter(w)
	for _, c := range cells {
		if _, err := fmt.Fprintf(bw, "%d %d %d\n", c[0], c[1], c[2]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// TextProbeDistanceWriter writes the seven-field probe-distance line of
// spec.md §6: frame id, peer frame id, distance, ratio-to-R, probed cluster
// id, cluster prior, current gprob.
type TextProbeDistanceWriter struct{}

func (TextProbeDistanceWriter) WriteProbe(w io.Writer, e cluster.ProbeLogEntry) error {
	_, err := fmt.Fprintf(w, "%d %d %g %g %d %g %g\n",
		e.FrameID, e.PeerFrameID, e.Distance, e.RatioToR, e.ClusterID, e.Prior, e.Gprob)
	return err
}

// ASCIIAnchorWriter writes one row per cluster anchor, in id order, as
// whitespace-separated floats — the ASCII row-per-anchor matrix of spec.md
// §6 for vector-shaped input. WritePNG is unimplemented: per-anchor image
// rendering is the out-of-scope heavy sink.
type ASCIIAnchorWriter struct{}

func (ASCIIAnchorWriter) WriteAnchors(w io.Writer, store *cluster.Store) error {
	bw := bufio.NewWriter(w)
	for _, id := range store.Active() {
		c := store.Get(id)
		for i, v := range c.Anchor.Data {
			if i > 0 {
				if _, err := fmt.Fprint(bw, " "); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(bw, "%g", v); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprint(bw, "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (ASCIIAnchorWriter) WritePNG(path string, store *cluster.Store) error {
	return NewError(ErrCodeUnknown, "png anchor output is not supported", nil).
		WithComponent("sink", "WritePNG").
		WithSeverity(SeverityWarning)
}

// TextRunLogWriter writes the key:value run summary of spec.md §6, including
// the two STATS_DIST_HIST_START/END-delimited histograms.
type TextRunLogWriter struct{}

func (TextRunLogWriter) WriteRunLog(w io.Writer, report *RunReport) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "frames_processed: %d\n", report.FramesProcessed)
	fmt.Fprintf(bw, "clusters_created: %d\n", report.ClustersCreated)
	fmt.Fprintf(bw, "clusters_discarded: %d\n", report.ClustersDiscarded)
	fmt.Fprintf(bw, "clusters_merged: %d\n", report.ClustersMerged)
	fmt.Fprintf(bw, "overflow_events: %d\n", report.OverflowEvents)
	fmt.Fprintf(bw, "pruned_fraction: %g\n", report.PrunedFraction)
	fmt.Fprintf(bw, "wall_clock: %s\n", report.Duration.Round(time.Microsecond))
	fmt.Fprintf(bw, "request_id: %s\n", report.RequestID)

	fmt.Fprintln(bw, "STATS_DIST_HIST_START")
	for i, bin := range report.DistanceHistogram {
		fmt.Fprintf(bw, "%d %d %d\n", i, bin.Count, bin.Pruned)
	}
	fmt.Fprintln(bw, "STATS_DIST_HIST_END")

	return bw.Flush()
}
