package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the clustering engine's Prometheus instrumentation.
type Metrics struct {
	FramesProcessed   prometheus.Counter
	DistanceCalls     prometheus.Counter
	ClustersCreated   prometheus.Counter
	ClustersPruned    prometheus.Counter
	ClustersDiscarded prometheus.Counter
	ClustersMerged    prometheus.Counter
	OverflowEvents    prometheus.Counter
	ProbeLatency      prometheus.Histogram
}

// NewMetrics creates a clustering metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcluster_frames_processed_total",
			Help: "Total frames assigned by the clustering engine",
		}),
		DistanceCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcluster_distance_calls_total",
			Help: "Total distance kernel invocations",
		}),
		ClustersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcluster_clusters_created_total",
			Help: "Total clusters created",
		}),
		ClustersPruned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcluster_clusters_pruned_total",
			Help: "Total candidate clusters ruled out without measurement",
		}),
		ClustersDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcluster_clusters_discarded_total",
			Help: "Total clusters retired by the discard overflow strategy",
		}),
		ClustersMerged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcluster_clusters_merged_total",
			Help: "Total clusters retired by the merge overflow strategy",
		}),
		OverflowEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcluster_overflow_events_total",
			Help: "Total max-cluster overflow events handled",
		}),
		ProbeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "streamcluster_probe_latency_seconds",
			Help: "Wall-clock time spent in a single frame's probe loop",
		}),
	}
}
