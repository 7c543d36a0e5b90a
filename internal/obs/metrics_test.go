package obs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// A single test function: promauto registers every counter against the
// default Prometheus registry, so constructing Metrics twice within one test
// binary panics on duplicate registration.
func TestNewMetricsRegistersCounters(t *testing.T) {
	m := NewMetrics()
	require := assert.New(t)
	require.NotNil(m.FramesProcessed)
	require.NotNil(m.DistanceCalls)
	require.NotNil(m.ClustersCreated)
	require.NotNil(m.ClustersPruned)
	require.NotNil(m.ClustersDiscarded)
	require.NotNil(m.ClustersMerged)
	require.NotNil(m.OverflowEvents)
	require.NotNil(m.ProbeLatency)

	m.FramesProcessed.Inc()
	m.DistanceCalls.Inc()
}
