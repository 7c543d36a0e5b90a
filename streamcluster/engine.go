package streamcluster

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/xDarkicex/streamcluster/internal/cluster"
	"github.com/xDarkicex/streamcluster/internal/memory"
	"github.com/xDarkicex/streamcluster/internal/obs"
)

// Engine is the public streaming clustering facade, mirroring the teacher's
// top-level Database: it validates configuration, wires observability, and
// drives the assignment engine over a FrameSource to completion.
type Engine struct {
	cfg engineConfig

	core *cluster.Engine

	metrics *obs.Metrics
	health  *obs.HealthChecker
	breaker *obs.CircuitBreaker
	mem     memory.MemoryManager

	recovery  *memory.MemoryRecoveryManager
	memHealth *memory.MemoryHealthMonitor

	requestID string

	srcHealthy bool
	srcDetail  string

	// ProbeWriter, when set alongside Sinks.Probes and the
	// WithProbeDistanceLog option, receives one line per measured distance
	// during Run.
	ProbeWriter io.Writer
}

// New validates opts and returns a ready-to-run Engine, modeled on
// libravdb.New's validate-then-construct shape.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, NewError(ErrCodeUnknown, "invalid option", err).WithSeverity(SeverityError)
		}
	}
	if cfg.cluster.Radius <= 0 && cfg.cluster.AutoRadiusFactor <= 0 {
		return nil, NewError(ErrCodeUnknown, "either a fixed radius or an auto-radius factor must be set", nil).
			WithComponent("streamcluster", "New").WithSeverity(SeverityError)
	}

	var metrics *obs.Metrics
	if cfg.MetricsEnabled {
		metrics = obs.NewMetrics()
	}
	cfg.cluster.DistAll = cfg.DistAll

	core := cluster.NewEngine(cfg.cluster, metrics)

	mem := memory.NewManager(memory.DefaultMemoryConfig())
	if err := mem.RegisterCache("distance_cache", core.Cache); err != nil {
		return nil, NewError(ErrCodeAllocation, "register distance cache", err)
	}
	if err := mem.RegisterCache("visitor_index", core.Visitors); err != nil {
		return nil, NewError(ErrCodeAllocation, "register visitor index", err)
	}

	e := &Engine{
		cfg:        cfg,
		core:       core,
		metrics:    metrics,
		mem:        mem,
		requestID:  uuid.NewString(),
		srcHealthy: true,
	}

	if cfg.MemoryLimitBytes > 0 {
		if err := mem.SetLimit(cfg.MemoryLimitBytes); err != nil {
			return nil, NewError(ErrCodeAllocation, "set memory limit", err)
		}
		e.recovery = memory.NewMemoryRecoveryManager(mem)
		e.memHealth = memory.NewMemoryHealthMonitor(mem, e.recovery)
		mem.OnMemoryPressure(func(usage memory.MemoryUsage) {
			memErr := memory.NewMemoryError(
				memory.ErrMemPressureCritical,
				"streamcluster.Engine",
				"OnMemoryPressure",
				"registered caches crossed a pressure threshold",
			).WithUsage(usage).WithRecoverable(true)
			_ = e.recovery.RecoverFromMemoryPressure(context.Background(), memErr)
		})
	}

	e.health = obs.NewHealthChecker(e)
	e.breaker = obs.NewCircuitBreaker(obs.DefaultCircuitBreakerConfig("frame_source"))
	return e, nil
}

// Healthy implements obs.HealthSource: the engine reports itself unhealthy
// once its frame source's circuit breaker has tripped open.
func (e *Engine) Healthy() (bool, string) {
	if e.breaker.State() == obs.CircuitOpen {
		return false, "frame source circuit breaker is open"
	}
	return e.srcHealthy, e.srcDetail
}

// HealthCheck reports the engine's current health.
func (e *Engine) HealthCheck(ctx context.Context) (*obs.HealthStatus, error) {
	return e.health.Check(ctx)
}

// Run drives src to completion (or to cfg.MaxFrames, or to cancellation),
// calling Engine.Step per frame and writing to sinks, implementing spec.md
// §4.1/§5 end to end.
func (e *Engine) Run(ctx context.Context, src FrameSource, sinks Sinks) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{RequestID: e.requestID}

	if e.cfg.cluster.AutoRadiusFactor > 0 {
		stats, err := cluster.Scan(ctx, src, e.cfg.MaxFrames)
		if err != nil {
			return nil, NewError(ErrCodeSource, "auto-radius scan failed", err).WithComponent("streamcluster", "Run")
		}
		e.core.SetRadius(cluster.AutoRadius(stats, e.cfg.cluster.AutoRadiusFactor))
		if e.cfg.ScanDistOnly {
			report.Duration = time.Since(start)
			return report, nil
		}
	}

	if _, _, _, err := src.Open(ctx); err != nil {
		e.srcHealthy = false
		e.srcDetail = err.Error()
		return nil, NewError(ErrCodeSource, "open frame source", err).WithComponent("streamcluster", "Run")
	}

	if cp, ok := src.(CacheProvider); ok {
		for _, c := range cp.Caches() {
			if err := e.mem.RegisterCache(c.Name(), c); err != nil {
				return nil, NewError(ErrCodeAllocation, "register source cache", err).WithComponent("streamcluster", "Run")
			}
			defer e.mem.UnregisterCache(c.Name())
		}
	}

	if err := e.mem.Start(ctx); err != nil {
		return nil, NewError(ErrCodeAllocation, "start memory monitor", err).WithComponent("streamcluster", "Run")
	}
	defer e.mem.Stop()
	if e.memHealth != nil {
		if err := e.memHealth.Start(ctx); err != nil {
			return nil, NewError(ErrCodeAllocation, "start memory health monitor", err).WithComponent("streamcluster", "Run")
		}
		defer e.memHealth.Stop()
	}

	if e.cfg.DistAll && sinks.Probes != nil && e.ProbeWriter != nil {
		e.core.ProbeLog = func(entry cluster.ProbeLogEntry) {
			_ = sinks.Probes.WriteProbe(e.ProbeWriter, entry)
		}
	}

	histogram := make([]HistogramBin, 0, 64)
	recordHistogram := func(probes, pruned int) {
		for len(histogram) <= probes {
			histogram = append(histogram, HistogramBin{})
		}
		histogram[probes].Count++
		histogram[probes].Pruned += pruned
	}

	processed := 0
	for processed < e.cfg.MaxFrames {
		select {
		case <-ctx.Done():
			report.StoppedEarly = true
			report.StopReason = "context cancelled"
			return e.finalize(report, histogram, processed, start), nil
		default:
		}

		var frame Frame
		var ok bool
		err := e.breaker.Execute(ctx, func() error {
			var nerr error
			frame, ok, nerr = src.Next(ctx)
			return nerr
		})
		if err != nil {
			e.srcHealthy = false
			e.srcDetail = err.Error()
			report.StoppedEarly = true
			report.StopReason = err.Error()
			return e.finalize(report, histogram, processed, start), nil
		}
		if !ok {
			break
		}
		e.srcHealthy = true
		e.srcDetail = ""

		res, err := e.core.Step(frame)
		if err != nil {
			if err == cluster.ErrMaxClusters {
				report.StoppedEarly = true
				report.StopReason = "max cluster overflow under stop policy"
				break
			}
			return nil, NewError(ErrCodeAllocation, "step failed", err).WithFrame(frame.Index)
		}
		recordHistogram(res.ProbeCount, res.PrunedCount)
		processed++
		if res.Created {
			report.ClustersCreated++
		}
		if res.Overflowed {
			report.OverflowEvents++
		}
		report.ClustersDiscarded += res.DiscardedCount
		report.ClustersMerged += res.MergedCount
	}

	return e.finalize(report, histogram, processed, start), nil
}

func (e *Engine) finalize(report *RunReport, histogram []HistogramBin, processed int, start time.Time) *RunReport {
	report.FramesProcessed = processed
	report.PrunedFraction = e.core.PrunedFraction()
	report.Duration = time.Since(start)
	report.DistanceHistogram = histogram
	if e.mem != nil {
		for _, snap := range e.mem.Snapshots() {
			if snap.TotalManaged > report.PeakMemoryBytes {
				report.PeakMemoryBytes = snap.TotalManaged
			}
		}
	}
	return report
}

// Store exposes the underlying cluster store for sinks and diagnostics.
func (e *Engine) Store() *cluster.Store { return e.core.Store }

// DistanceCache exposes the underlying distance cache for sinks.
func (e *Engine) DistanceCache() *cluster.DistanceCache { return e.core.Cache }

// Transitions exposes the underlying transition matrix for sinks.
func (e *Engine) Transitions() *cluster.TransitionMatrix { return e.core.Transition }

// Records exposes the underlying frame record log for sinks.
func (e *Engine) Records() *cluster.FrameRecordLog { return e.core.Records }

// WriteOutputs flushes every configured sink against the engine's final
// state to the corresponding writer. A nil writer skips its sink even if
// one is configured in Sinks.
func (e *Engine) WriteOutputs(sinks Sinks, report *RunReport, assignOut, dccOut, tmOut, anchorOut, runLogOut io.Writer) error {
	if sinks.Assignments != nil && assignOut != nil {
		if err := sinks.Assignments.WriteAssignments(assignOut, e.core.Records); err != nil {
			return fmt.Errorf("streamcluster: write assignments: %w", err)
		}
	}
	if sinks.DCC != nil && dccOut != nil {
		if err := sinks.DCC.WriteDCC(dccOut, e.core.Cache); err != nil {
			return fmt.Errorf("streamcluster: write dcc: %w", err)
		}
	}
	if sinks.Transitions != nil && tmOut != nil {
		if err := sinks.Transitions.WriteTransitions(tmOut, e.core.Transition); err != nil {
			return fmt.Errorf("streamcluster: write transitions: %w", err)
		}
	}
	if sinks.Anchors != nil && anchorOut != nil {
		if err := sinks.Anchors.WriteAnchors(anchorOut, e.core.Store); err != nil {
			return fmt.Errorf("streamcluster: write anchors: %w", err)
		}
	}
	if sinks.RunLog != nil && runLogOut != nil {
		if err := sinks.RunLog.WriteRunLog(runLogOut, report); err != nil {
			return fmt.Errorf("streamcluster: write run log: %w", err)
		}
	}
	return nil
}
