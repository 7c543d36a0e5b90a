package streamcluster

import (
	"fmt"

	"github.com/xDarkicex/streamcluster/internal/cluster"
)

// engineConfig is the fully-resolved configuration an Option mutates,
// covering every key of spec.md §6's configuration table plus the ambient
// knobs (metrics, worker count) the clustering config itself doesn't own.
type engineConfig struct {
	cluster cluster.Config

	MaxFrames        int  // maxim
	ScanDistOnly     bool // scandist
	Workers          int  // ncpu
	MetricsEnabled   bool
	DistAll          bool
	MemoryLimitBytes int64
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		cluster:        cluster.DefaultConfig(),
		MaxFrames:      100000,
		Workers:        1,
		MetricsEnabled: true,
	}
}

// Option configures a streamcluster Engine, following the same
// validate-and-mutate functional-option shape as the rest of the ambient
// stack's configuration layers.
type Option func(*engineConfig) error

// OverflowStrategy selects the behavior when the engine would otherwise
// exceed its configured cluster cap; see WithOverflowStrategy.
type OverflowStrategy = cluster.OverflowStrategy

const (
	OverflowStop    = cluster.OverflowStop
	OverflowDiscard = cluster.OverflowDiscard
	OverflowMerge   = cluster.OverflowMerge
)

// WithRadius sets the fixed attachment radius R (rlim). Mutually exclusive
// with WithAutoRadius in effect: whichever is applied last wins, matching
// the teacher's last-option-wins option semantics.
func WithRadius(r float64) Option {
	return func(c *engineConfig) error {
		if r < 0 {
			return fmt.Errorf("streamcluster: radius must be >= 0")
		}
		c.cluster.Radius = r
		c.cluster.AutoRadiusFactor = 0
		return nil
	}
}

// WithAutoRadius enables auto_rlim mode: R is derived from factor times the
// median of consecutive-frame distances, computed by a pre-pass Scan.
func WithAutoRadius(factor float64) Option {
	return func(c *engineConfig) error {
		if factor <= 0 {
			return fmt.Errorf("streamcluster: auto radius factor must be positive")
		}
		c.cluster.AutoRadiusFactor = factor
		return nil
	}
}

// WithPriorIncrement sets dprob, the per-attachment prior increment.
func WithPriorIncrement(dprob float64) Option {
	return func(c *engineConfig) error {
		if dprob < 0 {
			return fmt.Errorf("streamcluster: prior increment must be >= 0")
		}
		c.cluster.PriorIncrement = dprob
		return nil
	}
}

// WithMaxClusters sets maxcl, N_max.
func WithMaxClusters(maxcl int) Option {
	return func(c *engineConfig) error {
		if maxcl <= 0 {
			return fmt.Errorf("streamcluster: max clusters must be positive")
		}
		c.cluster.MaxClusters = maxcl
		return nil
	}
}

// WithMaxFrames sets maxim, the cap on frames processed in one run.
func WithMaxFrames(maxim int) Option {
	return func(c *engineConfig) error {
		if maxim <= 0 {
			return fmt.Errorf("streamcluster: max frames must be positive")
		}
		c.MaxFrames = maxim
		return nil
	}
}

// WithGprob enables geometrical-probability reweighting with the given
// Fmatch curve endpoints and visitor-suffix cap.
func WithGprob(fmatchA, fmatchB float64, maxVisitors int) Option {
	return func(c *engineConfig) error {
		if maxVisitors <= 0 {
			return fmt.Errorf("streamcluster: max gprob visitors must be positive")
		}
		c.cluster.Gprob = true
		c.cluster.FmatchA = fmatchA
		c.cluster.FmatchB = fmatchB
		c.cluster.MaxGprobVisitors = maxVisitors
		return nil
	}
}

// WithPruning enables the te4 and/or te5 geometric pruning bounds.
func WithPruning(te4, te5 bool) Option {
	return func(c *engineConfig) error {
		c.cluster.TE4 = te4
		c.cluster.TE5 = te5
		return nil
	}
}

// WithTMMixing sets tm_mix, the transition-matrix mixing weight alpha in
// [0,1] for score blending.
func WithTMMixing(alpha float64) Option {
	return func(c *engineConfig) error {
		if alpha < 0 || alpha > 1 {
			return fmt.Errorf("streamcluster: tm_mix must be in [0,1]")
		}
		c.cluster.TMMixing = alpha
		return nil
	}
}

// WithPrediction enables the pattern-prediction prefix with the given
// pattern length, lookback horizon, and top-K candidate count.
func WithPrediction(patternLen, horizon, topN int) Option {
	return func(c *engineConfig) error {
		if patternLen < 0 || horizon < 0 || topN < 0 {
			return fmt.Errorf("streamcluster: prediction parameters must be >= 0")
		}
		c.cluster.Prediction = cluster.PredictionConfig{PatternLen: patternLen, Horizon: horizon, TopN: topN}
		return nil
	}
}

// WithOverflowStrategy sets maxcl_strategy and, for discard, the
// discard_fraction.
func WithOverflowStrategy(strategy cluster.OverflowStrategy, discardFraction float64) Option {
	return func(c *engineConfig) error {
		if strategy == cluster.OverflowDiscard && (discardFraction <= 0 || discardFraction > 1) {
			return fmt.Errorf("streamcluster: discard fraction must be in (0,1]")
		}
		c.cluster.OverflowStrategy = strategy
		c.cluster.DiscardFraction = discardFraction
		return nil
	}
}

// WithScanDistOnly, when true, makes Run perform only the distance scanner
// pass (spec.md §4.7's scandist mode) and return before clustering.
func WithScanDistOnly(enabled bool) Option {
	return func(c *engineConfig) error {
		c.ScanDistOnly = enabled
		return nil
	}
}

// WithWorkers sets ncpu, the worker pool size for vectorizable pruning
// inner loops. The probe loop's pruning bounds are evaluated incrementally
// against the running best candidate (spec.md §4.1), so there is no
// independent per-candidate work to hand to a pool without restructuring
// that loop; ncpu is validated and stored for forward compatibility with
// such a pool but is not yet read by the stepping engine.
func WithWorkers(ncpu int) Option {
	return func(c *engineConfig) error {
		if ncpu <= 0 {
			return fmt.Errorf("streamcluster: worker count must be positive")
		}
		c.Workers = ncpu
		return nil
	}
}

// WithMemoryLimit sets a ceiling, in bytes, on the engine's tracked memory
// usage (cluster anchors plus registered caches). Run always monitors usage,
// but only a configured limit arms pressure enforcement: a MemoryHealthMonitor
// runs for the duration of Run and escalates through recovery strategies (GC,
// cache eviction, HandleMemoryLimitExceeded) as usage crosses the configured
// pressure thresholds. Zero (the default) leaves the limit unset and the
// recovery subsystem uninstantiated, matching the teacher's opt-in global
// memory limit.
func WithMemoryLimit(bytes int64) Option {
	return func(c *engineConfig) error {
		if bytes < 0 {
			return fmt.Errorf("streamcluster: memory limit must be >= 0")
		}
		c.MemoryLimitBytes = bytes
		return nil
	}
}

// WithMetrics enables or disables Prometheus instrumentation.
func WithMetrics(enabled bool) Option {
	return func(c *engineConfig) error {
		c.MetricsEnabled = enabled
		return nil
	}
}

// WithProbeDistanceLog enables the optional per-measurement probe-distance
// sink (dist_all).
func WithProbeDistanceLog(enabled bool) Option {
	return func(c *engineConfig) error {
		c.DistAll = enabled
		return nil
	}
}
