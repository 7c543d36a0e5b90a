package cluster

import (
	"errors"
	"sort"
	"time"

	"github.com/xDarkicex/streamcluster/internal/geom"
	"github.com/xDarkicex/streamcluster/internal/obs"
)

// ErrMaxClusters is returned by Step when the overflow strategy is Stop and
// the frame cannot be attached to any existing cluster (spec.md §4.6).
var ErrMaxClusters = errors.New("cluster: max cluster count reached")

// Config holds the per-run clustering parameters of spec.md §6.
type Config struct {
	Radius           float64 // rlim
	AutoRadiusFactor float64 // auto_rlim_factor; 0 disables auto mode
	PriorIncrement   float64 // dprob
	MaxClusters      int     // maxcl

	Gprob            bool
	FmatchA, FmatchB float64
	MaxGprobVisitors int

	TE4 bool
	TE5 bool

	TMMixing float64 // tm_mix, alpha in [0,1]

	Prediction PredictionConfig // pred_len/pred_h/pred_n; PatternLen==0 disables

	OverflowStrategy OverflowStrategy
	DiscardFraction  float64

	DistAll bool // write a probe-distance log line on every measurement
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		PriorIncrement:   0.01,
		MaxClusters:      1000,
		FmatchA:          2.0,
		FmatchB:          0.5,
		MaxGprobVisitors: 1000,
		OverflowStrategy: OverflowStop,
		DiscardFraction:  0.1,
	}
}

// StepResult reports the outcome of one Engine.Step call.
type StepResult struct {
	FrameIndex     int
	Assignment     int
	Created        bool
	Discarded      bool
	Overflowed     bool
	DiscardedCount int // clusters retired by the discard strategy this step
	MergedCount    int // clusters retired by the merge strategy this step
	ProbeCount     int
	PrunedCount    int
	StepDuration   time.Duration
}

// ProbeLogEntry is one line of the optional probe-distance sink (spec.md
// §6): frame id, peer (anchor) frame id, distance, ratio to R, probed
// cluster id, cluster prior, current gprob.
type ProbeLogEntry struct {
	FrameID     int
	PeerFrameID int
	Distance    float64
	RatioToR    float64
	ClusterID   int
	Prior       float64
	Gprob       float64
}

// Engine is the per-frame assignment state machine of spec.md §4.1. It owns
// the cluster store, distance cache, visitor index, frame record log, and
// transition matrix, and combines them to pick or create a cluster for each
// incoming frame.
type Engine struct {
	cfg Config

	Store      *Store
	Cache      *DistanceCache
	Visitors   *VisitorIndex
	Records    *FrameRecordLog
	Transition *TransitionMatrix

	metrics *obs.Metrics

	assignments []int
	prev        int // -1 until the first frame is assigned

	prunedFrames int64 // running count for the pruned-fraction histogram
	probedFrames int64
	candidates   int64 // active candidates summed over probed frames

	gprob *GprobTable

	// ProbeLog, when non-nil, receives one entry per measured distance
	// (spec.md §6's optional probe-distance output, gated by DistAll).
	ProbeLog func(ProbeLogEntry)
}

// NewEngine returns an engine configured for up to cfg.MaxClusters clusters.
// metrics may be nil, in which case instrumentation is skipped.
func NewEngine(cfg Config, metrics *obs.Metrics) *Engine {
	store := NewStore()
	return &Engine{
		cfg:         cfg,
		Store:       store,
		Cache:       NewDistanceCache(cfg.MaxClusters, store),
		Visitors:    NewVisitorIndex(cfg.MaxClusters),
		Records:     NewFrameRecordLog(1024),
		Transition:  NewTransitionMatrix(cfg.MaxClusters),
		metrics:     metrics,
		prev:        -1,
		gprob:       NewGprobTable(cfg.MaxClusters),
		assignments: make([]int, 0, 1024),
	}
}

func (e *Engine) radius() float64 { return e.cfg.Radius }

// SetRadius overrides the attachment radius, used by the facade's auto_rlim
// mode after a Scan pass computes R from the consecutive-distance median.
func (e *Engine) SetRadius(r float64) { e.cfg.Radius = r }

// Step implements spec.md §4.1 end to end for a single frame.
func (e *Engine) Step(f Frame) (StepResult, error) {
	start := time.Now()
	k := f.Index

	if e.metrics != nil {
		e.metrics.FramesProcessed.Inc()
		defer func() { e.metrics.ProbeLatency.Observe(time.Since(start).Seconds()) }()
	}

	// 1. Bootstrap.
	if e.Store.Len() == 0 {
		c := e.Store.Add(f, 1.0)
		e.Visitors.Record(c.ID, k)
		e.Records.Append(FrameRecord{Index: k, Assignment: c.ID, Probes: []Probe{{ClusterID: c.ID, Distance: 0}}})
		e.commit(c.ID)
		if e.metrics != nil {
			e.metrics.ClustersCreated.Inc()
		}
		return StepResult{FrameIndex: k, Assignment: c.ID, Created: true, ProbeCount: 1, StepDuration: time.Since(start)}, nil
	}

	// 2. Prior normalization.
	e.normalizePriors()

	active := make(map[int]bool, e.Store.Len())
	for _, id := range e.Store.Active() {
		active[id] = true
	}

	n := e.Store.Len()
	e.gprob.Reset(n)

	// 3. Score computation.
	tmRow := e.Transition.Row(e.prev, n)
	score := make([]float64, n)
	recompute := func(id int) {
		if !active[id] {
			return
		}
		c := e.Store.Get(id)
		score[id] = ((1-e.cfg.TMMixing)*c.Prior + e.cfg.TMMixing*tmRow[id]) * e.gprob.Get(id)
	}
	for id := range active {
		recompute(id)
	}

	var probes []Probe
	var pruned int
	var assigned = -1

	probeOne := func(j int) (attached bool) {
		c := e.Store.Get(j)
		dfc := geom.Distance(f.Data, c.Anchor.Data)
		probes = append(probes, Probe{ClusterID: j, Distance: dfc})
		e.Visitors.Record(j, k)
		if e.metrics != nil {
			e.metrics.DistanceCalls.Inc()
		}
		if e.ProbeLog != nil && e.cfg.DistAll {
			e.ProbeLog(ProbeLogEntry{
				FrameID: k, PeerFrameID: c.Anchor.Index, Distance: dfc,
				RatioToR: safeDiv(dfc, e.radius()), ClusterID: j, Prior: c.Prior, Gprob: e.gprob.Get(j),
			})
		}

		if dfc < e.radius() {
			assigned = j
			c.Prior += e.cfg.PriorIncrement
			return true
		}

		// 2-point triangle pruning.
		for _, ell := range e.Store.Active() {
			if !active[ell] || ell == j {
				continue
			}
			dcc := e.Cache.Get(j, ell)
			if abs(dcc-dfc) > e.radius() {
				active[ell] = false
				pruned++
			}
		}

		// Gprob reweight.
		if e.cfg.Gprob && countActive(active) > 1 {
			ReweightGprob(e.Visitors, e.Records, e.Store, e.gprob, j, k, dfc, e.radius(), e.cfg.FmatchA, e.cfg.FmatchB, e.cfg.MaxGprobVisitors, func(id int) bool { return active[id] })
			for id := range active {
				recompute(id)
			}
		}

		// 4-point pruning.
		if e.cfg.TE4 {
			for _, p := range probes {
				if p.ClusterID == j {
					continue
				}
				for _, ell := range e.Store.Active() {
					if !active[ell] || ell == j || ell == p.ClusterID {
						continue
					}
					bound := geom.MinDist4(dfc, p.Distance, e.Cache.Get(j, p.ClusterID), e.Cache.Get(j, ell), e.Cache.Get(p.ClusterID, ell))
					if bound > e.radius() {
						active[ell] = false
						pruned++
					}
				}
			}
		}

		// 5-point pruning: every triple of probed anchors this frame forms a
		// 3-point reference frame for geom.MinDist5.
		if e.cfg.TE5 && len(probes) >= 3 {
			for a := 0; a < len(probes); a++ {
				for b := a + 1; b < len(probes); b++ {
					for c := b + 1; c < len(probes); c++ {
						c1, c2, c3 := probes[a].ClusterID, probes[b].ClusterID, probes[c].ClusterID
						for _, ell := range e.Store.Active() {
							if !active[ell] || ell == c1 || ell == c2 || ell == c3 {
								continue
							}
							bound := geom.MinDist5(
								e.Cache.Get(c1, c2), e.Cache.Get(c1, c3), e.Cache.Get(c2, c3),
								probes[a].Distance, probes[b].Distance, probes[c].Distance,
								e.Cache.Get(c1, ell), e.Cache.Get(c2, ell), e.Cache.Get(c3, ell),
							)
							if bound > e.radius() {
								active[ell] = false
								pruned++
							}
						}
					}
				}
			}
		}

		active[j] = false
		return false
	}

	// 5. Optional prediction prefix.
	if e.cfg.Prediction.PatternLen > 0 {
		for _, pid := range PredictCandidates(e.assignments, len(e.assignments), e.cfg.Prediction) {
			if !active[pid] {
				continue
			}
			if probeOne(pid) {
				break
			}
		}
	}

	// 6. Probe loop.
	for assigned < 0 {
		j := highestScoring(active, score)
		if j < 0 {
			break
		}
		if probeOne(j) {
			break
		}
	}

	e.probedFrames++
	e.candidates += int64(len(active))
	e.prunedFrames += int64(pruned)

	result := StepResult{FrameIndex: k, ProbeCount: len(probes), PrunedCount: pruned}

	if assigned >= 0 {
		e.Records.Append(FrameRecord{Index: k, Assignment: assigned, Probes: probes})
		e.commit(assigned)
		result.Assignment = assigned
		result.StepDuration = time.Since(start)
		if e.metrics != nil {
			e.metrics.ClustersPruned.Add(float64(pruned))
		}
		return result, nil
	}

	// 7/8. New cluster or overflow.
	if e.Store.ActiveCount() < e.cfg.MaxClusters {
		c := e.Store.Add(f, 1.0)
		e.Cache.Populate(c.ID)
		e.Visitors.Record(c.ID, k)
		probes = append(probes, Probe{ClusterID: c.ID, Distance: 0})
		e.Records.Append(FrameRecord{Index: k, Assignment: c.ID, Probes: probes})
		e.commit(c.ID)
		result.Assignment = c.ID
		result.Created = true
		if e.metrics != nil {
			e.metrics.ClustersCreated.Inc()
			e.metrics.ClustersPruned.Add(float64(pruned))
		}
		result.StepDuration = time.Since(start)
		return result, nil
	}

	result.Overflowed = true
	if e.metrics != nil {
		e.metrics.OverflowEvents.Inc()
	}
	switch e.cfg.OverflowStrategy {
	case OverflowStop:
		result.StepDuration = time.Since(start)
		return result, ErrMaxClusters
	case OverflowDiscard:
		ov := &Overflow{Store: e.Store, Visitors: e.Visitors, Transition: e.Transition}
		retired := ov.Discard(e.cfg.DiscardFraction)
		for _, id := range retired {
			e.Records.MarkAllDiscardedForCluster(id)
		}
		result.DiscardedCount = len(retired)
		if e.metrics != nil {
			e.metrics.ClustersDiscarded.Add(float64(len(retired)))
		}
		c := e.Store.Add(f, 1.0)
		e.Cache.Populate(c.ID)
		e.Visitors.Record(c.ID, k)
		probes = append(probes, Probe{ClusterID: c.ID, Distance: 0})
		e.Records.Append(FrameRecord{Index: k, Assignment: c.ID, Probes: probes})
		e.commit(c.ID)
		result.Assignment = c.ID
		result.Created = true
		if e.metrics != nil {
			e.metrics.ClustersCreated.Inc()
		}
	case OverflowMerge:
		ov := &Overflow{Store: e.Store, Visitors: e.Visitors, Transition: e.Transition}
		survivor, _ := ov.Merge(e.Cache)
		if survivor < 0 {
			result.StepDuration = time.Since(start)
			return result, ErrMaxClusters
		}
		result.MergedCount = 1
		if e.metrics != nil {
			e.metrics.ClustersMerged.Inc()
		}
		c := e.Store.Add(f, 1.0)
		e.Cache.Populate(c.ID)
		e.Visitors.Record(c.ID, k)
		probes = append(probes, Probe{ClusterID: c.ID, Distance: 0})
		e.Records.Append(FrameRecord{Index: k, Assignment: c.ID, Probes: probes})
		e.commit(c.ID)
		result.Assignment = c.ID
		result.Created = true
		if e.metrics != nil {
			e.metrics.ClustersCreated.Inc()
		}
	}

	result.StepDuration = time.Since(start)
	return result, nil
}

// commit performs spec.md §4.1 step 9: transition-matrix increment and
// prev update, shared by every exit path of Step.
func (e *Engine) commit(assignment int) {
	if e.prev >= 0 {
		e.Transition.Increment(e.prev, assignment)
	}
	e.assignments = append(e.assignments, assignment)
	e.prev = assignment
}

func (e *Engine) normalizePriors() {
	var sum float64
	for _, id := range e.Store.Active() {
		sum += e.Store.Get(id).Prior
	}
	if sum <= 0 {
		return
	}
	for _, id := range e.Store.Active() {
		c := e.Store.Get(id)
		c.Prior /= sum
	}
}

// PrunedFraction returns the running fraction of candidates pruned without
// measurement, used by the run-log histogram (spec.md §6).
func (e *Engine) PrunedFraction() float64 {
	if e.candidates == 0 {
		return 0
	}
	return float64(e.prunedFrames) / float64(e.candidates)
}

func highestScoring(active map[int]bool, score []float64) int {
	best := -1
	bestScore := -1.0
	ids := make([]int, 0, len(active))
	for id, ok := range active {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	for _, id := range ids {
		if score[id] > bestScore {
			bestScore = score[id]
			best = id
		}
	}
	return best
}

func countActive(active map[int]bool) int {
	n := 0
	for _, ok := range active {
		if ok {
			n++
		}
	}
	return n
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
