package decision

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/vinayprograms/fleetkit/health"
	"github.com/vinayprograms/fleetkit/history"
	"github.com/vinayprograms/fleetkit/logging"
)

// criticalHealthScore is the band edge failure projections aim at. It
// matches the CRITICAL classification in the health package.
const criticalHealthScore = 50.0

// Confidence blend weights: signal agreement dominates, the rest splits
// between window fill and persistence saturation.
const (
	agreementWeight   = 0.5
	fillWeight        = 0.2
	persistenceWeight = 0.3

	insufficientConfidence = 0.2
)

// expectedAnomaly is the anomaly score each trend would predict. The
// closer the observed anomaly sits to it, the more the two signals agree.
var expectedAnomaly = map[Trend]float64{
	TrendCriticalDecline: 0.9,
	TrendDegrading:       0.7,
	TrendStable:          0.3,
	TrendImproving:       0.2,
}

// Engine evaluates nodes. It keeps only episode bookkeeping per node
// (sustained-CPU tracking, degradation counter) and a bounded global
// decision log; everything else comes in through Input.
type Engine struct {
	cfg Config
	log *logging.Logger

	mu      sync.Mutex
	nodes   map[string]*nodeState
	history []Decision
}

type nodeState struct {
	cpuHighSince time.Time
	cpuWarned    bool
	degradation  int
	recovery     int
}

// New creates a decision engine.
func New(cfg Config, log *logging.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	defaults := DefaultConfig()
	if cfg.MinSamples == 0 {
		cfg.MinSamples = defaults.MinSamples
	}
	if cfg.TrendSamples == 0 {
		cfg.TrendSamples = defaults.TrendSamples
	}
	if cfg.CriticalDeclineVelocity == 0 {
		cfg.CriticalDeclineVelocity = defaults.CriticalDeclineVelocity
	}
	if cfg.DegradingVelocity == 0 {
		cfg.DegradingVelocity = defaults.DegradingVelocity
	}
	if cfg.ImprovingVelocity == 0 {
		cfg.ImprovingVelocity = defaults.ImprovingVelocity
	}
	if cfg.PersistenceFloor == 0 {
		cfg.PersistenceFloor = defaults.PersistenceFloor
	}
	if cfg.HorizonSamples == 0 {
		cfg.HorizonSamples = defaults.HorizonSamples
	}
	if cfg.ShareThreshold == 0 {
		cfg.ShareThreshold = defaults.ShareThreshold
	}
	if cfg.HistoryCapacity == 0 {
		cfg.HistoryCapacity = defaults.HistoryCapacity
	}
	if cfg.SustainedCPUThreshold == 0 {
		cfg.SustainedCPUThreshold = defaults.SustainedCPUThreshold
	}
	if cfg.SustainedCPUDuration == 0 {
		cfg.SustainedCPUDuration = defaults.SustainedCPUDuration
	}
	if log == nil {
		log = logging.New()
	}

	return &Engine{
		cfg:   cfg,
		log:   log.WithComponent("decision"),
		nodes: make(map[string]*nodeState),
	}, nil
}

// Decide evaluates one node. Input.Window must already contain the
// current observation as its last element.
func (e *Engine) Decide(in Input) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.nodes[in.NodeID]
	if st == nil {
		st = &nodeState{}
		e.nodes[in.NodeID] = st
	}

	d := Decision{
		NodeID:      in.NodeID,
		Trend:       TrendStable,
		HealthScore: in.Assessment.HealthScore,
		RiskLevel:   in.Assessment.RiskLevel,
		RootCause:   in.Assessment.RootCause,
		Timestamp:   in.Now,
	}

	n := len(in.Window)
	if n < e.cfg.MinSamples {
		d.Kind = KindNoAction
		d.InsufficientData = true
		d.Confidence = insufficientConfidence * fillRatio(n, in.WindowCap)
		d.ReasoningChain = []string{
			fmt.Sprintf("samples=%d below minimum=%d", n, e.cfg.MinSamples),
			"selected NO_ACTION",
		}
		e.record(d)
		return d
	}

	d.TrendVelocity = slope(tailScores(in.Window, e.cfg.TrendSamples))
	d.Trend = e.classify(d.TrendVelocity)
	d.Persistence = persistence(in.Window, in.Assessment.RiskLevel)
	d.ContributingFactors = contributing(in.Assessment.RootCause, e.cfg.ShareThreshold)

	cur := in.Assessment.RiskLevel
	prev := in.Window[n-2].RiskLevel
	riskRose := cur.Rank() > prev.Rank()
	riskFell := cur.Rank() < prev.Rank()

	chain := []string{fmt.Sprintf("trend=%s velocity=%.2f", d.Trend, d.TrendVelocity)}
	if riskRose {
		chain = append(chain, fmt.Sprintf("risk escalated %s->%s", prev, cur))
	}
	if riskFell {
		chain = append(chain, fmt.Sprintf("risk recovered %s->%s", prev, cur))
	}
	chain = append(chain, fmt.Sprintf("persistence=%d", d.Persistence))

	d.Degradation = st.trackDegradation(cur, riskFell, d.Trend)

	if warn := st.trackCPU(in, e.cfg); warn != "" {
		chain = append(chain, warn)
	}

	healerFailed := in.Healing != nil && in.Healing.Err != nil

	switch {
	case healerFailed && cur == health.RiskCritical:
		d.Kind = KindNoAction
		d.Degraded = true
		chain = append(chain, "healing collaborator unavailable")
	case cur == health.RiskCritical && in.Healing != nil &&
		in.Healing.EligibleAction != "" && !in.Healing.InFlight:
		d.Kind = KindAutoHeal
		d.HealingAction = in.Healing.EligibleAction
		chain = append(chain, "eligible healing action "+in.Healing.EligibleAction)
	case e.predictsFailure(&d):
		d.Kind = KindPredictFailure
		chain = append(chain, fmt.Sprintf("projected to reach critical within %d samples",
			e.cfg.HorizonSamples))
	case riskRose || (cur.Rank() >= health.RiskWarning.Rank() && d.Persistence > e.cfg.PersistenceFloor):
		d.Kind = KindEscalate
	case riskFell && (d.Trend == TrendImproving || d.Trend == TrendStable):
		d.Kind = KindDeEscalate
	default:
		d.Kind = KindNoAction
	}

	d.Confidence = e.confidence(&d, in)
	if d.Degraded {
		d.Confidence /= 2
	}

	d.ReasoningChain = append(chain, fmt.Sprintf("selected %s", d.Kind))
	e.record(d)
	return d
}

// Degrade records the conservative stand-in for a cycle whose health
// signal never arrived and returns it. The decision enters the same
// bounded log Decide feeds.
func (e *Engine) Degrade(nodeID string, now time.Time, reason string) Decision {
	d := Decision{
		NodeID:           nodeID,
		Kind:             KindNoAction,
		Trend:            TrendStable,
		Confidence:       insufficientConfidence / 2,
		InsufficientData: true,
		Degraded:         true,
		ReasoningChain:   []string{reason, "selected NO_ACTION"},
		Timestamp:        now,
	}

	e.mu.Lock()
	e.record(d)
	e.mu.Unlock()
	return d
}

// History returns up to limit recent decisions, newest first. A limit of
// zero or less returns everything retained.
func (e *Engine) History(limit int) []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Decision, limit)
	for i := 0; i < limit; i++ {
		out[i] = e.history[n-1-i]
	}
	return out
}

func (e *Engine) record(d Decision) {
	e.history = append(e.history, d)
	if len(e.history) > e.cfg.HistoryCapacity {
		e.history = e.history[len(e.history)-e.cfg.HistoryCapacity:]
	}
	e.log.DecisionMade(d.NodeID, string(d.Kind), d.Confidence)
}

func (e *Engine) classify(velocity float64) Trend {
	switch {
	case velocity < e.cfg.CriticalDeclineVelocity:
		return TrendCriticalDecline
	case velocity < e.cfg.DegradingVelocity:
		return TrendDegrading
	case velocity > e.cfg.ImprovingVelocity:
		return TrendImproving
	default:
		return TrendStable
	}
}

// predictsFailure reports whether the projected decline reaches the
// critical band within the horizon.
func (e *Engine) predictsFailure(d *Decision) bool {
	declining := d.Trend == TrendCriticalDecline ||
		(d.Trend == TrendDegrading && d.Persistence >= e.cfg.PersistenceFloor)
	if !declining || d.TrendVelocity >= 0 {
		return false
	}

	distance := d.HealthScore - criticalHealthScore
	if distance <= 0 {
		return true
	}
	return distance/-d.TrendVelocity <= float64(e.cfg.HorizonSamples)
}

// confidence blends signal agreement, window fill, and a saturating
// persistence term. For a fixed trend it never decreases as persistence
// grows.
func (e *Engine) confidence(d *Decision, in Input) float64 {
	agreement := 1 - math.Abs(in.Assessment.AnomalyScore-expectedAnomaly[d.Trend])
	if agreement < 0 {
		agreement = 0
	}

	fill := fillRatio(len(in.Window), in.WindowCap)
	saturation := float64(d.Persistence) / float64(d.Persistence+e.cfg.PersistenceFloor)

	c := agreementWeight*agreement + fillWeight*fill + persistenceWeight*saturation
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// trackDegradation maintains the per-node degradation counter. Two
// consecutive recovery cycles walk it back by one.
func (st *nodeState) trackDegradation(cur health.RiskLevel, riskFell bool, trend Trend) int {
	switch {
	case riskFell || trend == TrendImproving:
		st.recovery++
		if st.recovery >= recoveryCyclesForDecrement {
			if st.degradation > 0 {
				st.degradation--
			}
			st.recovery = 0
		}
	case cur != health.RiskNormal:
		st.degradation++
		st.recovery = 0
	default:
		st.recovery = 0
	}
	return st.degradation
}

// trackCPU implements the once-per-episode sustained-CPU warning.
func (st *nodeState) trackCPU(in Input, cfg Config) string {
	if in.CPU == nil {
		return ""
	}

	if in.CPU.UsagePercent < cfg.SustainedCPUThreshold {
		st.cpuHighSince = time.Time{}
		st.cpuWarned = false
		return ""
	}

	if st.cpuHighSince.IsZero() {
		st.cpuHighSince = in.Now
	}
	if st.cpuWarned || in.Now.Sub(st.cpuHighSince) < cfg.SustainedCPUDuration {
		return ""
	}
	st.cpuWarned = true
	return fmt.Sprintf("cpu sustained at or above %.0f%% for %s",
		cfg.SustainedCPUThreshold, cfg.SustainedCPUDuration)
}

// slope fits a least-squares line through the scores and returns its
// gradient in health points per sample.
func slope(scores []float64) float64 {
	k := len(scores)
	if k < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range scores {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := float64(k)*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (float64(k)*sumXY - sumX*sumY) / denom
}

func tailScores(window []history.Observation, n int) []float64 {
	if n > len(window) {
		n = len(window)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = window[len(window)-n+i].HealthScore
	}
	return out
}

// persistence counts the consecutive most-recent observations sharing the
// current risk level.
func persistence(window []history.Observation, cur health.RiskLevel) int {
	count := 0
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].RiskLevel != cur {
			break
		}
		count++
	}
	return count
}

// contributing lists the factors whose contributor share clears the
// threshold, largest share first.
func contributing(rc *health.RootCause, threshold float64) []health.Factor {
	if rc == nil {
		return nil
	}

	var factors []health.Factor
	for f, share := range rc.Contributors {
		if share >= threshold {
			factors = append(factors, f)
		}
	}
	sort.Slice(factors, func(i, j int) bool {
		if rc.Contributors[factors[i]] != rc.Contributors[factors[j]] {
			return rc.Contributors[factors[i]] > rc.Contributors[factors[j]]
		}
		return factors[i] < factors[j]
	})
	return factors
}

func fillRatio(n, capacity int) float64 {
	if capacity <= 0 {
		return 1
	}
	ratio := float64(n) / float64(capacity)
	if ratio > 1 {
		return 1
	}
	return ratio
}
