package health

import (
	"context"
	"sync"

	"github.com/vinayprograms/fleetkit/report"
)

// Defaults for the rolling evaluator.
const (
	DefaultBaselineWindow   = 20
	DefaultCausePersistence = 5

	// minBaselineSamples is how many samples a metric needs before it
	// participates in deviation scoring.
	minBaselineSamples = 5
)

// Metric-aware weights. CPU is the primary concern; network rate
// fluctuations are mostly normal and weighted near zero.
var defaultWeights = map[Factor]float64{
	FactorCPU:     2.5,
	FactorMemory:  1.5,
	FactorDisk:    0.8,
	FactorNetwork: 0.1,
}

// RollingConfig configures the built-in evaluator.
type RollingConfig struct {
	// BaselineWindow is how many samples form the rolling baseline.
	// Default: 20.
	BaselineWindow int

	// CausePersistence is how many recent dominant causes are kept to
	// smooth root-cause attribution. Default: 5.
	CausePersistence int

	// Weights overrides the per-factor deviation weights. Nil keeps the
	// defaults.
	Weights map[Factor]float64
}

// DefaultRollingConfig returns configuration with sensible defaults.
func DefaultRollingConfig() RollingConfig {
	return RollingConfig{
		BaselineWindow:   DefaultBaselineWindow,
		CausePersistence: DefaultCausePersistence,
	}
}

// RollingEvaluator scores metrics against a per-node rolling baseline.
// Network counters are converted to a rate before scoring; cumulative
// byte counts would otherwise always deviate. Anomaly score is the
// dominant weighted deviation capped at 1; health is 100 minus anomaly
// scaled to [0,100]; root-cause attribution is smoothed over the recent
// dominant causes so one noisy sample cannot flip the label.
type RollingEvaluator struct {
	window      int
	persistence int
	weights     map[Factor]float64

	mu    sync.Mutex
	nodes map[string]*nodeBaseline
}

// nodeBaseline is the streaming state for one node.
type nodeBaseline struct {
	series       map[Factor][]float64
	prevNetBytes uint64
	hasPrevNet   bool
	recentCauses []Factor
}

// NewRollingEvaluator creates the built-in evaluator.
func NewRollingEvaluator(cfg RollingConfig) *RollingEvaluator {
	window := cfg.BaselineWindow
	if window <= 0 {
		window = DefaultBaselineWindow
	}
	persistence := cfg.CausePersistence
	if persistence <= 0 {
		persistence = DefaultCausePersistence
	}
	weights := cfg.Weights
	if weights == nil {
		weights = defaultWeights
	}

	return &RollingEvaluator{
		window:      window,
		persistence: persistence,
		weights:     weights,
		nodes:       make(map[string]*nodeBaseline),
	}
}

// Evaluate implements the Evaluator interface.
func (e *RollingEvaluator) Evaluate(ctx context.Context, nodeID string, m report.Metrics) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	nb := e.nodes[nodeID]
	if nb == nil {
		nb = &nodeBaseline{series: make(map[Factor][]float64)}
		e.nodes[nodeID] = nb
	}

	e.observe(nb, m)

	deviations := e.deviations(nb)
	if len(deviations) == 0 {
		// Not enough baseline yet; report healthy with no attribution.
		return Assessment{
			HealthScore:  100,
			RiskLevel:    RiskNormal,
			AnomalyScore: 0,
		}, nil
	}

	dominant, maxDev := maxDeviation(deviations)
	if maxDev <= 0 {
		// Everything sits on its baseline; nothing to attribute.
		return Assessment{
			HealthScore:  100,
			RiskLevel:    RiskNormal,
			AnomalyScore: 0,
		}, nil
	}

	anomaly := maxDev
	if anomaly > 1 {
		anomaly = 1
	}

	score := ScoreForAnomaly(anomaly)

	return Assessment{
		HealthScore:  score,
		RiskLevel:    RiskForScore(score),
		AnomalyScore: anomaly,
		RootCause:    e.attribute(nb, dominant, deviations),
	}, nil
}

// observe appends the sample to the per-factor series.
func (e *RollingEvaluator) observe(nb *nodeBaseline, m report.Metrics) {
	if m.CPU != nil {
		e.push(nb, FactorCPU, m.CPU.UsagePercent)
	}
	if m.Memory != nil {
		e.push(nb, FactorMemory, m.Memory.UsagePercent)
	}
	if m.Disk != nil {
		e.push(nb, FactorDisk, m.Disk.UsagePercent)
	}
	if m.Network != nil {
		current := m.Network.BytesReceived
		if nb.hasPrevNet && current >= nb.prevNetBytes {
			e.push(nb, FactorNetwork, float64(current-nb.prevNetBytes))
		}
		nb.prevNetBytes = current
		nb.hasPrevNet = true
	}
}

func (e *RollingEvaluator) push(nb *nodeBaseline, f Factor, value float64) {
	s := append(nb.series[f], value)
	if len(s) > e.window {
		s = s[len(s)-e.window:]
	}
	nb.series[f] = s
}

// deviations computes the weighted relative deviation of the latest sample
// from the rolling mean, per factor with enough baseline.
func (e *RollingEvaluator) deviations(nb *nodeBaseline) map[Factor]float64 {
	result := make(map[Factor]float64)
	for f, values := range nb.series {
		if len(values) < minBaselineSamples {
			continue
		}
		baseline := mean(values)
		if baseline <= 0 {
			continue
		}
		current := values[len(values)-1]
		raw := abs(current-baseline) / baseline
		result[f] = raw * e.weights[f]
	}
	return result
}

// attribute produces the smoothed root cause with contributor shares.
func (e *RollingEvaluator) attribute(nb *nodeBaseline, raw Factor, deviations map[Factor]float64) *RootCause {
	nb.recentCauses = append(nb.recentCauses, raw)
	if len(nb.recentCauses) > e.persistence {
		nb.recentCauses = nb.recentCauses[len(nb.recentCauses)-e.persistence:]
	}

	counts := make(map[Factor]int)
	for _, c := range nb.recentCauses {
		counts[c]++
	}
	dominant := raw
	best := 0
	for c, n := range counts {
		if n > best {
			dominant, best = c, n
		}
	}
	persistenceFactor := float64(best) / float64(len(nb.recentCauses))

	confidence := deviations[dominant]
	if confidence > 1 {
		confidence = 1
	}
	confidence *= persistenceFactor

	total := 0.0
	for _, d := range deviations {
		total += d
	}
	contributors := make(map[Factor]float64, len(deviations))
	if total > 0 {
		for f, d := range deviations {
			contributors[f] = d / total
		}
	}

	return &RootCause{
		Label:        dominant,
		Confidence:   confidence,
		Contributors: contributors,
	}
}

func maxDeviation(deviations map[Factor]float64) (Factor, float64) {
	var dominant Factor
	best := -1.0
	for f, d := range deviations {
		if d > best {
			dominant, best = f, d
		}
	}
	return dominant, best
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
