package decision

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/fleetkit/health"
	"github.com/vinayprograms/fleetkit/history"
	"github.com/vinayprograms/fleetkit/report"
)

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return e
}

// window builds observations from health scores, classifying risk the way
// the evaluator does.
func window(scores ...float64) []history.Observation {
	obs := make([]history.Observation, len(scores))
	for i, s := range scores {
		obs[i] = history.Observation{
			HealthScore: s,
			RiskLevel:   health.RiskForScore(s),
		}
	}
	return obs
}

func input(scores ...float64) Input {
	w := window(scores...)
	last := w[len(w)-1]
	return Input{
		NodeID: "node-1",
		Window: w,
		Assessment: health.Assessment{
			HealthScore: last.HealthScore,
			RiskLevel:   last.RiskLevel,
		},
		Now: time.Now(),
	}
}

func hasReason(d Decision, substr string) bool {
	for _, r := range d.ReasoningChain {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestDecide_InsufficientData(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	in := input(40, 40)
	// Even a critical node with an eligible action stays NO_ACTION below
	// the sample minimum.
	in.Healing = &HealingSignal{EligibleAction: "restart_service"}

	d := e.Decide(in)
	if d.Kind != KindNoAction || !d.InsufficientData {
		t.Errorf("Decide = %s insufficient=%v, want NO_ACTION with insufficient data",
			d.Kind, d.InsufficientData)
	}
	if d.Confidence > 0.3 {
		t.Errorf("Confidence = %v, want low for insufficient data", d.Confidence)
	}
	if d.Trend != TrendStable || d.TrendVelocity != 0 {
		t.Errorf("Trend = %s velocity=%v, want STABLE 0", d.Trend, d.TrendVelocity)
	}
}

func TestDecide_EscalateOnRiskRise(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	d := e.Decide(input(82, 81, 79))
	if d.Kind != KindEscalate {
		t.Fatalf("Kind = %s, want ESCALATE, chain %v", d.Kind, d.ReasoningChain)
	}
	if !hasReason(d, "risk escalated NORMAL->WARNING") {
		t.Errorf("chain %v lacks escalation entry", d.ReasoningChain)
	}
	if !hasReason(d, "selected ESCALATE") {
		t.Errorf("chain %v lacks selection entry", d.ReasoningChain)
	}
}

func TestDecide_EscalateOnPersistentDegradation(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	d := e.Decide(input(60, 60, 60, 60, 60))
	if d.Kind != KindEscalate {
		t.Fatalf("Kind = %s, want ESCALATE for persistent WARNING", d.Kind)
	}
	if d.Persistence != 5 {
		t.Errorf("Persistence = %d, want 5", d.Persistence)
	}
	if d.Trend != TrendStable {
		t.Errorf("Trend = %s, want STABLE for flat scores", d.Trend)
	}
}

func TestDecide_DeEscalateOnRecovery(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	d := e.Decide(input(45, 45, 60))
	if d.Kind != KindDeEscalate {
		t.Fatalf("Kind = %s, want DE_ESCALATE, chain %v", d.Kind, d.ReasoningChain)
	}
	if !hasReason(d, "risk recovered CRITICAL->WARNING") {
		t.Errorf("chain %v lacks recovery entry", d.ReasoningChain)
	}
	if d.Trend != TrendImproving {
		t.Errorf("Trend = %s, want IMPROVING", d.Trend)
	}
}

func TestDecide_AutoHeal(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	in := input(40, 40, 40)
	in.Healing = &HealingSignal{EligibleAction: "clear_cache"}

	d := e.Decide(in)
	if d.Kind != KindAutoHeal {
		t.Fatalf("Kind = %s, want AUTO_HEAL", d.Kind)
	}
	if d.HealingAction != "clear_cache" {
		t.Errorf("HealingAction = %q", d.HealingAction)
	}
}

func TestDecide_InFlightSuppressesAutoHeal(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	in := input(40, 40, 40, 40, 40)
	in.Healing = &HealingSignal{EligibleAction: "clear_cache", InFlight: true}

	d := e.Decide(in)
	if d.Kind == KindAutoHeal {
		t.Fatal("Kind = AUTO_HEAL while an action is in flight")
	}
	if d.Kind != KindEscalate {
		t.Errorf("Kind = %s, want ESCALATE for persistent CRITICAL", d.Kind)
	}
}

func TestDecide_HealerFailureDegradesToNoAction(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	in := input(40, 40, 40)
	in.Healing = &HealingSignal{Err: errors.New("healer timeout")}

	d := e.Decide(in)
	if d.Kind != KindNoAction || !d.Degraded {
		t.Errorf("Decide = %s degraded=%v, want degraded NO_ACTION", d.Kind, d.Degraded)
	}
	if !hasReason(d, "healing collaborator unavailable") {
		t.Errorf("chain %v lacks collaborator entry", d.ReasoningChain)
	}
}

func TestDecide_PredictFailureOnSteepDecline(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	d := e.Decide(input(95, 90, 84, 77, 70))
	if d.Kind != KindPredictFailure {
		t.Fatalf("Kind = %s, want PREDICT_FAILURE, chain %v", d.Kind, d.ReasoningChain)
	}
	if d.Trend != TrendCriticalDecline {
		t.Errorf("Trend = %s, want CRITICAL_DECLINE", d.Trend)
	}
	if d.TrendVelocity >= 0 {
		t.Errorf("TrendVelocity = %v, want negative", d.TrendVelocity)
	}
}

func TestDecide_GentleDeclineIsNotPredicted(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	// Half a point per sample never clears the degrading band.
	d := e.Decide(input(90, 89.5, 89, 88.5, 88))
	if d.Kind == KindPredictFailure {
		t.Errorf("Kind = PREDICT_FAILURE for gentle decline, chain %v", d.ReasoningChain)
	}
	if d.Trend != TrendStable {
		t.Errorf("Trend = %s, want STABLE inside the bands", d.Trend)
	}
}

func TestClassifyBands(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	tests := []struct {
		velocity float64
		want     Trend
	}{
		{-5, TrendCriticalDecline},
		{-3.01, TrendCriticalDecline},
		{-3, TrendDegrading},
		{-1.5, TrendDegrading},
		{-1, TrendStable},
		{0, TrendStable},
		{1, TrendStable},
		{1.5, TrendImproving},
	}

	for _, tt := range tests {
		if got := e.classify(tt.velocity); got != tt.want {
			t.Errorf("classify(%v) = %v, want %v", tt.velocity, got, tt.want)
		}
	}
}

func TestSlope(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"flat", []float64{80, 80, 80}, 0},
		{"linear decline", []float64{90, 85, 80, 75, 70}, -5},
		{"linear climb", []float64{50, 55, 60}, 5},
		{"too short", []float64{80}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := slope(tt.scores); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("slope(%v) = %v, want %v", tt.scores, got, tt.want)
			}
		})
	}
}

// For a fixed trend, confidence never decreases as persistence grows.
func TestConfidence_MonotoneInPersistence(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	in := Input{
		WindowCap:  20,
		Window:     window(60, 60, 60, 60, 60),
		Assessment: health.Assessment{AnomalyScore: 0.3},
	}

	prev := -1.0
	for p := 0; p <= 10; p++ {
		d := Decision{Trend: TrendStable, Persistence: p}
		c := e.confidence(&d, in)
		if c < prev {
			t.Fatalf("confidence dropped from %v to %v at persistence %d", prev, c, p)
		}
		prev = c
	}
}

func TestDecide_ContributingFactors(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	in := input(60, 60, 60)
	in.Assessment.RootCause = &health.RootCause{
		Label: health.FactorCPU,
		Contributors: map[health.Factor]float64{
			health.FactorCPU:    0.55,
			health.FactorMemory: 0.30,
			health.FactorDisk:   0.15,
		},
	}

	d := e.Decide(in)
	want := []health.Factor{health.FactorCPU, health.FactorMemory}
	if len(d.ContributingFactors) != len(want) {
		t.Fatalf("ContributingFactors = %v, want %v", d.ContributingFactors, want)
	}
	for i := range want {
		if d.ContributingFactors[i] != want[i] {
			t.Errorf("ContributingFactors = %v, want %v", d.ContributingFactors, want)
		}
	}
}

func TestDecide_SustainedCPUWarnsOncePerEpisode(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	start := time.Now()

	decide := func(at time.Time, cpu float64) Decision {
		in := input(85, 85, 85)
		in.Now = at
		in.CPU = &report.CPUMetrics{UsagePercent: cpu}
		return e.Decide(in)
	}

	if d := decide(start, 97); hasReason(d, "cpu sustained") {
		t.Error("warned before the sustain duration elapsed")
	}
	if d := decide(start.Add(20*time.Second), 97); !hasReason(d, "cpu sustained") {
		t.Error("no warning after 20s of sustained high CPU")
	}
	if d := decide(start.Add(40*time.Second), 97); hasReason(d, "cpu sustained") {
		t.Error("warned twice within one episode")
	}

	// Episode ends, a new sustained period warns again.
	decide(start.Add(50*time.Second), 30)
	decide(start.Add(60*time.Second), 97)
	if d := decide(start.Add(80*time.Second), 97); !hasReason(d, "cpu sustained") {
		t.Error("no warning for a second episode")
	}
}

func TestDegrade_EntersHistory(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	d := e.Degrade("node-1", time.Now(), "health collaborator unavailable")
	if d.Kind != KindNoAction || !d.Degraded || !d.InsufficientData {
		t.Errorf("Degrade = %s degraded=%v insufficient=%v, want degraded NO_ACTION",
			d.Kind, d.Degraded, d.InsufficientData)
	}
	if !hasReason(d, "health collaborator unavailable") {
		t.Errorf("chain %v lacks the reason", d.ReasoningChain)
	}

	got := e.History(0)
	if len(got) != 1 || !got[0].Degraded {
		t.Errorf("History = %+v, want the degraded decision retained", got)
	}
}

func TestHistory_BoundAndOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryCapacity = 5
	e := newEngine(t, cfg)

	for i := 0; i < 8; i++ {
		in := input(90, 90, 90)
		in.Now = time.Unix(int64(i), 0)
		e.Decide(in)
	}

	all := e.History(0)
	if len(all) != 5 {
		t.Fatalf("History(0) len = %d, want 5", len(all))
	}
	if !all[0].Timestamp.After(all[1].Timestamp) {
		t.Error("History not newest first")
	}
	if got := e.History(2); len(got) != 2 {
		t.Errorf("History(2) len = %d, want 2", len(got))
	}
}

func TestNew_RejectsSingleSampleMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 1
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("New accepted a one-sample minimum")
	}
}

// The smallest accepted minimum still leaves a previous observation for
// the risk comparison once the window clears it.
func TestDecide_TwoSampleMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 2
	e := newEngine(t, cfg)

	d := e.Decide(input(60))
	if d.Kind != KindNoAction || !d.InsufficientData {
		t.Errorf("one sample: Decide = %s insufficient=%v, want insufficient NO_ACTION",
			d.Kind, d.InsufficientData)
	}

	d = e.Decide(input(82, 79))
	if d.Kind != KindEscalate {
		t.Errorf("two samples: Kind = %s, want ESCALATE on risk rise, chain %v",
			d.Kind, d.ReasoningChain)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"inverted bands", func(c *Config) { c.CriticalDeclineVelocity = -0.5 }, true},
		{"positive degrading band", func(c *Config) { c.DegradingVelocity = 1 }, true},
		{"share above one", func(c *Config) { c.ShareThreshold = 1.5 }, true},
		{"negative samples", func(c *Config) { c.MinSamples = -1 }, true},
		{"single sample minimum", func(c *Config) { c.MinSamples = 1 }, true},
		{"zero minimum falls back to default", func(c *Config) { c.MinSamples = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
