// Package decision turns a node's health trajectory into one of a small
// set of autonomous decisions with an auditable reasoning trail. The
// engine is deterministic: every decision is a function of the window
// snapshot, the current assessment, and already-fetched collaborator
// signals. It performs no I/O of its own.
package decision

import (
	"time"

	fkerrors "github.com/vinayprograms/fleetkit/errors"
	"github.com/vinayprograms/fleetkit/health"
	"github.com/vinayprograms/fleetkit/history"
	"github.com/vinayprograms/fleetkit/report"
)

// Kind is the action a decision selects.
type Kind string

const (
	KindNoAction       Kind = "NO_ACTION"
	KindEscalate       Kind = "ESCALATE"
	KindDeEscalate     Kind = "DE_ESCALATE"
	KindAutoHeal       Kind = "AUTO_HEAL"
	KindPredictFailure Kind = "PREDICT_FAILURE"
)

// Trend classifies the direction of a node's health trajectory.
type Trend string

const (
	TrendStable          Trend = "STABLE"
	TrendImproving       Trend = "IMPROVING"
	TrendDegrading       Trend = "DEGRADING"
	TrendCriticalDecline Trend = "CRITICAL_DECLINE"
)

// Defaults for the engine.
const (
	DefaultMinSamples      = 3
	DefaultTrendSamples    = 5
	DefaultPersistence     = 3
	DefaultHorizonSamples  = 30
	DefaultShareThreshold  = 0.25
	DefaultHistoryCapacity = 100

	DefaultSustainedCPUThreshold = 95.0
	DefaultSustainedCPUDuration  = 20 * time.Second

	// recoveryCyclesForDecrement is how many consecutive improving cycles
	// walk the degradation counter back by one.
	recoveryCyclesForDecrement = 2
)

// Velocity band defaults, in health points per sample.
const (
	DefaultCriticalDeclineVelocity = -3.0
	DefaultDegradingVelocity       = -1.0
	DefaultImprovingVelocity       = 1.0
)

// Config configures the decision engine.
type Config struct {
	// MinSamples is the window size below which only NO_ACTION with
	// InsufficientData is produced.
	MinSamples int

	// TrendSamples is how many recent observations feed the trend slope.
	TrendSamples int

	// CriticalDeclineVelocity, DegradingVelocity and ImprovingVelocity
	// are the band edges for trend classification.
	CriticalDeclineVelocity float64
	DegradingVelocity       float64
	ImprovingVelocity       float64

	// PersistenceFloor is the consecutive-cycle count that makes a
	// degraded risk level actionable.
	PersistenceFloor int

	// HorizonSamples bounds how far ahead a projected decline must reach
	// the critical band for PREDICT_FAILURE.
	HorizonSamples int

	// ShareThreshold is the minimum root-cause contributor share for a
	// factor to be listed as contributing.
	ShareThreshold float64

	// HistoryCapacity bounds the global decision log.
	HistoryCapacity int

	// SustainedCPUThreshold and SustainedCPUDuration control the
	// once-per-episode sustained-CPU warning.
	SustainedCPUThreshold float64
	SustainedCPUDuration  time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinSamples:              DefaultMinSamples,
		TrendSamples:            DefaultTrendSamples,
		CriticalDeclineVelocity: DefaultCriticalDeclineVelocity,
		DegradingVelocity:       DefaultDegradingVelocity,
		ImprovingVelocity:       DefaultImprovingVelocity,
		PersistenceFloor:        DefaultPersistence,
		HorizonSamples:          DefaultHorizonSamples,
		ShareThreshold:          DefaultShareThreshold,
		HistoryCapacity:         DefaultHistoryCapacity,
		SustainedCPUThreshold:   DefaultSustainedCPUThreshold,
		SustainedCPUDuration:    DefaultSustainedCPUDuration,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MinSamples < 0 || c.TrendSamples < 0 || c.HistoryCapacity < 0 {
		return fkerrors.InvalidConfig("decision counts must not be negative")
	}
	// A window that clears the minimum must still hold the previous
	// observation for the risk comparison.
	if c.MinSamples == 1 {
		return fkerrors.InvalidConfig("min samples must be at least 2 when set")
	}
	if c.CriticalDeclineVelocity > c.DegradingVelocity {
		return fkerrors.InvalidConfig("critical-decline band must sit below degrading band")
	}
	if c.DegradingVelocity > 0 || c.ImprovingVelocity < 0 {
		return fkerrors.InvalidConfig("degrading band must be negative and improving band positive")
	}
	if c.ShareThreshold < 0 || c.ShareThreshold > 1 {
		return fkerrors.InvalidConfig("share threshold must be within [0,1]")
	}
	return nil
}

// HealingSignal is the pre-fetched remediation collaborator answer for
// one evaluation. The engine never calls the healer itself.
type HealingSignal struct {
	// EligibleAction names the safe action available for the current
	// root cause. Empty means none.
	EligibleAction string

	// InFlight is true when a healing action is already running for the
	// node.
	InFlight bool

	// Err carries a collaborator timeout or failure. When set, the other
	// fields are meaningless.
	Err error
}

// Input is everything one evaluation depends on. Window already contains
// the current observation as its last element.
type Input struct {
	NodeID     string
	Window     []history.Observation
	WindowCap  int
	Assessment health.Assessment
	CPU        *report.CPUMetrics
	Healing    *HealingSignal
	Now        time.Time
}

// Decision is one evaluated outcome with its audit trail.
type Decision struct {
	NodeID              string            `json:"node_id"`
	Kind                Kind              `json:"kind"`
	Trend               Trend             `json:"trend"`
	TrendVelocity       float64           `json:"trend_velocity"`
	Persistence         int               `json:"persistence"`
	Degradation         int               `json:"degradation"`
	Confidence          float64           `json:"confidence"`
	HealthScore         float64           `json:"health_score"`
	RiskLevel           health.RiskLevel  `json:"risk_level"`
	RootCause           *health.RootCause `json:"root_cause,omitempty"`
	ContributingFactors []health.Factor   `json:"contributing_factors,omitempty"`
	ReasoningChain      []string          `json:"reasoning_chain"`
	HealingAction       string            `json:"healing_action,omitempty"`
	InsufficientData    bool              `json:"insufficient_data,omitempty"`
	Degraded            bool              `json:"degraded,omitempty"`
	Timestamp           time.Time         `json:"timestamp"`
}
