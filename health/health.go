// Package health defines the health/anomaly collaborator contract and a
// built-in rolling-baseline evaluator. The engine consumes assessments as
// opaque, already-computed signals; any implementation of Evaluator can
// replace the built-in one.
package health

import (
	"context"

	"github.com/vinayprograms/fleetkit/report"
)

// RiskLevel is the coarse health classification derived from health score.
type RiskLevel string

const (
	RiskNormal   RiskLevel = "NORMAL"
	RiskWarning  RiskLevel = "WARNING"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders risk levels by severity for transition comparisons.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskWarning:
		return 1
	case RiskCritical:
		return 2
	default:
		return 0
	}
}

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	return string(r)
}

// Factor is a metric dimension that can drive an anomaly.
type Factor string

const (
	FactorCPU     Factor = "CPU"
	FactorMemory  Factor = "MEMORY"
	FactorDisk    Factor = "DISK"
	FactorNetwork Factor = "NETWORK"
)

// RootCause attributes an anomaly to a dominant factor with a contributor
// breakdown. Contributors map each factor to its share of the combined
// deviation; shares sum to 1.
type RootCause struct {
	Label        Factor             `json:"label"`
	Confidence   float64            `json:"confidence"`
	Contributors map[Factor]float64 `json:"contributors"`
}

// Assessment is one evaluated health signal for a node.
type Assessment struct {
	HealthScore  float64    `json:"health_score"` // 0..100
	RiskLevel    RiskLevel  `json:"risk_level"`
	AnomalyScore float64    `json:"anomaly_score"` // 0..1
	RootCause    *RootCause `json:"root_cause,omitempty"`
}

// Evaluator turns raw metrics into a health assessment. Implementations may
// keep per-node streaming state; calls for the same node arrive in report
// order. The engine bounds each call with a context timeout.
type Evaluator interface {
	Evaluate(ctx context.Context, nodeID string, m report.Metrics) (Assessment, error)
}

// RiskForScore classifies a health score into a risk level:
// NORMAL at 80 and above, WARNING from 50 to 80, CRITICAL below 50.
func RiskForScore(score float64) RiskLevel {
	switch {
	case score >= 80:
		return RiskNormal
	case score >= 50:
		return RiskWarning
	default:
		return RiskCritical
	}
}

// ScoreForAnomaly converts an anomaly score in [0,1] into a health score
// in [0,100].
func ScoreForAnomaly(anomaly float64) float64 {
	score := 100 - anomaly*100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
