// Package healing defines the remediation collaborator contract and a
// safe, simulated auto-healer. Healing is advisory: the decision engine
// asks what is possible, decides on its own, and notifies the healer of
// the outcome. The healer never mutates monitoring state.
package healing

import (
	"context"
	"time"

	"github.com/vinayprograms/fleetkit/decision"
	"github.com/vinayprograms/fleetkit/health"
)

// ActionStatus is the lifecycle state of a healing action.
type ActionStatus string

const (
	ActionRunning   ActionStatus = "RUNNING"
	ActionSucceeded ActionStatus = "SUCCEEDED"
	ActionFailed    ActionStatus = "FAILED"
	ActionEscalated ActionStatus = "ESCALATED_TO_HUMAN"
)

// Action is one healing attempt.
type Action struct {
	ID        string       `json:"id"`
	NodeID    string       `json:"node_id"`
	Name      string       `json:"name"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at,omitempty"`
	Status    ActionStatus `json:"status"`
}

// Healer is the remediation collaborator consulted by the engine.
type Healer interface {
	// Eligible returns the safe action available for the given root
	// cause, or "" when none applies.
	Eligible(ctx context.Context, nodeID string, rootCause health.Factor) (string, error)

	// InFlight reports whether a healing action is already running for
	// the node.
	InFlight(nodeID string) bool

	// Notify delivers a finished decision so the healer can execute
	// AUTO_HEAL actions and adapt its monitoring cadence.
	Notify(ctx context.Context, d decision.Decision) error
}
