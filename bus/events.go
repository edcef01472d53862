package bus

import (
	"encoding/json"
	"time"

	"github.com/vinayprograms/fleetkit/decision"
	"github.com/vinayprograms/fleetkit/incident"
	"github.com/vinayprograms/fleetkit/registry"
)

// Subject prefixes for the fleet event streams.
const (
	ConnectionSubjectPrefix = "fleet.connection."
	DecisionSubjectPrefix   = "fleet.decision."
	IncidentSubjectPrefix   = "fleet.incident."
)

// ConnectionSubject returns the subject for one node's connection events.
func ConnectionSubject(nodeID string) string {
	return ConnectionSubjectPrefix + nodeID
}

// DecisionSubject returns the subject for one node's decisions.
func DecisionSubject(nodeID string) string {
	return DecisionSubjectPrefix + nodeID
}

// IncidentSubject returns the subject for one node's incidents.
func IncidentSubject(nodeID string) string {
	return IncidentSubjectPrefix + nodeID
}

// ConnectionEvent is the payload published on connection transitions.
type ConnectionEvent struct {
	NodeID string                   `json:"node_id"`
	State  registry.ConnectionState `json:"state"`
	At     time.Time                `json:"at"`
}

// DecisionEvent is the payload published for each decision. Explanation
// is the one-line justification rendered after the decision was made.
type DecisionEvent struct {
	Decision    decision.Decision `json:"decision"`
	Explanation string            `json:"explanation,omitempty"`
}

// Publisher writes fleet events to a message bus.
type Publisher struct {
	bus MessageBus
}

// NewPublisher creates a publisher over the given bus.
func NewPublisher(b MessageBus) *Publisher {
	return &Publisher{bus: b}
}

// Connection publishes a connection transition.
func (p *Publisher) Connection(e ConnectionEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.bus.Publish(ConnectionSubject(e.NodeID), data)
}

// Decision publishes a decision with its explanation.
func (p *Publisher) Decision(e DecisionEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.bus.Publish(DecisionSubject(e.Decision.NodeID), data)
}

// Incident publishes a risk-level transition.
func (p *Publisher) Incident(inc incident.Incident) error {
	data, err := json.Marshal(inc)
	if err != nil {
		return err
	}
	return p.bus.Publish(IncidentSubject(inc.NodeID), data)
}
