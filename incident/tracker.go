// Package incident records risk-level transitions. A transition is the
// unit of auditability: the tracker emits one incident per change, keeps
// a bounded global timeline, and optionally feeds a read-side search
// index for operators.
package incident

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/fleetkit/health"
	"github.com/vinayprograms/fleetkit/logging"
)

// DefaultCapacity is the default bound on the global timeline.
const DefaultCapacity = 50

// Incident is one risk-level transition for a node.
type Incident struct {
	ID          string           `json:"id"`
	NodeID      string           `json:"node_id"`
	From        health.RiskLevel `json:"from"`
	To          health.RiskLevel `json:"to"`
	Timestamp   time.Time        `json:"timestamp"`
	HealthScore float64          `json:"health_score"`
	RootCause   string           `json:"root_cause,omitempty"`
}

// Tracker keeps per-node current risk and the bounded incident timeline.
type Tracker struct {
	capacity int
	log      *logging.Logger

	mu       sync.Mutex
	current  map[string]health.RiskLevel
	timeline []Incident
}

// New creates a tracker. A capacity of zero or less uses the default.
func New(capacity int, log *logging.Logger) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logging.New()
	}
	return &Tracker{
		capacity: capacity,
		log:      log.WithComponent("incident"),
		current:  make(map[string]health.RiskLevel),
	}
}

// Record compares the risk level against the node's stored one (NORMAL
// for unseen nodes) and emits an incident on change. The stored level
// always updates, so a flap produces one incident per direction.
func (t *Tracker) Record(nodeID string, risk health.RiskLevel, score float64, rootCause string, now time.Time) (*Incident, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.current[nodeID]
	if !ok {
		prev = health.RiskNormal
	}
	t.current[nodeID] = risk

	if risk == prev {
		return nil, false
	}

	inc := Incident{
		ID:          uuid.New().String(),
		NodeID:      nodeID,
		From:        prev,
		To:          risk,
		Timestamp:   now,
		HealthScore: score,
		RootCause:   rootCause,
	}
	t.timeline = append(t.timeline, inc)
	if len(t.timeline) > t.capacity {
		t.timeline = t.timeline[len(t.timeline)-t.capacity:]
	}

	t.log.IncidentRecorded(nodeID, string(prev), string(risk))
	return &inc, true
}

// Current returns the stored risk level for a node, NORMAL if unseen.
func (t *Tracker) Current(nodeID string) health.RiskLevel {
	t.mu.Lock()
	defer t.mu.Unlock()

	if risk, ok := t.current[nodeID]; ok {
		return risk
	}
	return health.RiskNormal
}

// Timeline returns up to limit recent incidents, newest first. A limit
// of zero or less returns everything retained.
func (t *Tracker) Timeline(limit int) []Incident {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.timeline)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Incident, limit)
	for i := 0; i < limit; i++ {
		out[i] = t.timeline[n-1-i]
	}
	return out
}

// ForNode returns the retained incidents for one node, newest first.
func (t *Tracker) ForNode(nodeID string) []Incident {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Incident
	for i := len(t.timeline) - 1; i >= 0; i-- {
		if t.timeline[i].NodeID == nodeID {
			out = append(out, t.timeline[i])
		}
	}
	return out
}
