package registry

import (
	"sync"
	"time"

	"github.com/vinayprograms/fleetkit/history"
)

// Node is the monitoring record for one fleet node. All mutable state is
// guarded by the node's own lock; methods take and release it internally
// and never call out while holding it.
type Node struct {
	ID           string
	Hostname     string
	RegisteredAt time.Time

	mu           sync.Mutex
	state        ConnectionState
	lastSeenAt   time.Time
	lastSequence int64
	missed       int64
	activity     AgentStatus
	window       *history.Window
}

// NodeView is a point-in-time copy of a node's state for readers.
type NodeView struct {
	ID           string          `json:"node_id"`
	Hostname     string          `json:"hostname,omitempty"`
	State        ConnectionState `json:"state"`
	Status       AgentStatus     `json:"status"`
	LastSeenAt   time.Time       `json:"last_seen_at"`
	LastSequence int64           `json:"last_sequence"`
	Missed       int64           `json:"missed_heartbeats"`
	WindowLen    int             `json:"window_len"`
}

// Touch refreshes the node's last-seen time and reports whether this
// flipped the node back to CONNECTED.
func (n *Node) Touch(now time.Time) (reconnected bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.lastSeenAt = now
	if n.state == StateDisconnected {
		n.state = StateConnected
		return true
	}
	return false
}

// RecordHeartbeat applies sequence accounting for one heartbeat and
// returns how many beats were missed since the previous one. Replayed or
// out-of-order sequences leave state unchanged.
func (n *Node) RecordHeartbeat(sequence int64) (missed int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if sequence <= n.lastSequence {
		return 0
	}
	gap := sequence - (n.lastSequence + 1)
	if gap > 0 {
		n.missed += gap
		missed = gap
	}
	n.lastSequence = sequence
	return missed
}

// MarkDisconnectedIfStale transitions CONNECTED to DISCONNECTED when the
// node has not been seen within timeout. Returns true only on the
// transition, so callers emit at most one event per outage.
func (n *Node) MarkDisconnectedIfStale(now time.Time, timeout time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateConnected {
		return false
	}
	if now.Sub(n.lastSeenAt) <= timeout {
		return false
	}
	n.state = StateDisconnected
	return true
}

// Observe appends a health observation to the node's window.
func (n *Node) Observe(o history.Observation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.window.Push(o)
}

// WindowSnapshot returns a copy of the node's health window, oldest first.
func (n *Node) WindowSnapshot() []history.Observation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.window.Snapshot()
}

// SetActivity records the node's derived activity state. OFFLINE is
// derived from connection state, not stored here.
func (n *Node) SetActivity(s AgentStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s != StatusOffline {
		n.activity = s
	}
}

// Status returns the node's operational status. A disconnected node is
// OFFLINE regardless of its last recorded activity.
func (n *Node) Status() AgentStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateDisconnected {
		return StatusOffline
	}
	return n.activity
}

// State returns the node's connection state.
func (n *Node) State() ConnectionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// LastSeen returns when the node last produced an accepted report.
func (n *Node) LastSeen() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastSeenAt
}

// Missed returns the cumulative count of missed heartbeats.
func (n *Node) Missed() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.missed
}

// View returns a point-in-time copy of the node's state.
func (n *Node) View() NodeView {
	n.mu.Lock()
	defer n.mu.Unlock()

	status := n.activity
	if n.state == StateDisconnected {
		status = StatusOffline
	}
	return NodeView{
		ID:           n.ID,
		Hostname:     n.Hostname,
		State:        n.state,
		Status:       status,
		LastSeenAt:   n.lastSeenAt,
		LastSequence: n.lastSequence,
		Missed:       n.missed,
		WindowLen:    n.window.Len(),
	}
}
