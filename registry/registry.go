// Package registry stores per-node monitoring state for the fleet.
//
// The registry is a concurrent map of node records. Lookup and insert take
// the registry lock; everything per-node (liveness fields, health window,
// activity) is guarded by the node's own lock, so the liveness sweep and
// reports from unrelated nodes never contend.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vinayprograms/fleetkit/history"
)

// Common errors.
var (
	ErrNotFound  = errors.New("node not found")
	ErrClosed    = errors.New("registry closed")
	ErrInvalidID = errors.New("invalid node ID")
)

// ConnectionState is a node's liveness state.
type ConnectionState string

const (
	StateConnected    ConnectionState = "CONNECTED"
	StateDisconnected ConnectionState = "DISCONNECTED"
)

// AgentStatus is the coarse operational state derived for a node.
type AgentStatus string

const (
	StatusActive     AgentStatus = "ACTIVE"
	StatusDegraded   AgentStatus = "DEGRADED"
	StatusRecovering AgentStatus = "RECOVERING"
	StatusOffline    AgentStatus = "OFFLINE"
)

// Registry maps node IDs to their records.
type Registry struct {
	windowCapacity int

	mu     sync.RWMutex
	nodes  map[string]*Node
	closed bool
}

// Config configures the registry.
type Config struct {
	// WindowCapacity sizes each node's health window.
	// Zero or less uses the history default.
	WindowCapacity int
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	capacity := cfg.WindowCapacity
	if capacity <= 0 {
		capacity = history.DefaultCapacity
	}
	return &Registry{
		windowCapacity: capacity,
		nodes:          make(map[string]*Node),
	}
}

// GetOrCreate returns the record for a node, creating it on first sight.
// New nodes start CONNECTED with no heartbeat history.
func (r *Registry) GetOrCreate(nodeID, hostname string, now time.Time) (*Node, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}

	r.mu.RLock()
	n, ok := r.nodes[nodeID]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return n, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if n, ok := r.nodes[nodeID]; ok {
		return n, nil
	}

	n = &Node{
		ID:           nodeID,
		Hostname:     hostname,
		RegisteredAt: now,
		state:        StateConnected,
		lastSeenAt:   now,
		lastSequence: -1,
		activity:     StatusActive,
		window:       history.NewWindow(r.windowCapacity),
	}
	r.nodes[nodeID] = n
	return n, nil
}

// Get returns the record for a known node.
func (r *Registry) Get(nodeID string) (*Node, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	n, ok := r.nodes[nodeID]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

// Remove drops a node from the registry.
func (r *Registry) Remove(nodeID string) error {
	if nodeID == "" {
		return ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.nodes[nodeID]; !ok {
		return ErrNotFound
	}
	delete(r.nodes, nodeID)
	return nil
}

// Nodes returns the current records. The slice is a copy; the records
// are shared.
func (r *Registry) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// Views returns a point-in-time view of every node, sorted by ID.
func (r *Registry) Views() []NodeView {
	nodes := r.Nodes()

	views := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, n.View())
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].ID < views[j].ID
	})
	return views
}

// Len returns the number of known nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Close marks the registry closed. Existing node records stay usable by
// holders; new lookups fail with ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
