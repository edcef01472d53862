// Package history provides the bounded per-node memory of health
// observations. A Window is a fixed-capacity ring: pushes are O(1), the
// oldest observation is evicted once full, and arrival order is preserved.
//
// Window is not safe for concurrent use on its own; callers guard it with
// the owning node's lock.
package history

import (
	"time"

	"github.com/vinayprograms/fleetkit/health"
)

// DefaultCapacity is the default window size.
const DefaultCapacity = 20

// Observation is one evaluated health sample for a node.
type Observation struct {
	Timestamp    time.Time        `json:"timestamp"`
	HealthScore  float64          `json:"health_score"`
	RiskLevel    health.RiskLevel `json:"risk_level"`
	AnomalyScore float64          `json:"anomaly_score"`
}

// Window is a fixed-capacity FIFO ring of observations.
type Window struct {
	buf   []Observation
	start int
	count int
}

// NewWindow creates a window. A capacity of zero or less uses the default.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]Observation, capacity)}
}

// Push appends an observation, evicting the oldest when full.
func (w *Window) Push(o Observation) {
	if w.count < len(w.buf) {
		w.buf[(w.start+w.count)%len(w.buf)] = o
		w.count++
		return
	}
	w.buf[w.start] = o
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of stored observations.
func (w *Window) Len() int {
	return w.count
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Last returns the most recent observation, if any.
func (w *Window) Last() (Observation, bool) {
	if w.count == 0 {
		return Observation{}, false
	}
	return w.buf[(w.start+w.count-1)%len(w.buf)], true
}

// Snapshot returns a copy of the stored observations, oldest first.
// Mutating the returned slice does not affect the window.
func (w *Window) Snapshot() []Observation {
	return w.Tail(w.count)
}

// Tail returns a copy of the most recent n observations, oldest first.
// When n exceeds the stored count the whole window is returned.
func (w *Window) Tail(n int) []Observation {
	if n > w.count {
		n = w.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Observation, n)
	first := w.count - n
	for i := 0; i < n; i++ {
		out[i] = w.buf[(w.start+first+i)%len(w.buf)]
	}
	return out
}
