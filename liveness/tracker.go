// Package liveness tracks per-node connection state. Accepted reports
// refresh a node's last-seen time and account heartbeat sequences; a
// background sweep flips silent nodes to DISCONNECTED. Each outage and
// each recovery produces exactly one transition event.
package liveness

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	fkerrors "github.com/vinayprograms/fleetkit/errors"
	"github.com/vinayprograms/fleetkit/logging"
	"github.com/vinayprograms/fleetkit/registry"
	"github.com/vinayprograms/fleetkit/report"
)

// Defaults for the tracker.
const (
	DefaultTimeout            = 15 * time.Second
	DefaultSweepInterval      = 5 * time.Second
	DefaultHeartbeatStaleness = 30 * time.Second
)

// Common errors.
var (
	ErrNotStarted     = errors.New("tracker not started")
	ErrAlreadyStarted = errors.New("tracker already started")
)

// Config configures the tracker.
type Config struct {
	// Timeout is the silence after which a node is DISCONNECTED.
	Timeout time.Duration

	// SweepInterval is how often silent nodes are checked.
	SweepInterval time.Duration

	// HeartbeatStaleness bounds how old a heartbeat timestamp may be
	// before its sequence accounting is skipped.
	HeartbeatStaleness time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:            DefaultTimeout,
		SweepInterval:      DefaultSweepInterval,
		HeartbeatStaleness: DefaultHeartbeatStaleness,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Timeout < 0 || c.SweepInterval < 0 || c.HeartbeatStaleness < 0 {
		return fkerrors.InvalidConfig("liveness durations must not be negative")
	}
	if c.SweepInterval > 0 && c.Timeout > 0 && c.SweepInterval > c.Timeout {
		return fkerrors.InvalidConfig("sweep interval exceeds disconnect timeout")
	}
	return nil
}

// Event is one connection state transition.
type Event struct {
	NodeID string
	State  registry.ConnectionState
	At     time.Time
}

// Observation is the liveness outcome for one accepted report.
type Observation struct {
	// Reconnected is true when the report flipped the node back to
	// CONNECTED.
	Reconnected bool

	// MissedDelta is how many heartbeats the sequence gap says were lost
	// since the previous beat.
	MissedDelta int64

	// HeartbeatStale is true when the heartbeat timestamp was too old for
	// sequence accounting.
	HeartbeatStale bool

	// Transition is the CONNECTED event for a reconnect, handed to the
	// caller to publish outside its own locks. Nil otherwise.
	Transition *Event
}

// Tracker owns connection state transitions for all registered nodes.
type Tracker struct {
	reg         *registry.Registry
	timeout     time.Duration
	sweepEvery  time.Duration
	hbStaleness time.Duration
	log         *logging.Logger

	mu        sync.Mutex
	callbacks []func(Event)

	// now is replaceable in tests.
	now func() time.Time

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a tracker over the given registry.
func New(reg *registry.Registry, cfg Config, log *logging.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sweepEvery := cfg.SweepInterval
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepInterval
	}
	hbStaleness := cfg.HeartbeatStaleness
	if hbStaleness <= 0 {
		hbStaleness = DefaultHeartbeatStaleness
	}
	if log == nil {
		log = logging.New()
	}

	return &Tracker{
		reg:         reg,
		timeout:     timeout,
		sweepEvery:  sweepEvery,
		hbStaleness: hbStaleness,
		log:         log.WithComponent("liveness"),
		now:         time.Now,
	}, nil
}

// OnTransition registers a callback for transitions found by the
// background sweep. Reconnects surface through Observe's Observation
// instead, so ingesting a report never runs callbacks. Callbacks run
// outside any node or registry lock.
func (t *Tracker) OnTransition(fn func(Event)) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, fn)
	t.mu.Unlock()
}

// Observe applies one accepted report to the node's liveness state.
// The last-seen time always refreshes: an accepted report is evidence the
// node can reach us even when its heartbeat clock lags. Only the sequence
// accounting is skipped for stale heartbeats.
func (t *Tracker) Observe(n *registry.Node, r *report.Report) Observation {
	now := t.now()

	var obs Observation
	obs.Reconnected = n.Touch(now)
	if obs.Reconnected {
		obs.Transition = &Event{NodeID: n.ID, State: registry.StateConnected, At: now}
	}

	if hb := r.Heartbeat; hb != nil {
		if !hb.Timestamp.IsZero() && now.Sub(hb.Timestamp) > t.hbStaleness {
			obs.HeartbeatStale = true
			t.log.Warn("stale_heartbeat", map[string]interface{}{
				"node": n.ID,
				"age":  now.Sub(hb.Timestamp).String(),
			})
		} else {
			obs.MissedDelta = n.RecordHeartbeat(hb.Sequence)
			if obs.MissedDelta > 0 {
				t.log.Warn("missed_heartbeats", map[string]interface{}{
					"node":  n.ID,
					"count": obs.MissedDelta,
				})
			}
		}
	}

	return obs
}

// Start launches the background sweep.
func (t *Tracker) Start() error {
	if t.running.Swap(true) {
		return ErrAlreadyStarted
	}

	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.run()
	return nil
}

// Stop halts the background sweep and waits for it to exit.
func (t *Tracker) Stop() error {
	if !t.running.Swap(false) {
		return ErrNotStarted
	}

	close(t.stopCh)
	<-t.doneCh
	return nil
}

func (t *Tracker) run() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep marks every silent node DISCONNECTED and emits one event per
// transition.
func (t *Tracker) sweep() {
	now := t.now()

	for _, n := range t.reg.Nodes() {
		if n.MarkDisconnectedIfStale(now, t.timeout) {
			t.log.StatusChange(n.ID, string(registry.StateDisconnected), n.Missed())
			t.emit(Event{NodeID: n.ID, State: registry.StateDisconnected, At: now})
		}
	}
}

func (t *Tracker) emit(e Event) {
	t.mu.Lock()
	callbacks := make([]func(Event), len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(e)
	}
}
