package healing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/fleetkit/decision"
	"github.com/vinayprograms/fleetkit/health"
	"github.com/vinayprograms/fleetkit/logging"
)

// Defaults for the auto-healer.
const (
	DefaultActionDuration    = 2 * time.Second
	DefaultVerifyInterval    = 2 * time.Second
	DefaultVerifyDeadline    = 30 * time.Second
	DefaultMaxVerifyFailures = 3

	DefaultBaseInterval = 10 * time.Second
	DefaultMinInterval  = 2 * time.Second
	DefaultMaxInterval  = 60 * time.Second

	actionLogCapacity = 100
)

// safeActions maps each root cause to its non-destructive remediation.
// Anything not listed here is never auto-healed.
var safeActions = map[health.Factor]string{
	health.FactorCPU:     "restart_service",
	health.FactorMemory:  "clear_cache",
	health.FactorDisk:    "rotate_logs",
	health.FactorNetwork: "reset_connections",
}

// Probe checks a node's current risk after a healing action. The
// auto-healer uses it to verify that remediation worked.
type Probe func(ctx context.Context, nodeID string) (health.RiskLevel, error)

// Config configures the auto-healer.
type Config struct {
	// ActionDuration is how long the simulated action takes.
	ActionDuration time.Duration

	// VerifyInterval and VerifyDeadline drive the post-action
	// verification loop.
	VerifyInterval time.Duration
	VerifyDeadline time.Duration

	// MaxVerifyFailures is how many consecutive failed probes escalate
	// the node to a human.
	MaxVerifyFailures int

	// BaseInterval, MinInterval and MaxInterval bound the adaptive
	// monitoring cadence.
	BaseInterval time.Duration
	MinInterval  time.Duration
	MaxInterval  time.Duration

	// Probe verifies node risk after an action. Nil marks actions
	// successful once the simulated action completes.
	Probe Probe
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ActionDuration:    DefaultActionDuration,
		VerifyInterval:    DefaultVerifyInterval,
		VerifyDeadline:    DefaultVerifyDeadline,
		MaxVerifyFailures: DefaultMaxVerifyFailures,
		BaseInterval:      DefaultBaseInterval,
		MinInterval:       DefaultMinInterval,
		MaxInterval:       DefaultMaxInterval,
	}
}

// AutoHealer executes safe simulated remediations and adapts the
// monitoring cadence to fleet stress. After repeated verification
// failures a node is latched to human hands and never auto-healed again.
type AutoHealer struct {
	cfg   Config
	log   *logging.Logger
	probe Probe

	mu          sync.Mutex
	inFlight    map[string]*Action
	completed   []Action
	escalated   map[string]bool
	interval    time.Duration
	escalateCBs []func(nodeID, reason string)

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewAutoHealer creates an auto-healer.
func NewAutoHealer(cfg Config, log *logging.Logger) *AutoHealer {
	defaults := DefaultConfig()
	if cfg.ActionDuration <= 0 {
		cfg.ActionDuration = defaults.ActionDuration
	}
	if cfg.VerifyInterval <= 0 {
		cfg.VerifyInterval = defaults.VerifyInterval
	}
	if cfg.VerifyDeadline <= 0 {
		cfg.VerifyDeadline = defaults.VerifyDeadline
	}
	if cfg.MaxVerifyFailures <= 0 {
		cfg.MaxVerifyFailures = defaults.MaxVerifyFailures
	}
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = defaults.BaseInterval
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaults.MinInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}
	if log == nil {
		log = logging.New()
	}

	return &AutoHealer{
		cfg:       cfg,
		log:       log.WithComponent("healing"),
		probe:     cfg.Probe,
		inFlight:  make(map[string]*Action),
		escalated: make(map[string]bool),
		interval:  cfg.BaseInterval,
		stopCh:    make(chan struct{}),
	}
}

// Eligible implements the Healer interface. Nodes latched to human
// hands report no eligible action.
func (h *AutoHealer) Eligible(ctx context.Context, nodeID string, rootCause health.Factor) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.escalated[nodeID] {
		return "", nil
	}
	return safeActions[rootCause], nil
}

// InFlight implements the Healer interface.
func (h *AutoHealer) InFlight(nodeID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.inFlight[nodeID]
	return ok
}

// Notify implements the Healer interface. AUTO_HEAL launches the
// selected action; escalating decisions tighten the monitoring cadence,
// recovering ones relax it.
func (h *AutoHealer) Notify(ctx context.Context, d decision.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch d.Kind {
	case decision.KindAutoHeal:
		h.tighten()
		return h.start(d.NodeID, d.HealingAction)
	case decision.KindEscalate, decision.KindPredictFailure:
		h.tighten()
	case decision.KindDeEscalate, decision.KindNoAction:
		h.relax()
	}
	return nil
}

// Interval returns the current adaptive monitoring interval.
func (h *AutoHealer) Interval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interval
}

// Actions returns up to limit completed actions, newest first.
func (h *AutoHealer) Actions(limit int) []Action {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.completed)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Action, limit)
	for i := 0; i < limit; i++ {
		out[i] = h.completed[n-1-i]
	}
	return out
}

// OnEscalateToHuman registers a callback for nodes the healer gives up
// on. Callbacks run outside the healer lock.
func (h *AutoHealer) OnEscalateToHuman(fn func(nodeID, reason string)) {
	h.mu.Lock()
	h.escalateCBs = append(h.escalateCBs, fn)
	h.mu.Unlock()
}

// Stop cancels running actions and waits for them to finish.
func (h *AutoHealer) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}

func (h *AutoHealer) tighten() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interval /= 2
	if h.interval < h.cfg.MinInterval {
		h.interval = h.cfg.MinInterval
	}
}

func (h *AutoHealer) relax() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interval = h.interval * 3 / 2
	if h.interval > h.cfg.MaxInterval {
		h.interval = h.cfg.MaxInterval
	}
}

func (h *AutoHealer) start(nodeID, name string) error {
	if name == "" {
		return nil
	}

	h.mu.Lock()
	if h.escalated[nodeID] {
		h.mu.Unlock()
		return nil
	}
	if _, ok := h.inFlight[nodeID]; ok {
		h.mu.Unlock()
		return nil
	}
	a := &Action{
		ID:        uuid.New().String(),
		NodeID:    nodeID,
		Name:      name,
		StartedAt: time.Now(),
		Status:    ActionRunning,
	}
	h.inFlight[nodeID] = a
	h.mu.Unlock()

	h.wg.Add(1)
	go h.run(a)
	return nil
}

// run simulates the action, then verifies recovery until success, too
// many consecutive failures, or the deadline.
func (h *AutoHealer) run(a *Action) {
	defer h.wg.Done()

	select {
	case <-h.stopCh:
		h.finish(a, ActionFailed)
		return
	case <-time.After(h.cfg.ActionDuration):
	}

	if h.probe == nil {
		h.finish(a, ActionSucceeded)
		return
	}

	deadline := time.NewTimer(h.cfg.VerifyDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(h.cfg.VerifyInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-h.stopCh:
			h.finish(a, ActionFailed)
			return
		case <-deadline.C:
			h.escalate(a.NodeID, "verification deadline exceeded")
			h.finish(a, ActionEscalated)
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.VerifyInterval)
			risk, err := h.probe(ctx, a.NodeID)
			cancel()

			if err != nil || risk == health.RiskCritical {
				failures++
				if failures >= h.cfg.MaxVerifyFailures {
					h.escalate(a.NodeID,
						fmt.Sprintf("verification failed %d times", failures))
					h.finish(a, ActionEscalated)
					return
				}
				continue
			}
			h.finish(a, ActionSucceeded)
			return
		}
	}
}

func (h *AutoHealer) finish(a *Action, status ActionStatus) {
	h.mu.Lock()
	a.Status = status
	a.EndedAt = time.Now()
	delete(h.inFlight, a.NodeID)
	h.completed = append(h.completed, *a)
	if len(h.completed) > actionLogCapacity {
		h.completed = h.completed[len(h.completed)-actionLogCapacity:]
	}
	h.mu.Unlock()

	h.log.HealingAction(a.NodeID, a.Name, string(status))
}

func (h *AutoHealer) escalate(nodeID, reason string) {
	h.mu.Lock()
	h.escalated[nodeID] = true
	callbacks := make([]func(string, string), len(h.escalateCBs))
	copy(callbacks, h.escalateCBs)
	h.mu.Unlock()

	h.log.Warn("escalate_to_human", map[string]interface{}{
		"node":   nodeID,
		"reason": reason,
	})
	for _, fn := range callbacks {
		fn(nodeID, reason)
	}
}
