package healing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vinayprograms/fleetkit/decision"
	"github.com/vinayprograms/fleetkit/health"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.ActionDuration = time.Millisecond
	cfg.VerifyInterval = time.Millisecond
	cfg.VerifyDeadline = 2 * time.Second
	cfg.MaxVerifyFailures = 2
	return cfg
}

func waitIdle(t *testing.T, h *AutoHealer, nodeID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !h.InFlight(nodeID) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("healing action never finished")
}

func autoHeal(nodeID, action string) decision.Decision {
	return decision.Decision{
		NodeID:        nodeID,
		Kind:          decision.KindAutoHeal,
		HealingAction: action,
	}
}

func TestAutoHealer_EligibleActions(t *testing.T) {
	h := NewAutoHealer(DefaultConfig(), nil)
	defer h.Stop()
	ctx := context.Background()

	tests := []struct {
		factor health.Factor
		want   string
	}{
		{health.FactorCPU, "restart_service"},
		{health.FactorMemory, "clear_cache"},
		{health.FactorDisk, "rotate_logs"},
		{health.FactorNetwork, "reset_connections"},
		{health.Factor("UNKNOWN"), ""},
	}

	for _, tt := range tests {
		got, err := h.Eligible(ctx, "node-1", tt.factor)
		if err != nil {
			t.Fatalf("Eligible(%s) error: %v", tt.factor, err)
		}
		if got != tt.want {
			t.Errorf("Eligible(%s) = %q, want %q", tt.factor, got, tt.want)
		}
	}
}

func TestAutoHealer_ActionSucceedsOnRecovery(t *testing.T) {
	cfg := fastConfig()
	cfg.Probe = func(ctx context.Context, nodeID string) (health.RiskLevel, error) {
		return health.RiskNormal, nil
	}
	h := NewAutoHealer(cfg, nil)
	defer h.Stop()

	if err := h.Notify(context.Background(), autoHeal("node-1", "clear_cache")); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	waitIdle(t, h, "node-1")

	actions := h.Actions(0)
	if len(actions) != 1 {
		t.Fatalf("Actions len = %d, want 1", len(actions))
	}
	if actions[0].Status != ActionSucceeded || actions[0].Name != "clear_cache" {
		t.Errorf("action = %+v, want SUCCEEDED clear_cache", actions[0])
	}
}

func TestAutoHealer_RepeatedFailuresEscalateToHuman(t *testing.T) {
	cfg := fastConfig()
	cfg.Probe = func(ctx context.Context, nodeID string) (health.RiskLevel, error) {
		return health.RiskCritical, nil
	}
	h := NewAutoHealer(cfg, nil)
	defer h.Stop()

	escalated := make(chan string, 1)
	h.OnEscalateToHuman(func(nodeID, reason string) {
		select {
		case escalated <- nodeID:
		default:
		}
	})

	h.Notify(context.Background(), autoHeal("node-1", "restart_service"))

	select {
	case nodeID := <-escalated:
		if nodeID != "node-1" {
			t.Errorf("escalated node = %q", nodeID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no escalation after repeated verification failures")
	}
	waitIdle(t, h, "node-1")

	// Latched: the node is no longer auto-healable.
	action, err := h.Eligible(context.Background(), "node-1", health.FactorCPU)
	if err != nil || action != "" {
		t.Errorf("Eligible after escalation = %q, %v, want none", action, err)
	}
	if got := h.Actions(0)[0].Status; got != ActionEscalated {
		t.Errorf("action status = %v, want ESCALATED_TO_HUMAN", got)
	}
}

func TestAutoHealer_ProbeErrorsCountAsFailures(t *testing.T) {
	cfg := fastConfig()
	cfg.Probe = func(ctx context.Context, nodeID string) (health.RiskLevel, error) {
		return "", errors.New("probe unreachable")
	}
	h := NewAutoHealer(cfg, nil)
	defer h.Stop()

	h.Notify(context.Background(), autoHeal("node-1", "clear_cache"))
	waitIdle(t, h, "node-1")

	if got := h.Actions(0)[0].Status; got != ActionEscalated {
		t.Errorf("action status = %v, want ESCALATED_TO_HUMAN", got)
	}
}

func TestAutoHealer_OneActionPerNode(t *testing.T) {
	cfg := fastConfig()
	cfg.ActionDuration = time.Second
	h := NewAutoHealer(cfg, nil)
	defer h.Stop()

	h.Notify(context.Background(), autoHeal("node-1", "clear_cache"))
	if !h.InFlight("node-1") {
		t.Fatal("InFlight = false right after Notify")
	}

	// Second AUTO_HEAL while running is dropped.
	h.Notify(context.Background(), autoHeal("node-1", "restart_service"))
	waitIdle(t, h, "node-1")

	if got := len(h.Actions(0)); got != 1 {
		t.Errorf("Actions len = %d, want 1", got)
	}
}

func TestAutoHealer_AdaptiveInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseInterval = 16 * time.Second
	cfg.MinInterval = 2 * time.Second
	cfg.MaxInterval = 32 * time.Second
	h := NewAutoHealer(cfg, nil)
	defer h.Stop()
	ctx := context.Background()

	escalate := decision.Decision{NodeID: "node-1", Kind: decision.KindEscalate}
	relax := decision.Decision{NodeID: "node-1", Kind: decision.KindNoAction}

	h.Notify(ctx, escalate)
	if got := h.Interval(); got != 8*time.Second {
		t.Errorf("Interval after escalate = %v, want 8s", got)
	}

	// Halving saturates at the floor.
	for i := 0; i < 5; i++ {
		h.Notify(ctx, escalate)
	}
	if got := h.Interval(); got != cfg.MinInterval {
		t.Errorf("Interval = %v, want floor %v", got, cfg.MinInterval)
	}

	// Relaxing grows by half toward the ceiling.
	h.Notify(ctx, relax)
	if got := h.Interval(); got != 3*time.Second {
		t.Errorf("Interval after relax = %v, want 3s", got)
	}
	for i := 0; i < 20; i++ {
		h.Notify(ctx, relax)
	}
	if got := h.Interval(); got != cfg.MaxInterval {
		t.Errorf("Interval = %v, want ceiling %v", got, cfg.MaxInterval)
	}
}
