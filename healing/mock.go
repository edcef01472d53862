package healing

import (
	"context"
	"sync"

	"github.com/vinayprograms/fleetkit/decision"
	"github.com/vinayprograms/fleetkit/health"
)

// MockHealer is a scripted Healer for tests.
type MockHealer struct {
	mu sync.Mutex

	// EligibleAction and EligibleErr script the Eligible answer.
	EligibleAction string
	EligibleErr    error

	// NotifyErr scripts the Notify answer.
	NotifyErr error

	inFlight map[string]bool
	notified []decision.Decision
}

// NewMockHealer creates a mock with no eligible action.
func NewMockHealer() *MockHealer {
	return &MockHealer{inFlight: make(map[string]bool)}
}

// Eligible returns the scripted action.
func (m *MockHealer) Eligible(ctx context.Context, nodeID string, rootCause health.Factor) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.EligibleAction, m.EligibleErr
}

// InFlight reports the scripted in-flight state.
func (m *MockHealer) InFlight(nodeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight[nodeID]
}

// SetInFlight scripts the in-flight state for a node.
func (m *MockHealer) SetInFlight(nodeID string, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[nodeID] = v
}

// Notify records the decision.
func (m *MockHealer) Notify(ctx context.Context, d decision.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, d)
	return m.NotifyErr
}

// Notified returns the recorded decisions.
func (m *MockHealer) Notified() []decision.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]decision.Decision, len(m.notified))
	copy(out, m.notified)
	return out
}
