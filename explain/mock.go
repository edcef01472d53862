package explain

import (
	"context"
	"sync"

	"github.com/vinayprograms/fleetkit/decision"
)

// MockProvider is a scripted phrasing provider for tests.
type MockProvider struct {
	mu        sync.Mutex
	response  string
	err       error
	callCount int
	last      *decision.Decision
}

// NewMockProvider creates a mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// SetResponse sets the scripted response.
func (p *MockProvider) SetResponse(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = text
}

// SetError sets an error to return.
func (p *MockProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// CallCount returns the number of Explain calls made.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount
}

// LastDecision returns the last decision seen.
func (p *MockProvider) LastDecision() *decision.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Explain implements the Provider interface.
func (p *MockProvider) Explain(ctx context.Context, d decision.Decision) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callCount++
	p.last = &d
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}
