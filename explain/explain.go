// Package explain renders a one-line natural-language justification for
// a decision. Explanations are derived only from the decision's own
// fields and never feed back into decision making. A deterministic
// template renderer is always available; an optional LLM provider can
// phrase the same facts more naturally, behind a bounded timeout and a
// cache.
package explain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vinayprograms/fleetkit/decision"
	"github.com/vinayprograms/fleetkit/logging"
)

// Defaults for the engine.
const (
	DefaultTimeout       = 5 * time.Second
	DefaultCacheCapacity = 128
)

// Provider phrases a decision. Implementations must not mutate the
// decision or consult any state beyond it.
type Provider interface {
	Explain(ctx context.Context, d decision.Decision) (string, error)
}

// Config configures the explanation engine.
type Config struct {
	// Provider is the optional LLM phrasing backend. Nil keeps the
	// template renderer only.
	Provider Provider

	// Timeout bounds each provider call.
	Timeout time.Duration

	// CacheCapacity bounds the phrase cache.
	CacheCapacity int
}

// Engine produces explanations with caching and template fallback.
type Engine struct {
	provider Provider
	timeout  time.Duration
	capacity int
	log      *logging.Logger

	mu    sync.Mutex
	cache map[string]string
	order []string
}

// New creates an explanation engine.
func New(cfg Config, log *logging.Logger) *Engine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	capacity := cfg.CacheCapacity
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if log == nil {
		log = logging.New()
	}

	return &Engine{
		provider: cfg.Provider,
		timeout:  timeout,
		capacity: capacity,
		log:      log.WithComponent("explain"),
		cache:    make(map[string]string),
	}
}

// Explain returns a one-line justification. It never fails: provider
// errors and timeouts fall back to the deterministic template.
func (e *Engine) Explain(ctx context.Context, d decision.Decision) string {
	if e.provider == nil {
		return Template(d)
	}

	key := cacheKey(d)

	e.mu.Lock()
	if cached, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return cached
	}
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text, err := e.provider.Explain(callCtx, d)
	if err != nil || text == "" {
		if err != nil {
			e.log.CollaboratorError(d.NodeID, "explain", err)
		}
		return Template(d)
	}

	e.store(key, text)
	return text
}

// cacheKey identifies the decision shape, not the node: two nodes in the
// same situation share a phrasing.
func cacheKey(d decision.Decision) string {
	rootCause := ""
	if d.RootCause != nil {
		rootCause = string(d.RootCause.Label)
	}
	return fmt.Sprintf("%s:%s:%d:%s", d.Kind, d.Trend, d.Persistence, rootCause)
}

func (e *Engine) store(key, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.cache[key]; ok {
		e.cache[key] = text
		return
	}
	e.cache[key] = text
	e.order = append(e.order, key)
	if len(e.order) > e.capacity {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.cache, oldest)
	}
}
