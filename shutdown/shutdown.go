// Package shutdown coordinates ordered teardown of monitor components.
//
// The engine registers its parts in phases: lower phases stop first, so
// the liveness sweep halts before the healer drains and the bus closes
// last. Stoppers within a phase run concurrently.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Common errors.
var (
	ErrAlreadyStopped = errors.New("shutdown already initiated")
	ErrTimeout        = errors.New("shutdown timeout exceeded")
	ErrStopperFailed  = errors.New("one or more stoppers failed")
)

// DefaultTimeout bounds a signal-triggered shutdown.
const DefaultTimeout = 30 * time.Second

// Stopper is implemented by components that need graceful teardown.
type Stopper interface {
	Stop(ctx context.Context) error
}

// StopFunc adapts a function to Stopper.
type StopFunc func(ctx context.Context) error

// Stop implements Stopper.
func (f StopFunc) Stop(ctx context.Context) error {
	return f(ctx)
}

// Result records one stopper's outcome.
type Result struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

type entry struct {
	name    string
	phase   int
	stopper Stopper
}

// Coordinator runs registered stoppers in phase order.
type Coordinator struct {
	timeout time.Duration

	mu      sync.Mutex
	entries []entry
	results []Result

	once    sync.Once
	stopErr error
	done    chan struct{}
	sigCh   chan os.Signal
}

// NewCoordinator creates a coordinator. Zero timeout means DefaultTimeout.
func NewCoordinator(timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		timeout: timeout,
		done:    make(chan struct{}),
		sigCh:   make(chan os.Signal, 1),
	}
}

// Register adds a stopper to a phase. Lower phases stop first.
func (c *Coordinator) Register(name string, phase int, s Stopper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry{name: name, phase: phase, stopper: s})
}

// RegisterFunc registers a plain function.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Register(name, phase, StopFunc(fn))
}

// Shutdown runs all stoppers once. Later calls return the first outcome,
// or ErrAlreadyStopped while the first call is still in progress.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	ran := false
	c.once.Do(func() {
		ran = true
		c.stopErr = c.run(ctx)
		close(c.done)
	})
	if ran {
		return c.stopErr
	}
	select {
	case <-c.done:
		return c.stopErr
	default:
		return ErrAlreadyStopped
	}
}

// HandleSignals triggers shutdown on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c.sigCh
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		c.Shutdown(ctx)
	}()
}

// Trigger queues a synthetic signal.
func (c *Coordinator) Trigger() {
	select {
	case c.sigCh <- syscall.SIGTERM:
	default:
	}
}

// Done is closed when shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Results reports per-stopper outcomes. Valid once Done is closed.
func (c *Coordinator) Results() []Result {
	select {
	case <-c.done:
	default:
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	entries := make([]entry, len(c.entries))
	copy(entries, c.entries)
	c.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].phase < entries[j].phase
	})

	var overall error
	for start := 0; start < len(entries); {
		end := start
		for end < len(entries) && entries[end].phase == entries[start].phase {
			end++
		}

		select {
		case <-ctx.Done():
			return ErrTimeout
		default:
		}

		for _, res := range c.runPhase(ctx, entries[start:end]) {
			c.mu.Lock()
			c.results = append(c.results, res)
			c.mu.Unlock()
			if res.Err != nil && overall == nil {
				overall = ErrStopperFailed
			}
		}
		start = end
	}
	return overall
}

func (c *Coordinator) runPhase(ctx context.Context, group []entry) []Result {
	results := make([]Result, len(group))
	var wg sync.WaitGroup
	for i, e := range group {
		wg.Add(1)
		go func(idx int, e entry) {
			defer wg.Done()
			start := time.Now()
			err := e.stopper.Stop(ctx)
			results[idx] = Result{
				Name:     e.name,
				Phase:    e.phase,
				Duration: time.Since(start),
				Err:      err,
			}
		}(i, e)
	}
	wg.Wait()
	return results
}
