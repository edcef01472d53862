package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestShutdown_PhaseOrder(t *testing.T) {
	c := NewCoordinator(0)

	var mu sync.Mutex
	var order []string
	record := func(name string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// Registration order deliberately differs from phase order.
	c.RegisterFunc("bus", 30, record("bus"))
	c.RegisterFunc("sweep", 10, record("sweep"))
	c.RegisterFunc("healer", 20, record("healer"))

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	want := []string{"sweep", "healer", "bus"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdown_SamePhaseRunsConcurrently(t *testing.T) {
	c := NewCoordinator(0)

	release := make(chan struct{})
	c.RegisterFunc("a", 10, func(ctx context.Context) error {
		<-release
		return nil
	})
	c.RegisterFunc("b", 10, func(ctx context.Context) error {
		close(release)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- c.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("same-phase stoppers deadlocked, not concurrent")
	}
}

func TestShutdown_OnlyOnce(t *testing.T) {
	c := NewCoordinator(0)

	calls := 0
	c.RegisterFunc("x", 10, func(ctx context.Context) error {
		calls++
		return nil
	})

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown error: %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown error: %v", err)
	}
	if calls != 1 {
		t.Errorf("stopper ran %d times, want 1", calls)
	}
}

func TestShutdown_StopperFailure(t *testing.T) {
	c := NewCoordinator(0)

	boom := errors.New("boom")
	c.RegisterFunc("bad", 10, func(ctx context.Context) error { return boom })

	ran := false
	c.RegisterFunc("later", 20, func(ctx context.Context) error {
		ran = true
		return nil
	})

	if err := c.Shutdown(context.Background()); err != ErrStopperFailed {
		t.Errorf("Shutdown = %v, want ErrStopperFailed", err)
	}
	if !ran {
		t.Error("later phase skipped after failure")
	}

	results := c.Results()
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Name != "bad" || results[0].Err != boom {
		t.Errorf("first result = %+v", results[0])
	}
}

func TestShutdown_Timeout(t *testing.T) {
	c := NewCoordinator(0)
	c.RegisterFunc("slow", 10, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.RegisterFunc("unreached", 20, func(ctx context.Context) error {
		t.Error("phase after timeout should not run")
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Shutdown(ctx)
	if err != ErrTimeout && err != ErrStopperFailed {
		t.Errorf("Shutdown = %v, want timeout-related error", err)
	}
}

func TestShutdown_DoneAndResults(t *testing.T) {
	c := NewCoordinator(0)
	c.RegisterFunc("x", 10, func(ctx context.Context) error { return nil })

	if c.Results() != nil {
		t.Error("Results should be nil before shutdown")
	}

	c.Shutdown(context.Background())

	select {
	case <-c.Done():
	default:
		t.Error("Done not closed after shutdown")
	}
	if len(c.Results()) != 1 {
		t.Errorf("results = %v", c.Results())
	}
}
