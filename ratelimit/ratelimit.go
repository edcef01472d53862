// Package ratelimit caps per-node report submission. A misbehaving agent
// that floods reports must not crowd out the rest of the fleet; the
// limiter rejects the excess before it reaches the pipeline.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the accounting period for report counts.
const DefaultWindow = time.Minute

// Limiter is a fixed-window counter per key. A capacity of zero or less
// disables limiting.
type Limiter struct {
	capacity int
	window   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	now func() time.Time
}

type bucket struct {
	count   int
	started time.Time
}

// New creates a limiter allowing capacity events per key per window.
func New(capacity int, window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		capacity: capacity,
		window:   window,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow reports whether one more event is admitted for the key, and
// counts it if so.
func (l *Limiter) Allow(key string) bool {
	if l.capacity <= 0 {
		return true
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.started) >= l.window {
		l.buckets[key] = &bucket{count: 1, started: now}
		return true
	}
	if b.count >= l.capacity {
		return false
	}
	b.count++
	return true
}

// Remaining returns how many events the key may still submit in the
// current window.
func (l *Limiter) Remaining(key string) int {
	if l.capacity <= 0 {
		return -1
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.started) >= l.window {
		return l.capacity
	}
	return l.capacity - b.count
}

// Forget drops the key's accounting, freeing its bucket.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
