package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used by caches, latency models and the sweep
// ticker. Tests substitute a ManualClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Listener is called on every tick with the clock's current time.
type Listener func(context.Context, time.Time)

// Ticker invokes its listeners every Interval until the context passed to
// Run is cancelled. Listeners run sequentially on the ticker goroutine, so a
// slow listener delays the next tick rather than overlapping it.
type Ticker struct {
	mu        sync.RWMutex
	Interval  time.Duration
	clock     Clock
	listeners []Listener
}

// NewTicker constructs a ticker. A nil clock uses SystemClock.
func NewTicker(interval time.Duration, clock Clock) *Ticker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ticker{Interval: interval, clock: clock}
}

// AddListener registers fn; nil is ignored.
func (t *Ticker) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Fire invokes every listener once, outside the ticker loop.
func (t *Ticker) Fire(ctx context.Context) {
	now := t.clock.Now()
	for _, fn := range t.snapshot() {
		fn(ctx, now)
	}
}

// Run blocks, firing listeners each interval, until ctx is done. A
// non-positive interval returns immediately.
func (t *Ticker) Run(ctx context.Context) {
	if t.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Fire(ctx)
		}
	}
}

// Start runs the ticker in a separate goroutine. The returned channel is
// closed when Run returns.
func (t *Ticker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.Run(ctx)
	}()
	return done
}

func (t *Ticker) snapshot() []Listener {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Listener(nil), t.listeners...)
}
