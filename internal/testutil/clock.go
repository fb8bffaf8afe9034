package testutil

import (
	"sync"
	"time"
)

// FakeClock is a tracking.Clock whose timers fire immediately.
//
// Every After call advances Now by the requested duration and records it, so
// tests can assert on exactly which delays and polls a run performed without
// sleeping.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

// Epoch is the default start time for FakeClock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// NewFakeClock creates a clock starting at Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances the clock by d and returns an already-fired channel.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Waits returns every duration passed to After, in call order.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

// Elapsed returns how far the clock has advanced since Epoch.
func (c *FakeClock) Elapsed() time.Duration {
	return c.Now().Sub(Epoch)
}
