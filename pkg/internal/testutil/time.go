package testutil

import (
	"sync"
	"time"
)

// Clock is a settable time source for deterministic tests.
type Clock struct {
	now time.Time
	mu  sync.Mutex
}

// NewClock creates a Clock pinned to t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the pinned time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
