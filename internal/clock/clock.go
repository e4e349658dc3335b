// Package clock abstracts time so token expiry and polling can be driven by
// tests. Use RealClock in production and MockClock in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the subset of the time package the bridge depends on
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// After sends the current time on the returned channel once d has elapsed
	After(d time.Duration) <-chan time.Time

	// Since returns the time elapsed since t
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package
type RealClock struct{}

// NewRealClock creates a new RealClock instance
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now returns the current time
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// After waits for the duration to elapse and then sends the current time
func (c *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Since returns the time elapsed since t
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a Clock whose time only moves when Advance or Set is called
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewMockClock creates a new MockClock starting at the given time
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{current: start}
}

// Now returns the mock current time
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives the mock time once it has been
// advanced past d. A non-positive d fires immediately.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.waiters = append(c.waiters, waiter{deadline: c.current.Add(d), ch: ch})
	return ch
}

// Since returns the time elapsed since t using the mock current time
func (c *MockClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Sub(t)
}

// Advance moves the clock forward by d and fires every expired waiter
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current

	remaining := c.waiters[:0]
	var fired []waiter
	for _, w := range c.waiters {
		if !w.deadline.After(now) {
			fired = append(fired, w)
			continue
		}
		remaining = append(remaining, w)
	}
	c.waiters = remaining
	c.mu.Unlock()

	for _, w := range fired {
		w.ch <- now
	}
}

// Set moves the clock to t. Moving backwards never fires waiters.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if t.After(current) {
		c.Advance(t.Sub(current))
		return
	}

	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Waiters returns the number of pending After channels. Tests use it to
// wait until a goroutine is parked on the clock before advancing it.
func (c *MockClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
