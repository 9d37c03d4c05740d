package testutil

import (
	"sync"
	"time"
)

// Epoch is the instant every test Clock starts from unless told otherwise.
var Epoch = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// Clock is a wall clock for tests. Each Now() returns the current instant
// and then moves it forward by the step, so successive timestamps differ.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

// NewClock creates a clock at start that advances step per Now() call.
// A zero step gives a frozen clock.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{t: start, step: step}
}

// NewSteppingClock starts at Epoch and advances one second per call.
func NewSteppingClock() *Clock {
	return NewClock(Epoch, time.Second)
}

// Now returns the current instant and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

// Peek returns the current instant without advancing.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
