package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually driven Clock for tests. It is safe to move from a
// goroutine other than the one reading it, which scheduler tests rely on
// when a job advances time while the loop measures it.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

var _ Clock = (*FakeClock)(nil)

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

// Now returns the current fake time, then moves it forward by the step set
// with SetStep, if any.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps to t, for example to the next cron boundary.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// SetStep makes every Now call advance the clock by d. Zero disables it.
func (c *FakeClock) SetStep(d time.Duration) {
	c.mu.Lock()
	c.step = d
	c.mu.Unlock()
}
