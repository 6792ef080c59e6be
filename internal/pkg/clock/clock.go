// Package clock abstracts wall-clock reads so time-sensitive logic
// (lease expiry, stale-job sweeps) can be tested deterministically.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func NewRealClock() Clock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

// MockClock reports a fixed instant until moved with Set or Add.
type MockClock struct {
	current time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

func (c *MockClock) Now() time.Time {
	return c.current
}

func (c *MockClock) Set(t time.Time) {
	c.current = t
}

func (c *MockClock) Add(d time.Duration) {
	c.current = c.current.Add(d)
}
