// Package clock provides an injectable time source so that time-window
// policies (restart budgets, readiness polling) can be tested without sleeping.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time and sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now.
func (Real) Now() time.Time { return time.Now() }

// Sleep blocks for d.
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manually advanced clock. Sleep advances the clock instead of
// blocking.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the fake time by d.
func (f *Fake) Sleep(d time.Duration) {
	f.Advance(d)
}

// Advance moves the fake time forward.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
