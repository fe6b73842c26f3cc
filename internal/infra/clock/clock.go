// Package clock abstracts time so that expiration, ban and rate-limit
// comparisons can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the single source of "now" for time-sensitive decisions.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type wall struct{}

// Real returns the wall clock.
func Real() Clock { return wall{} }

func (wall) Now() time.Time { return time.Now().UTC() }

func (wall) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// Fake is a manually driven clock. Sleep advances the fake time instead of blocking.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

// NewFake returns a fake clock positioned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.slept += d
	f.mu.Unlock()
}

// Advance moves the fake time forward.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set positions the fake time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// Slept reports the total duration passed to Sleep.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}
