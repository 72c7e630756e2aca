// SPDX-License-Identifier: MPL-2.0

// Package clock abstracts time for components with deadlines and retries so
// tests can drive them deterministically.
package clock

import (
	"sync"
	"time"
)

type (
	// Clock is the subset of the time package used by deadline and retry loops.
	Clock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
		Since(t time.Time) time.Duration
	}

	// Real is backed by the system clock.
	Real struct{}

	// Fake only moves when Advance or Set is called, or on every Now call when
	// an auto-advance step is configured.
	Fake struct {
		mu      sync.Mutex
		current time.Time
		step    time.Duration
		waiters []waiter
	}

	waiter struct {
		target time.Time
		ch     chan time.Time
	}
)

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// After returns time.After(d).
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Since returns time.Since(t).
func (Real) Since(t time.Time) time.Duration { return time.Since(t) }

// NewFake returns a Fake set to initial, or to 2020-01-01 UTC when initial is
// the zero time.
func NewFake(initial time.Time) *Fake {
	if initial.IsZero() {
		initial = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Fake{current: initial}
}

// SetAutoAdvance makes every subsequent Now call move the clock forward by step
// after reading it. A zero step disables auto-advance.
func (c *Fake) SetAutoAdvance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
}

// Now returns the fake time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	if c.step > 0 {
		c.current = c.current.Add(c.step)
		c.notifyLocked()
	}
	return now
}

// After returns a channel that fires once the fake time reaches now+d.
func (c *Fake) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.waiters = append(c.waiters, waiter{target: c.current.Add(d), ch: ch})
	return ch
}

// Since returns the fake time elapsed since t.
func (c *Fake) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Sub(t)
}

// Advance moves the fake time forward by d and fires due After channels.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	c.notifyLocked()
}

// Set moves the fake time to t and fires due After channels.
func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	c.notifyLocked()
}

// Pending returns the number of After channels that have not fired yet.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// notifyLocked must be called with mu held.
func (c *Fake) notifyLocked() {
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if c.current.Before(w.target) {
			remaining = append(remaining, w)
			continue
		}
		select {
		case w.ch <- c.current:
		default:
		}
	}
	c.waiters = remaining
}
