// Package timeutil provides a testable abstraction over the clock used for
// candidate timestamps, placement records and the simulated frame loop.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// NewTicker returns a Ticker that delivers ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker holds a channel that delivers ticks of a clock at intervals.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// NewTicker returns a ticker backed by time.Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// MockClock is a manually controlled clock for testing.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*MockTicker
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the mocked duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d and fires every ticker whose next tick
// has been reached. A ticker fires at most once per Advance.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*MockTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.checkAndFire(now)
	}
}

// NewTicker creates a MockTicker driven by Advance.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &MockTicker{
		ch:       make(chan time.Time, 1),
		interval: d,
		nextTick: c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// MockTicker is a manually controlled ticker for testing.
type MockTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	nextTick time.Time
	stopped  bool
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop turns off the ticker.
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *MockTicker) checkAndFire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.nextTick) {
		return
	}
	for !now.Before(t.nextTick) {
		t.nextTick = t.nextTick.Add(t.interval)
	}
	// Drop the tick if the previous one has not been consumed.
	select {
	case t.ch <- now:
	default:
	}
}
