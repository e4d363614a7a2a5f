// Package clock provides time abstraction so timer driven code (progress ticks, pacing cues)
// can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and tickers
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker behind an interface
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock using the system time
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(sanitiseInterval(d))}
}

type realTicker struct {
	ticker *time.Ticker
}

func (r *realTicker) C() <-chan time.Time {
	return r.ticker.C
}

func (r *realTicker) Stop() {
	r.ticker.Stop()
}

// MockClock is a controllable, thread-safe Clock for tests.
// Tickers created from it only fire when the clock is moved with Advance or Set.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
	tickers     []*mockTicker
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *MockClock) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()

	ticker := &mockTicker{
		interval: sanitiseInterval(d),
		next:     m.currentTime.Add(sanitiseInterval(d)),
		channel:  make(chan time.Time, 1),
	}
	m.tickers = append(m.tickers, ticker)

	return ticker
}

// Set changes the current time, firing any tickers that became due
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.currentTime = t
	tickers := append([]*mockTicker(nil), m.tickers...)
	m.mu.Unlock()

	for _, ticker := range tickers {
		ticker.fireUntil(t)
	}
}

// Advance moves the clock forward by d
func (m *MockClock) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

type mockTicker struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	stopped  bool
	channel  chan time.Time
}

func (t *mockTicker) C() <-chan time.Time {
	return t.channel
}

func (t *mockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// fireUntil delivers a tick for every interval boundary up to now.
// Like time.Ticker, ticks are dropped when the reader is behind.
func (t *mockTicker) fireUntil(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for !t.stopped && !t.next.After(now) {
		select {
		case t.channel <- t.next:
		default:
		}
		t.next = t.next.Add(t.interval)
	}
}

func sanitiseInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
