package timer

import (
	"sync"
	"time"
)

// Clock provides time information for tick computation.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// TestClock provides controllable time for testing.
type TestClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
}

// Now returns the test time.
func (t *TestClock) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CurrentTime
}

// Advance moves the test time forward.
func (t *TestClock) Advance(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CurrentTime = t.CurrentTime.Add(d)
}

// CancelFunc stops a scheduled callback. Safe to call more than once; a
// cancelled callback never fires again.
type CancelFunc func()

// Scheduler registers periodic callbacks. The engine holds one registration
// per running session clock.
type Scheduler interface {
	Schedule(interval time.Duration, fn func()) CancelFunc
}

// TickerScheduler runs callbacks on real time.Ticker goroutines.
type TickerScheduler struct{}

// Schedule runs fn every interval until cancelled.
func (TickerScheduler) Schedule(interval time.Duration, fn func()) CancelFunc {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// ManualScheduler fires callbacks only when Fire is called. Used in tests to
// drive ticks deterministically.
type ManualScheduler struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{fns: make(map[int]func())}
}

// Schedule registers fn without starting any timer.
func (m *ManualScheduler) Schedule(_ time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	id := m.next
	m.next++
	m.fns[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.fns, id)
		m.mu.Unlock()
	}
}

// Fire invokes every registered callback once, synchronously.
func (m *ManualScheduler) Fire() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.fns))
	for _, fn := range m.fns {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Len reports how many callbacks are registered.
func (m *ManualScheduler) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}
