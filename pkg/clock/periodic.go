package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// PeriodicTask invokes a function on every tick of a Ticker until stopped.
// Invocations are serialised on the task's own goroutine.
type PeriodicTask struct {
	ticker Ticker
	fn     func(now time.Time) bool

	mu       sync.Mutex
	stopped  atomic.Bool
	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// Every starts a PeriodicTask. fn returns false to stop the task from inside a tick.
func Every(c Clock, interval time.Duration, fn func(now time.Time) bool) *PeriodicTask {
	task := &PeriodicTask{
		ticker: c.NewTicker(interval),
		fn:     fn,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go task.run()

	return task
}

func (t *PeriodicTask) run() {
	defer close(t.done)
	defer t.ticker.Stop()

	for {
		select {
		case <-t.quit:
			return
		case now := <-t.ticker.C():
			if !t.fire(now) {
				t.stopped.Store(true)
				return
			}
		}
	}
}

func (t *PeriodicTask) fire(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped.Load() {
		return false
	}

	return t.fn(now)
}

// Stop halts the task. Once Stop returns the function will not be invoked again.
// It waits for an in-flight invocation so it must not be called from inside fn.
func (t *PeriodicTask) Stop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		close(t.quit)
	})

	t.mu.Lock()
	t.mu.Unlock()
}

func (t *PeriodicTask) Stopped() bool {
	return t.stopped.Load()
}

// Done is closed once the task goroutine has exited
func (t *PeriodicTask) Done() <-chan struct{} {
	return t.done
}
