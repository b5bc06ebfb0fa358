package timer

import (
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// manualTicks replaces Every so tests decide when the interval fires.
type manualTicks struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	fn     func()
	handle *Handle
}

func (m *manualTicks) every(_ time.Duration, fn func()) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &Handle{stopChan: make(chan struct{})}
	m.tasks = append(m.tasks, &manualTask{fn: fn, handle: h})
	return h
}

// fireLive runs every task that has not been stopped.
func (m *manualTicks) fireLive() {
	m.mu.Lock()
	tasks := append([]*manualTask(nil), m.tasks...)
	m.mu.Unlock()
	for _, t := range tasks {
		select {
		case <-t.handle.stopChan:
		default:
			t.fn()
		}
	}
}

// fireAll runs every task, including cancelled ones, like a callback
// that was already in flight when Stop was called.
func (m *manualTicks) fireAll() {
	m.mu.Lock()
	tasks := append([]*manualTask(nil), m.tasks...)
	m.mu.Unlock()
	for _, t := range tasks {
		t.fn()
	}
}
