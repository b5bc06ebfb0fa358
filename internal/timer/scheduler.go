package timer

import (
	"sync"
	"time"
)

// DefaultInterval is the nominal tick period.
const DefaultInterval = time.Second

// Handle is a cancellable periodic task.
type Handle struct {
	stopChan chan struct{}
	once     sync.Once
}

// Every runs fn every interval on its own goroutine until Stop is called.
func Every(interval time.Duration, fn func()) *Handle {
	h := &Handle{stopChan: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stopChan:
				return
			case <-ticker.C:
				select {
				case <-h.stopChan:
					return
				default:
				}
				fn()
			}
		}
	}()

	return h
}

// Stop cancels the task. It does not wait for an in-flight callback.
func (h *Handle) Stop() {
	h.once.Do(func() { close(h.stopChan) })
}

// Scheduler recomputes the running issue's elapsed time from a wall-clock
// anchor on every tick, so late or skipped ticks never lose time.
type Scheduler struct {
	store    *Store
	clock    Clock
	interval time.Duration
	every    func(time.Duration, func()) *Handle

	mu          sync.Mutex
	issueID     string
	anchor      time.Time
	handle      *Handle
	unsubscribe func()
}

// NewScheduler creates a scheduler driving store. A zero interval uses DefaultInterval.
func NewScheduler(store *Store, clock Clock, interval time.Duration) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		store:    store,
		clock:    clock,
		interval: interval,
		every:    Every,
	}
}

// Start subscribes to the store. If an issue is already running its anchor
// is taken immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return
	}
	s.unsubscribe = s.store.Subscribe(s.handleEvent)
	s.mu.Unlock()

	if p := s.store.Active(); p.Running {
		s.arm(p.IssueID, p.Elapsed)
	}
}

// Stop unsubscribes and cancels the running task.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.cancelLocked()
}

// Anchor returns the issue being timed and its anchor timestamp.
func (s *Scheduler) Anchor() (issueID string, anchor time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueID, s.anchor, s.handle != nil
}

func (s *Scheduler) handleEvent(ev Event) {
	switch ev.Kind {
	case EventStarted, EventResumed:
		s.arm(ev.IssueID, ev.Elapsed)
	case EventPaused, EventEnded:
		s.disarm(ev.IssueID)
	}
}

func (s *Scheduler) arm(issueID string, elapsed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	anchor := s.clock.Now().Add(-time.Duration(elapsed) * time.Second)
	s.issueID = issueID
	s.anchor = anchor
	s.handle = s.every(s.interval, func() { s.fire(issueID, anchor) })
}

func (s *Scheduler) disarm(issueID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.issueID == issueID {
		s.cancelLocked()
	}
}

func (s *Scheduler) cancelLocked() {
	if s.handle != nil {
		s.handle.Stop()
		s.handle = nil
	}
	s.issueID = ""
	s.anchor = time.Time{}
}

// fire pushes the anchor-derived elapsed time. The store rejects it if the
// issue stopped or switched after the tick was scheduled.
func (s *Scheduler) fire(issueID string, anchor time.Time) {
	elapsed := int64(s.clock.Now().Sub(anchor) / time.Second)
	_ = s.store.UpdateIssueTime(issueID, elapsed)
}
