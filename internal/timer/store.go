package timer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrInvalidTransition reports a request that does not apply to the
	// current state, typically a stale UI event. Callers drop it.
	ErrInvalidTransition = errors.New("invalid timer transition")
	// ErrStaleCallback reports a tick for an issue that is no longer running.
	ErrStaleCallback = errors.New("stale tick for inactive issue")
)

// EventKind identifies a timer state transition.
type EventKind int

const (
	EventStarted EventKind = iota + 1
	EventResumed
	EventPaused
	EventTicked
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventResumed:
		return "resumed"
	case EventPaused:
		return "paused"
	case EventTicked:
		return "ticked"
	case EventEnded:
		return "ended"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is published to subscribers after every successful mutation.
type Event struct {
	Kind    EventKind `json:"kind"`
	IssueID string    `json:"issueId"`
	Elapsed int64     `json:"elapsedTime"`
	At      time.Time `json:"at"`
}

// Entry is the accumulated time and running flag of one issue.
type Entry struct {
	IssueID string `json:"issueId"`
	Elapsed int64  `json:"elapsedTime"`
	Running bool   `json:"isRunning"`
}

// Projection is the read model consumed by timer displays.
type Projection struct {
	IssueID string `json:"issueId"`
	Elapsed int64  `json:"elapsedTime"`
	Running bool   `json:"isRunning"`
}

// Snapshot is a consistent copy of the whole store.
type Snapshot struct {
	ActiveIssueID string  `json:"activeIssueId"`
	Entries       []Entry `json:"entries"`
}

type subscriber struct {
	id int
	fn func(Event)
}

// Store is the single writer of timer state. At most one entry runs at a
// time and the running entry is always the active one.
//
// Subscribers are called synchronously, in mutation order, before the
// mutating call returns. A subscriber must not mutate the store from inside
// its callback.
type Store struct {
	dispatchMu sync.Mutex

	mu       sync.RWMutex
	clock    Clock
	entries  map[string]*Entry
	activeID string
	subs     []subscriber
	nextSub  int
}

// NewStore creates an empty store.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Store{
		clock:   clock,
		entries: make(map[string]*Entry),
	}
}

// Subscribe registers fn for every future event.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// mutate runs fn under the state lock and then delivers its events.
func (s *Store) mutate(fn func(now time.Time) ([]Event, error)) error {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	events, err := fn(s.clock.Now())
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, ev := range events {
		for _, sub := range subs {
			sub.fn(ev)
		}
	}
	return err
}

// StartTimer makes issueID the running issue, pausing whichever issue ran
// before. A missing entry is created at zero. Starting the running issue
// again is a no-op.
func (s *Store) StartTimer(issueID string) error {
	if issueID == "" {
		return fmt.Errorf("%w: empty issue id", ErrInvalidTransition)
	}
	return s.mutate(func(now time.Time) ([]Event, error) {
		target, exists := s.entries[issueID]
		if exists && target.Running {
			return nil, nil
		}

		var events []Event
		if prev := s.runningLocked(); prev != nil {
			prev.Running = false
			events = append(events, Event{Kind: EventPaused, IssueID: prev.IssueID, Elapsed: prev.Elapsed, At: now})
		}

		kind := EventResumed
		if !exists {
			target = &Entry{IssueID: issueID}
			s.entries[issueID] = target
			kind = EventStarted
		}
		target.Running = true
		s.activeID = issueID

		return append(events, Event{Kind: kind, IssueID: issueID, Elapsed: target.Elapsed, At: now}), nil
	})
}

// PauseTimer stops the clock of issueID if it is the active, running issue.
func (s *Store) PauseTimer(issueID string) error {
	return s.mutate(func(now time.Time) ([]Event, error) {
		e, ok := s.entries[issueID]
		if !ok || issueID != s.activeID || !e.Running {
			return nil, fmt.Errorf("%w: pause %q", ErrInvalidTransition, issueID)
		}
		e.Running = false
		return []Event{{Kind: EventPaused, IssueID: issueID, Elapsed: e.Elapsed, At: now}}, nil
	})
}

// ResumeTimer restarts the active issue after a pause. Any other issue is
// rejected; use StartTimer to switch issues.
func (s *Store) ResumeTimer(issueID string) error {
	return s.mutate(func(now time.Time) ([]Event, error) {
		e, ok := s.entries[issueID]
		if !ok || issueID == "" || issueID != s.activeID {
			return nil, fmt.Errorf("%w: resume %q", ErrInvalidTransition, issueID)
		}
		if e.Running {
			return nil, nil
		}
		e.Running = true
		return []Event{{Kind: EventResumed, IssueID: issueID, Elapsed: e.Elapsed, At: now}}, nil
	})
}

// UpdateIssueTime overwrites the elapsed seconds of the running issue.
// Updates for any other issue, or that would move time backwards, are rejected.
func (s *Store) UpdateIssueTime(issueID string, elapsed int64) error {
	return s.mutate(func(now time.Time) ([]Event, error) {
		e, ok := s.entries[issueID]
		if !ok || issueID != s.activeID || !e.Running {
			return nil, fmt.Errorf("%w: %q", ErrStaleCallback, issueID)
		}
		if elapsed < e.Elapsed {
			return nil, fmt.Errorf("%w: elapsed %d < %d", ErrInvalidTransition, elapsed, e.Elapsed)
		}
		if elapsed == e.Elapsed {
			return nil, nil
		}
		e.Elapsed = elapsed
		return []Event{{Kind: EventTicked, IssueID: issueID, Elapsed: elapsed, At: now}}, nil
	})
}

// EndTimer removes the entry of issueID and clears the active pointer if it
// pointed at it.
func (s *Store) EndTimer(issueID string) error {
	return s.mutate(func(now time.Time) ([]Event, error) {
		e, ok := s.entries[issueID]
		if !ok {
			return nil, fmt.Errorf("%w: end %q", ErrInvalidTransition, issueID)
		}
		delete(s.entries, issueID)
		if s.activeID == issueID {
			s.activeID = ""
		}
		return []Event{{Kind: EventEnded, IssueID: issueID, Elapsed: e.Elapsed, At: now}}, nil
	})
}

// Load seeds a paused entry for an issue whose session survived a restart.
// It publishes nothing and never overwrites an existing entry.
func (s *Store) Load(issueID string, elapsed int64) error {
	if issueID == "" || elapsed < 0 {
		return fmt.Errorf("%w: load %q", ErrInvalidTransition, issueID)
	}
	return s.mutate(func(time.Time) ([]Event, error) {
		if _, ok := s.entries[issueID]; ok {
			return nil, fmt.Errorf("%w: %q already loaded", ErrInvalidTransition, issueID)
		}
		s.entries[issueID] = &Entry{IssueID: issueID, Elapsed: elapsed}
		return nil, nil
	})
}

func (s *Store) runningLocked() *Entry {
	if e, ok := s.entries[s.activeID]; ok && e.Running {
		return e
	}
	return nil
}

// Entry returns a copy of the entry for issueID.
func (s *Store) Entry(issueID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[issueID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ActiveIssueID returns the issue the active pointer refers to, if any.
func (s *Store) ActiveIssueID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns the projection of the active issue.
func (s *Store) Active() Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[s.activeID]
	if !ok {
		return Projection{}
	}
	return Projection{IssueID: e.IssueID, Elapsed: e.Elapsed, Running: e.Running}
}

// HasRunningActive reports whether some running entry matches the active pointer.
func (s *Store) HasRunningActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Running && e.IssueID == s.activeID {
			return true
		}
	}
	return false
}

// Snapshot copies the full state, entries sorted by issue id.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{ActiveIssueID: s.activeID, Entries: make([]Entry, 0, len(s.entries))}
	for _, e := range s.entries {
		snap.Entries = append(snap.Entries, *e)
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].IssueID < snap.Entries[j].IssueID
	})
	return snap
}
