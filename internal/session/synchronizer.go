package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"issue_timer/internal/issue"
	"issue_timer/internal/notify"
	"issue_timer/internal/timer"
)

// DefaultRetryInterval bounds how long a failed write waits when no tick arrives.
const DefaultRetryInterval = 5 * time.Second

// Recorder is the durable side of the synchronizer.
type Recorder interface {
	Save(ctx context.Context, w *WorkSession) error
}

type opKind int

const (
	opEvent opKind = iota
	opParticipant
	opNotes
)

type op struct {
	kind    opKind
	event   timer.Event
	issueID string
	value   string
}

type record struct {
	session      WorkSession
	version      uint64
	dirty        bool
	persisted    bool
	failures     int
	createNotice bool
	endNotice    bool
}

// SyncerConfig wires a Synchronizer.
type SyncerConfig struct {
	Recorder      Recorder
	Issues        issue.Source
	UserID        string
	Notifier      notify.Notifier
	Projector     Projector
	RetryInterval time.Duration
}

// Synchronizer turns timer transitions into WorkSession writes. It is the
// only writer of session records. Events are queued without blocking the
// store and applied on the Run goroutine; every failed write stays dirty and
// is retried on the next flush.
type Synchronizer struct {
	recorder  Recorder
	issues    issue.Source
	userID    string
	notifier  notify.Notifier
	projector Projector
	retry     time.Duration
	newID     func() string

	qmu   sync.Mutex
	queue []op
	wake  chan struct{}

	// flushMu serializes flushes; mu guards the records and is never held
	// across a durable write.
	flushMu sync.Mutex

	mu          sync.Mutex
	active      map[string]*record
	ended       []*record
	running     string
	projDirty   bool
	projVersion uint64
	projectAt   int64
}

// NewSynchronizer creates a synchronizer. Call Attach and Run to start it.
func NewSynchronizer(cfg SyncerConfig) *Synchronizer {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NoopNotifier{}
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &Synchronizer{
		recorder:  cfg.Recorder,
		issues:    cfg.Issues,
		userID:    cfg.UserID,
		notifier:  cfg.Notifier,
		projector: cfg.Projector,
		retry:     cfg.RetryInterval,
		newID:     func() string { return uuid.New().String() },
		wake:      make(chan struct{}, 1),
		active:    make(map[string]*record),
	}
}

// Attach subscribes to store transitions.
func (s *Synchronizer) Attach(store *timer.Store) (detach func()) {
	return store.Subscribe(func(ev timer.Event) {
		s.enqueue(op{kind: opEvent, event: ev, issueID: ev.IssueID})
	})
}

// AddParticipant appends userID to the active session of issueID.
func (s *Synchronizer) AddParticipant(issueID, userID string) {
	s.enqueue(op{kind: opParticipant, issueID: issueID, value: userID})
}

// SetNotes overwrites the notes of the active session of issueID.
func (s *Synchronizer) SetNotes(issueID, notes string) {
	s.enqueue(op{kind: opNotes, issueID: issueID, value: notes})
}

func (s *Synchronizer) enqueue(o op) {
	s.qmu.Lock()
	s.queue = append(s.queue, o)
	s.qmu.Unlock()
	s.kick()
}

func (s *Synchronizer) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Adopt takes ownership of sessions that were active before a restart so
// the next start continues them instead of opening a new episode. Nothing
// runs after a restart: adopted sessions are marked paused and the running
// projection is cleared on the next flush.
func (s *Synchronizer) Adopt(sessions []WorkSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := time.Now().UnixMilli()
	for _, w := range sessions {
		if !w.IsActive {
			continue
		}
		if _, ok := s.active[w.IssueID]; ok {
			continue
		}
		rec := &record{session: w.clone(), persisted: true}
		if !rec.session.IsPaused {
			rec.session.IsPaused = true
			rec.session.UpdatedAt = at
			rec.touch()
		}
		s.active[w.IssueID] = rec
	}
	if s.running == "" {
		s.projDirty = true
		s.projVersion++
		s.projectAt = at
	}
	s.kick()
}

// Session returns a copy of the active session for issueID.
func (s *Synchronizer) Session(issueID string) (WorkSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.active[issueID]
	if !ok {
		return WorkSession{}, false
	}
	return rec.session.clone(), true
}

// Pending reports how many records still wait for a successful write.
func (s *Synchronizer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.ended)
	for _, rec := range s.active {
		if rec.dirty {
			n++
		}
	}
	return n
}

// Run applies queued operations until ctx is cancelled, then makes a final
// flush attempt.
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Flush(flushCtx)
			return nil
		case <-s.wake:
			s.Flush(ctx)
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush applies everything queued so far and writes all dirty records.
// Readers such as Session are never blocked by the writes.
func (s *Synchronizer) Flush(ctx context.Context) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.qmu.Lock()
	ops := s.queue
	s.queue = nil
	s.qmu.Unlock()

	s.mu.Lock()
	for _, o := range ops {
		s.apply(o)
	}
	batch := s.dirtyLocked()
	writeProj := s.projDirty && s.projector != nil
	running, projVersion, projectAt := s.running, s.projVersion, s.projectAt
	s.mu.Unlock()

	errs := make([]error, len(batch))
	for i := range batch {
		errs[i] = s.recorder.Save(ctx, &batch[i].session)
	}
	var projErr error
	if writeProj {
		projErr = s.projector.SetRunning(ctx, s.userID, running, running != "", projectAt)
	}

	s.mu.Lock()
	var notices []notify.Notification
	for i, p := range batch {
		if n, ok := s.settle(p, errs[i]); ok {
			notices = append(notices, n)
		}
	}
	remaining := s.ended[:0]
	for _, rec := range s.ended {
		if rec.dirty {
			remaining = append(remaining, rec)
		}
	}
	s.ended = remaining
	if writeProj {
		if projErr != nil {
			log.Printf("session: projection write failed: %v", projErr)
		} else if s.projVersion == projVersion {
			s.projDirty = false
		}
	}
	s.mu.Unlock()

	for _, n := range notices {
		if err := s.notifier.Send(n); err != nil {
			log.Printf("session: notify failed: %v", err)
		}
	}
}

// pendingWrite is a copy of a dirty record taken under mu.
type pendingWrite struct {
	rec     *record
	session WorkSession
	version uint64
}

func (r *record) touch() {
	r.version++
	r.dirty = true
}

func (s *Synchronizer) apply(o op) {
	switch o.kind {
	case opParticipant:
		if rec, ok := s.active[o.issueID]; ok && rec.session.AddParticipant(o.value) {
			rec.touch()
		}
	case opNotes:
		if rec, ok := s.active[o.issueID]; ok && rec.session.Notes != o.value {
			rec.session.Notes = o.value
			rec.touch()
		}
	case opEvent:
		s.applyEvent(o.event)
	}
}

func (s *Synchronizer) applyEvent(ev timer.Event) {
	at := ev.At.UnixMilli()
	rec, ok := s.active[ev.IssueID]

	switch ev.Kind {
	case timer.EventStarted, timer.EventResumed:
		if !ok {
			rec = &record{session: New(s.newID(), s.userID, s.snapshot(ev.IssueID), at)}
			s.active[ev.IssueID] = rec
		}
		rec.session.IsPaused = false
		rec.session.FlushElapsed(ev.Elapsed)
		s.setRunning(ev.IssueID, at)

	case timer.EventPaused:
		if !ok {
			return
		}
		rec.session.IsPaused = true
		rec.session.FlushElapsed(ev.Elapsed)
		s.clearRunning(ev.IssueID, at)

	case timer.EventTicked:
		if !ok {
			return
		}
		rec.session.FlushElapsed(ev.Elapsed)

	case timer.EventEnded:
		if !ok {
			return
		}
		rec.session.FlushElapsed(ev.Elapsed)
		rec.session.End(at)
		delete(s.active, ev.IssueID)
		s.ended = append(s.ended, rec)
		s.clearRunning(ev.IssueID, at)
	}

	rec.session.UpdatedAt = at
	rec.touch()
}

func (s *Synchronizer) snapshot(issueID string) issue.Issue {
	if s.issues != nil {
		if i, err := s.issues.Lookup(issueID); err == nil {
			return i
		}
		log.Printf("session: no tracked snapshot for issue %s", issueID)
	}
	return issue.Issue{ID: issueID}
}

func (s *Synchronizer) setRunning(issueID string, at int64) {
	s.running = issueID
	s.projDirty = true
	s.projVersion++
	s.projectAt = at
}

func (s *Synchronizer) clearRunning(issueID string, at int64) {
	if s.running != issueID {
		return
	}
	s.running = ""
	s.projDirty = true
	s.projVersion++
	s.projectAt = at
}

func (s *Synchronizer) dirtyLocked() []pendingWrite {
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var batch []pendingWrite
	add := func(rec *record) {
		if rec.dirty {
			batch = append(batch, pendingWrite{rec: rec, session: rec.session.clone(), version: rec.version})
		}
	}
	for _, id := range ids {
		add(s.active[id])
	}
	for _, rec := range s.ended {
		add(rec)
	}
	return batch
}

// settle records the outcome of a write. A record mutated while its write
// was in flight stays dirty. The returned notification, if any, is sent
// after mu is released.
func (s *Synchronizer) settle(p pendingWrite, err error) (notify.Notification, bool) {
	rec, w := p.rec, p.session
	if err == nil {
		rec.persisted = true
		rec.failures = 0
		if rec.version == p.version {
			rec.dirty = false
		}
		return notify.Notification{}, false
	}

	rec.failures++
	werr := &WriteError{SessionID: w.ID, IssueID: w.IssueID, Attempts: rec.failures, Err: err}
	log.Printf("session: %v", werr)

	if errors.Is(err, context.Canceled) {
		return notify.Notification{}, false
	}
	switch {
	case !rec.persisted && !rec.createNotice:
		rec.createNotice = true
		return notify.Notification{
			Title:   "Session not recorded",
			Message: fmt.Sprintf("Could not create the session record for %s; timing continues and the write will be retried.", label(w)),
			Type:    notify.NotifyWarning,
			IssueID: w.IssueID,
		}, true
	case !w.IsActive && !rec.endNotice:
		rec.endNotice = true
		return notify.Notification{
			Title:   "Session not saved",
			Message: fmt.Sprintf("Ending the session for %s could not be saved after %d attempts: %v", label(w), rec.failures, err),
			Type:    notify.NotifyError,
			IssueID: w.IssueID,
		}, true
	}
	return notify.Notification{}, false
}

func label(w WorkSession) string {
	if w.IssueNumber != 0 {
		return fmt.Sprintf("%s#%d", w.IssueRepository, w.IssueNumber)
	}
	return w.IssueID
}
