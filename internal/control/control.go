// Package control is the user-facing command surface of the timer engine.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"

	"issue_timer/internal/issue"
	"issue_timer/internal/session"
	"issue_timer/internal/timer"
)

// Identity supplies the current user.
type Identity interface {
	UserID() string
}

// StaticIdentity is a fixed, configured user id.
type StaticIdentity string

func (s StaticIdentity) UserID() string { return string(s) }

// SessionLister is the read side of the session repository used by Restore.
type SessionLister interface {
	List(ctx context.Context, opts session.ListOptions) ([]session.WorkSession, error)
}

// Controller translates user intents into store mutations and synchronizer
// commands. No method blocks on I/O.
type Controller struct {
	store    *timer.Store
	issues   issue.Source
	sync     *session.Synchronizer
	identity Identity
}

// New builds a controller.
func New(store *timer.Store, issues issue.Source, sync *session.Synchronizer, identity Identity) *Controller {
	return &Controller{store: store, issues: issues, sync: sync, identity: identity}
}

// Start begins or switches to issueID. Untracked issues are refused unless
// the store still holds an entry for them, as it does for a session
// restored after a restart.
func (c *Controller) Start(issueID string) error {
	if _, err := c.issues.Lookup(issueID); err != nil {
		if _, ok := c.store.Entry(issueID); !ok {
			return err
		}
	}
	c.ignore(c.store.StartTimer(issueID))
	return nil
}

// Pause stops the running active issue, if any.
func (c *Controller) Pause() {
	c.ignore(c.store.PauseTimer(c.store.ActiveIssueID()))
}

// Resume restarts the paused active issue, if any.
func (c *Controller) Resume() {
	c.ignore(c.store.ResumeTimer(c.store.ActiveIssueID()))
}

// Toggle pauses a running active issue or resumes a paused one.
func (c *Controller) Toggle() {
	if c.store.Active().Running {
		c.Pause()
		return
	}
	c.Resume()
}

// End finishes the active episode. Non-nil notes replace the session notes first.
func (c *Controller) End(notes *string) {
	id := c.store.ActiveIssueID()
	if id == "" {
		return
	}
	if notes != nil {
		c.sync.SetNotes(id, *notes)
	}
	c.ignore(c.store.EndTimer(id))
}

// AddParticipant adds userID to the active session.
func (c *Controller) AddParticipant(userID string) {
	if id := c.store.ActiveIssueID(); id != "" {
		c.sync.AddParticipant(id, userID)
	}
}

// SetNotes overwrites the notes of the active session.
func (c *Controller) SetNotes(notes string) {
	if id := c.store.ActiveIssueID(); id != "" {
		c.sync.SetNotes(id, notes)
	}
}

// Projection is the read model hosts render.
type Projection struct {
	IssueID string `json:"issueId"`
	Elapsed int64  `json:"elapsed"`
	Running bool   `json:"running"`
	Title   string `json:"title,omitempty"`
	Label   string `json:"label,omitempty"`
}

// Projection reports the active issue and its elapsed seconds.
func (c *Controller) Projection() Projection {
	a := c.store.Active()
	p := Projection{IssueID: a.IssueID, Elapsed: a.Elapsed, Running: a.Running}
	if a.IssueID != "" {
		if i, err := c.issues.Lookup(a.IssueID); err == nil {
			p.Title = i.Title
			p.Label = i.Label()
		}
	}
	return p
}

// CurrentSession returns the in-memory session of the active issue.
func (c *Controller) CurrentSession() (session.WorkSession, bool) {
	id := c.store.ActiveIssueID()
	if id == "" {
		return session.WorkSession{}, false
	}
	return c.sync.Session(id)
}

// UserID is the identity sessions are recorded under.
func (c *Controller) UserID() string { return c.identity.UserID() }

// Restore reloads the user's open sessions after a restart. They come back
// paused with their recorded elapsed time, their records are marked paused,
// and they continue the same episode when started again.
func (c *Controller) Restore(ctx context.Context, lister SessionLister) (int, error) {
	open, err := lister.List(ctx, session.ListOptions{UserID: c.identity.UserID(), ActiveOnly: true})
	if err != nil {
		return 0, fmt.Errorf("listing open sessions: %w", err)
	}
	c.sync.Adopt(open)

	n := 0
	for _, w := range open {
		if err := c.store.Load(w.IssueID, w.Duration/1000); err != nil {
			log.Printf("control: restore %s: %v", w.IssueID, err)
			continue
		}
		n++
	}
	return n, nil
}

func (c *Controller) ignore(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, timer.ErrInvalidTransition) || errors.Is(err, timer.ErrStaleCallback) {
		return
	}
	log.Printf("control: %v", err)
}
