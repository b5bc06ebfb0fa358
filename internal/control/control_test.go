package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issue_timer/internal/db"
	"issue_timer/internal/issue"
	"issue_timer/internal/session"
	"issue_timer/internal/timer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	ctl   *Controller
	store *timer.Store
	sync  *session.Synchronizer
	repo  *session.Repository
	reg   *issue.Registry
	clock *fakeClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	reg, err := issue.NewRegistry(ctx, conn)
	require.NoError(t, err)
	for _, i := range []issue.Issue{
		{ID: "42", Title: "Login", Number: 42, Repository: "acme/web"},
		{ID: "7", Title: "Docs", Number: 7, Repository: "acme/web"},
	} {
		_, err := reg.Track(ctx, i)
		require.NoError(t, err)
	}

	e := &env{clock: &fakeClock{now: time.UnixMilli(1_700_000_000_000)}, repo: session.NewRepository(conn), reg: reg}
	e.wire(t)
	return e
}

func (e *env) wire(t *testing.T) {
	t.Helper()
	e.store = timer.NewStore(e.clock)
	e.sync = session.NewSynchronizer(session.SyncerConfig{Recorder: e.repo, Issues: e.reg, UserID: "u1", Projector: e.repo})
	t.Cleanup(e.sync.Attach(e.store))
	e.ctl = New(e.store, e.reg, e.sync, StaticIdentity("u1"))
}

// restart builds a fresh engine on the same database and restores it.
func (e *env) restart(t *testing.T) *env {
	t.Helper()
	fresh := &env{clock: e.clock, repo: e.repo, reg: e.reg}
	fresh.wire(t)
	n, err := fresh.ctl.Restore(context.Background(), fresh.repo)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	return fresh
}

func (e *env) tick(t *testing.T, seconds int) {
	t.Helper()
	for i := 0; i < seconds; i++ {
		e.clock.Advance(time.Second)
		a := e.store.Active()
		require.NoError(t, e.store.UpdateIssueTime(a.IssueID, a.Elapsed+1))
	}
}

func (e *env) sessions(t *testing.T, issueID string) []session.WorkSession {
	t.Helper()
	e.sync.Flush(context.Background())
	list, err := e.repo.List(context.Background(), session.ListOptions{IssueID: issueID})
	require.NoError(t, err)
	return list
}

func TestController_StartRequiresTrackedIssue(t *testing.T) {
	e := newEnv(t)
	err := e.ctl.Start("nope")
	assert.True(t, errors.Is(err, issue.ErrNotTracked))
	assert.Equal(t, "", e.store.ActiveIssueID())
}

func TestController_PauseSwitchScenario(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.ctl.Start("42"))
	e.tick(t, 5)
	e.ctl.Pause()

	list := e.sessions(t, "42")
	require.Len(t, list, 1)
	assert.Equal(t, int64(5000), list[0].Duration)
	assert.True(t, list[0].IsPaused)

	require.NoError(t, e.ctl.Start("7"))
	e42, _ := e.store.Entry("42")
	assert.Equal(t, int64(5), e42.Elapsed)

	// A stale resume for 42 while 7 is active does nothing.
	assert.Error(t, e.store.ResumeTimer("42"))
	p := e.ctl.Projection()
	assert.Equal(t, "7", p.IssueID)
	assert.True(t, p.Running)
	assert.Equal(t, "acme/web#7 Docs", p.Label)
}

func TestController_ToggleAndEndWithNotes(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.ctl.Start("42"))
	e.tick(t, 2)

	e.ctl.Toggle()
	assert.False(t, e.ctl.Projection().Running)
	e.ctl.Toggle()
	assert.True(t, e.ctl.Projection().Running)

	e.ctl.AddParticipant("bob")
	notes := "fixed the redirect"
	e.ctl.End(&notes)
	assert.Equal(t, Projection{}, e.ctl.Projection())

	list := e.sessions(t, "42")
	require.Len(t, list, 1)
	w := list[0]
	assert.False(t, w.IsActive)
	assert.Equal(t, "fixed the redirect", w.Notes)
	assert.Equal(t, []string{"bob"}, w.Participants)
	assert.Equal(t, int64(2000), w.Duration)

	// Nothing active: every command is a no-op.
	e.ctl.End(nil)
	e.ctl.Pause()
	e.ctl.Resume()
	e.ctl.SetNotes("x")
	_, ok := e.ctl.CurrentSession()
	assert.False(t, ok)
}

func TestController_DoubleStartOneSession(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.ctl.Start("42"))
	require.NoError(t, e.ctl.Start("42"))
	assert.Len(t, e.sessions(t, "42"), 1)
}

func TestController_RestoreContinuesEpisode(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.ctl.Start("42"))
	e.tick(t, 4)
	before := e.sessions(t, "42")
	require.Len(t, before, 1)

	fresh := e.restart(t)

	entry, ok := fresh.store.Entry("42")
	require.True(t, ok)
	assert.Equal(t, int64(4), entry.Elapsed)
	assert.False(t, entry.Running)

	require.NoError(t, fresh.ctl.Start("42"))
	fresh.tick(t, 1)
	after := fresh.sessions(t, "42")
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, int64(5000), after[0].Duration)
}

func TestController_RestoreMarksSessionsPaused(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.ctl.Start("42"))
	e.tick(t, 4)
	e.sessions(t, "42")

	id, running, err := e.repo.Running(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.True(t, running)

	fresh := e.restart(t)
	fresh.sync.Flush(ctx)

	w, ok := fresh.sync.Session("42")
	require.True(t, ok)
	assert.True(t, w.IsPaused)

	list := fresh.sessions(t, "42")
	require.Len(t, list, 1)
	assert.True(t, list[0].IsActive)
	assert.True(t, list[0].IsPaused)
	assert.Equal(t, int64(4000), list[0].Duration)

	id, running, err = fresh.repo.Running(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "", id)
	assert.False(t, running)
}

func TestController_RestoredSessionOutlivesUntrack(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.ctl.Start("42"))
	e.tick(t, 2)
	e.sessions(t, "42")

	fresh := e.restart(t)
	require.NoError(t, fresh.reg.Untrack(context.Background(), "42"))

	require.NoError(t, fresh.ctl.Start("42"))
	assert.True(t, fresh.ctl.Projection().Running)
	fresh.ctl.End(nil)

	list := fresh.sessions(t, "42")
	require.Len(t, list, 1)
	assert.False(t, list[0].IsActive)
	assert.Equal(t, int64(2000), list[0].Duration)

	assert.True(t, errors.Is(fresh.ctl.Start("42"), issue.ErrNotTracked))
}
