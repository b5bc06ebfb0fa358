package internal

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issue_timer/internal/control"
	"issue_timer/internal/db"
	"issue_timer/internal/guard"
	"issue_timer/internal/issue"
	"issue_timer/internal/notify"
	"issue_timer/internal/session"
	"issue_timer/internal/timer"
)

type stubClock struct{ t time.Time }

func (c *stubClock) Now() time.Time { return c.t }

type dashboard struct {
	model *Model
	store *timer.Store
	sync  *session.Synchronizer
	repo  *session.Repository
}

func newDashboard(t *testing.T) *dashboard {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	reg, err := issue.NewRegistry(ctx, conn)
	require.NoError(t, err)
	repo := session.NewRepository(conn)
	store := timer.NewStore(&stubClock{t: time.Now()})
	sync := session.NewSynchronizer(session.SyncerConfig{Recorder: repo, Issues: reg, UserID: "u1"})
	t.Cleanup(sync.Attach(store))

	qg := &QuitGuard{}
	g := guard.New(store, qg)
	t.Cleanup(g.Close)

	ctl := control.New(store, reg, sync, control.StaticIdentity("u1"))
	m := NewModel(Deps{Controller: ctl, Store: store, Issues: reg, Sessions: repo, Guard: qg})
	return &dashboard{model: m, store: store, sync: sync, repo: repo}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func (d *dashboard) press(keys ...string) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = d.model.Update(key(k))
	}
	return cmd
}

func (d *dashboard) track(t *testing.T, ref, title string) {
	t.Helper()
	d.press("n", ref, "tab", title, "enter")
	require.NoError(t, d.model.Err)
}

func (d *dashboard) sessions(t *testing.T) []session.WorkSession {
	t.Helper()
	d.sync.Flush(context.Background())
	list, err := d.repo.List(context.Background(), session.ListOptions{UserID: "u1"})
	require.NoError(t, err)
	return list
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModel_EmptyState(t *testing.T) {
	d := newDashboard(t)
	assert.Contains(t, d.model.View(), "No tracked issues yet")
}

func TestModel_AddIssueForm(t *testing.T) {
	d := newDashboard(t)
	d.track(t, "acme/web#42", "Fix login")

	require.Len(t, d.model.Issues, 1)
	i := d.model.Issues[0]
	assert.Equal(t, "acme/web#42", i.ID)
	assert.Equal(t, 42, i.Number)
	assert.Equal(t, "acme/web", i.Repository)
	assert.Equal(t, "Fix login", i.Title)
	assert.False(t, d.model.ShowAddForm)
	assert.Contains(t, d.model.View(), "Tracked issues")
}

func TestModel_AddIssueFormRejectsBadRef(t *testing.T) {
	d := newDashboard(t)
	d.press("n", "not-a-ref", "tab", "x", "enter")
	assert.ErrorIs(t, d.model.Err, issue.ErrInvalid)
	assert.Empty(t, d.model.Issues)
}

func TestModel_FormBackspace(t *testing.T) {
	d := newDashboard(t)
	d.press("n", "acme/web#4", "backspace", "7")
	assert.Equal(t, "acme/web#7", d.model.NewIssueRef)
	d.press("esc")
	assert.False(t, d.model.ShowAddForm)
}

func TestModel_EnterTogglesTimer(t *testing.T) {
	d := newDashboard(t)
	d.track(t, "acme/web#42", "Login")

	d.press("enter")
	assert.Equal(t, "acme/web#42", d.model.ActiveID)
	assert.True(t, d.model.Entries["acme/web#42"].Running)

	d.press("enter")
	assert.False(t, d.model.Entries["acme/web#42"].Running)
	assert.Equal(t, "acme/web#42", d.model.ActiveID)

	d.press("enter")
	assert.True(t, d.model.Entries["acme/web#42"].Running)
}

func TestModel_SwitchIssues(t *testing.T) {
	d := newDashboard(t)
	d.track(t, "acme/web#42", "Login")
	d.track(t, "acme/web#7", "Docs")

	d.model.SelectedIndex = 0
	d.press("enter")
	d.press("down", "enter")

	assert.Equal(t, "acme/web#7", d.model.ActiveID)
	assert.False(t, d.model.Entries["acme/web#42"].Running)
	assert.True(t, d.model.Entries["acme/web#7"].Running)
	assert.Len(t, d.sessions(t), 2)
}

func TestModel_QuitIsGuardedWhileRunning(t *testing.T) {
	d := newDashboard(t)
	d.track(t, "acme/web#42", "Login")

	assert.True(t, isQuit(d.press("q")), "nothing running: quit immediately")

	d.press("enter")
	assert.False(t, isQuit(d.press("q")))
	assert.True(t, d.model.ShowQuitConfirm)
	assert.Contains(t, d.model.View(), "still running")

	assert.False(t, isQuit(d.press("n")))
	assert.False(t, d.model.ShowQuitConfirm)

	d.press("q")
	assert.True(t, isQuit(d.press("y")))
}

func TestModel_GuardDisarmClosesConfirm(t *testing.T) {
	d := newDashboard(t)
	d.track(t, "acme/web#42", "Login")
	d.press("enter", "q")
	require.True(t, d.model.ShowQuitConfirm)

	d.model.Update(MsgGuard{Armed: false})
	assert.False(t, d.model.ShowQuitConfirm)
}

func TestModel_EndWithNotes(t *testing.T) {
	d := newDashboard(t)
	d.track(t, "acme/web#42", "Login")
	d.press("enter")

	d.press("a", "bob", "enter")
	assert.False(t, d.model.ShowParticipantInput)

	d.press("e")
	require.True(t, d.model.ShowNotesInput)
	assert.Contains(t, d.model.View(), "End Session")
	d.press("shipped", "enter")

	assert.False(t, d.model.ShowNotesInput)
	assert.Equal(t, "", d.model.ActiveID)
	_, ok := d.store.Entry("acme/web#42")
	assert.False(t, ok)

	list := d.sessions(t)
	require.Len(t, list, 1)
	assert.Equal(t, "shipped", list[0].Notes)
	assert.Equal(t, []string{"bob"}, list[0].Participants)
	assert.False(t, list[0].IsActive)
}

func TestModel_EndWithoutActiveIsIgnored(t *testing.T) {
	d := newDashboard(t)
	d.track(t, "acme/web#42", "Login")
	d.press("e")
	assert.False(t, d.model.ShowNotesInput)
	d.press("a")
	assert.False(t, d.model.ShowParticipantInput)
}

func TestModel_UntrackKeepsTiming(t *testing.T) {
	d := newDashboard(t)
	d.track(t, "acme/web#42", "Login")
	d.press("enter", "d")

	assert.Empty(t, d.model.Issues)
	assert.True(t, d.store.Active().Running)
}

func TestModel_SessionLog(t *testing.T) {
	d := newDashboard(t)
	d.track(t, "acme/web#42", "Login")
	d.press("enter", "e", "enter")
	d.sync.Flush(context.Background())

	d.press("l")
	require.True(t, d.model.ShowLogView)
	require.Len(t, d.model.AllSessions, 1)
	assert.Contains(t, d.model.View(), "acme/web#42 Login")

	d.press("esc")
	assert.False(t, d.model.ShowLogView)
}

func TestModel_NoticeShownAndDismissed(t *testing.T) {
	d := newDashboard(t)
	d.track(t, "acme/web#42", "Login")

	d.model.Update(MsgNotice{Notification: notify.Notification{Title: "Session not recorded", Message: "disk full", Type: notify.NotifyWarning}})
	assert.Contains(t, d.model.View(), "Session not recorded")

	d.press("x")
	assert.Nil(t, d.model.Notice)
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref     string
		wantErr bool
	}{
		{"acme/web#42", false},
		{" acme/web#1 ", false},
		{"acme/web", true},
		{"#42", true},
		{"acme/web#x", true},
		{"acme/web#0", true},
	}

	for _, tt := range tests {
		_, err := parseRef(tt.ref)
		if tt.wantErr {
			assert.Error(t, err, tt.ref)
		} else {
			assert.NoError(t, err, tt.ref)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:05", formatDuration(5*time.Second))
	assert.Equal(t, "01:05", formatDuration(65*time.Second))
	assert.Equal(t, "3:00:01", formatDuration(3*time.Hour+time.Second))
}
