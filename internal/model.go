package internal

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"

	"issue_timer/internal/control"
	"issue_timer/internal/issue"
	"issue_timer/internal/notify"
	"issue_timer/internal/session"
	"issue_timer/internal/timer"

	tea "github.com/charmbracelet/bubbletea"
)

type MsgTick struct{}

// MsgNotice carries a persistence failure to the screen.
type MsgNotice struct {
	Notification notify.Notification
}

// MsgGuard is sent when the quit guard flips.
type MsgGuard struct {
	Armed bool
}

// IssueStore is the registry surface the dashboard edits.
type IssueStore interface {
	Track(ctx context.Context, i issue.Issue) (issue.Issue, error)
	Untrack(ctx context.Context, id string) error
	List() []issue.Issue
}

// QuitGuard is the dashboard's guard host. While armed, quitting asks for
// confirmation.
type QuitGuard struct {
	armed atomic.Bool
	send  atomic.Value // func(tea.Msg)
}

func (g *QuitGuard) Arm()    { g.set(true) }
func (g *QuitGuard) Disarm() { g.set(false) }

func (g *QuitGuard) Armed() bool { return g.armed.Load() }

// Attach routes guard changes to a running program.
func (g *QuitGuard) Attach(p *tea.Program) {
	g.send.Store(func(msg tea.Msg) { go p.Send(msg) })
}

func (g *QuitGuard) set(armed bool) {
	g.armed.Store(armed)
	if send, ok := g.send.Load().(func(tea.Msg)); ok {
		send(MsgGuard{Armed: armed})
	}
}

type Deps struct {
	Controller *control.Controller
	Store      *timer.Store
	Issues     IssueStore
	Sessions   control.SessionLister
	Guard      *QuitGuard
}

type Model struct {
	Issues        []issue.Issue
	SelectedIndex int
	Entries       map[string]timer.Entry
	ActiveID      string
	Err           error
	Notice        *notify.Notification

	ShowAddForm  bool
	NewIssueRef  string
	NewIssueName string
	InputFocus   int

	// Notes input state (shown when ending a session)
	ShowNotesInput bool
	NotesInput     string

	ShowParticipantInput bool
	ParticipantInput     string

	ShowQuitConfirm bool

	// Session log viewer state
	ShowLogView   bool
	LogViewScroll int
	AllSessions   []session.WorkSession

	ctl      *control.Controller
	store    *timer.Store
	issues   IssueStore
	sessions control.SessionLister
	guard    *QuitGuard
}

func NewModel(deps Deps) *Model {
	if deps.Guard == nil {
		deps.Guard = &QuitGuard{}
	}
	m := &Model{
		ctl:      deps.Controller,
		store:    deps.Store,
		issues:   deps.Issues,
		sessions: deps.Sessions,
		guard:    deps.Guard,
	}
	m.refresh()
	return m
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MsgTick:
		m.refresh()
		return m, nil
	case MsgGuard:
		if !msg.Armed {
			m.ShowQuitConfirm = false
		}
		return m, nil
	case MsgNotice:
		n := msg.Notification
		m.Notice = &n
		return m, nil
	case tea.KeyMsg:
		cmd := m.handleKeyMsg(msg)
		m.refresh()
		return m, cmd
	case tea.WindowSizeMsg:
		return m, nil
	}
	return m, nil
}

func (m *Model) View() string {
	if m.ShowQuitConfirm {
		return m.quitConfirmView()
	}

	if m.ShowNotesInput {
		return m.notesInputView()
	}

	if m.ShowParticipantInput {
		return m.participantInputView()
	}

	if m.ShowLogView {
		return m.allSessionsView()
	}

	if m.ShowAddForm {
		return m.addFormView()
	}

	if len(m.Issues) == 0 {
		return m.emptyStateView()
	}

	return m.mainView()
}

// refresh copies the store projection and the tracked list into the model.
func (m *Model) refresh() {
	m.Issues = m.issues.List()
	snap := m.store.Snapshot()
	m.ActiveID = snap.ActiveIssueID
	m.Entries = make(map[string]timer.Entry, len(snap.Entries))
	for _, e := range snap.Entries {
		m.Entries[e.IssueID] = e
	}
	if m.SelectedIndex >= len(m.Issues) {
		m.SelectedIndex = len(m.Issues) - 1
	}
	if m.SelectedIndex < 0 {
		m.SelectedIndex = 0
	}
}

func (m *Model) SelectedIssue() *issue.Issue {
	if m.SelectedIndex >= 0 && m.SelectedIndex < len(m.Issues) {
		return &m.Issues[m.SelectedIndex]
	}
	return nil
}

// AddIssue tracks an issue given as "owner/repo#42" and a title.
func (m *Model) AddIssue(ref, title string) error {
	i, err := parseRef(ref)
	if err != nil {
		return err
	}
	i.Title = strings.TrimSpace(title)
	if _, err := m.issues.Track(context.Background(), i); err != nil {
		return err
	}
	m.refresh()
	for idx, tracked := range m.Issues {
		if tracked.ID == i.ID {
			m.SelectedIndex = idx
		}
	}
	return nil
}

func parseRef(ref string) (issue.Issue, error) {
	ref = strings.TrimSpace(ref)
	repo, num, ok := strings.Cut(ref, "#")
	if !ok || repo == "" {
		return issue.Issue{}, fmt.Errorf("%w: expected owner/repo#number, got %q", issue.ErrInvalid, ref)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return issue.Issue{}, fmt.Errorf("%w: bad issue number in %q", issue.ErrInvalid, ref)
	}
	return issue.Issue{
		ID:         ref,
		Number:     n,
		Repository: repo,
		URL:        fmt.Sprintf("https://github.com/%s/issues/%d", repo, n),
	}, nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	if m.ShowQuitConfirm {
		return m.handleQuitConfirm(msg)
	}

	if m.ShowNotesInput {
		return m.handleNotesInput(msg)
	}

	if m.ShowParticipantInput {
		return m.handleParticipantInput(msg)
	}

	if m.ShowLogView {
		return m.handleLogViewInput(msg)
	}

	if m.ShowAddForm {
		return m.handleFormInput(msg)
	}

	m.Err = nil

	switch msg.String() {
	case "ctrl+c", "q":
		if m.guard.Armed() {
			m.ShowQuitConfirm = true
			return nil
		}
		return tea.Quit
	case "up", "k":
		if m.SelectedIndex > 0 {
			m.SelectedIndex--
		}
	case "down", "j":
		if m.SelectedIndex < len(m.Issues)-1 {
			m.SelectedIndex++
		}
	case "enter", " ":
		i := m.SelectedIssue()
		if i == nil {
			return nil
		}
		if i.ID == m.ActiveID {
			m.ctl.Toggle()
		} else if err := m.ctl.Start(i.ID); err != nil {
			m.Err = err
		}
	case "p":
		m.ctl.Pause()
	case "e":
		if m.ActiveID == "" {
			return nil
		}
		m.NotesInput = ""
		if w, ok := m.ctl.CurrentSession(); ok {
			m.NotesInput = w.Notes
		}
		m.ShowNotesInput = true
	case "a":
		if m.ActiveID == "" {
			return nil
		}
		m.ParticipantInput = ""
		m.ShowParticipantInput = true
	case "n":
		m.ShowAddForm = true
		m.NewIssueRef = ""
		m.NewIssueName = ""
		m.InputFocus = 0
	case "d":
		if i := m.SelectedIssue(); i != nil {
			if err := m.issues.Untrack(context.Background(), i.ID); err != nil {
				m.Err = err
			}
		}
	case "l":
		m.openLogView()
	case "x":
		m.Notice = nil
	}
	return nil
}

func (m *Model) openLogView() {
	list, err := m.sessions.List(context.Background(), session.ListOptions{UserID: m.ctl.UserID(), Limit: 200})
	if err != nil {
		log.Printf("tui: loading sessions: %v", err)
		m.Err = err
		list = nil
	}
	m.AllSessions = list
	m.ShowLogView = true
	m.LogViewScroll = 0
}

func (m *Model) handleQuitConfirm(msg tea.KeyMsg) tea.Cmd {
	m.ShowQuitConfirm = false
	switch msg.String() {
	case "y", "Y":
		return tea.Quit
	}
	return nil
}

func (m *Model) handleLogViewInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q", "esc", "l":
		m.ShowLogView = false
		m.AllSessions = nil
	case "up", "k":
		if m.LogViewScroll > 0 {
			m.LogViewScroll--
		}
	case "down", "j":
		maxScroll := len(m.AllSessions) - 1
		if maxScroll < 0 {
			maxScroll = 0
		}
		if m.LogViewScroll < maxScroll {
			m.LogViewScroll++
		}
	}
	return nil
}

func (m *Model) handleNotesInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "esc":
		// End keeping whatever notes the session already has
		m.ctl.End(nil)
		m.ShowNotesInput = false
		m.NotesInput = ""
	case "enter":
		notes := m.NotesInput
		m.ctl.End(&notes)
		m.ShowNotesInput = false
		m.NotesInput = ""
	case "backspace":
		m.NotesInput = dropLastRune(m.NotesInput)
	default:
		m.NotesInput += typed(msg)
	}
	return nil
}

func (m *Model) handleParticipantInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.ShowParticipantInput = false
	case "enter":
		if id := strings.TrimSpace(m.ParticipantInput); id != "" {
			m.ctl.AddParticipant(id)
		}
		m.ShowParticipantInput = false
		m.ParticipantInput = ""
	case "backspace":
		m.ParticipantInput = dropLastRune(m.ParticipantInput)
	default:
		m.ParticipantInput += typed(msg)
	}
	return nil
}

func (m *Model) handleFormInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.ShowAddForm = false
	case "enter":
		if m.InputFocus == 0 {
			m.InputFocus = 1
			return nil
		}
		if err := m.AddIssue(m.NewIssueRef, m.NewIssueName); err != nil {
			m.Err = err
		}
		m.ShowAddForm = false
	case "backspace":
		if m.InputFocus == 0 {
			m.NewIssueRef = dropLastRune(m.NewIssueRef)
		} else {
			m.NewIssueName = dropLastRune(m.NewIssueName)
		}
	case "tab", "shift+tab":
		m.InputFocus = 1 - m.InputFocus
	default:
		if m.InputFocus == 0 {
			m.NewIssueRef += typed(msg)
		} else {
			m.NewIssueName += typed(msg)
		}
	}
	return nil
}

// typed returns the printable text of a key press, or "".
func typed(msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeyRunes:
		return string(msg.Runes)
	case tea.KeySpace:
		return " "
	}
	return ""
}

func dropLastRune(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return string(r[:len(r)-1])
}

// NewNotifier routes notifications into a running program.
func NewNotifier(p *tea.Program) notify.Notifier {
	return notify.FuncNotifier(func(n notify.Notification) error {
		go p.Send(MsgNotice{Notification: n})
		return nil
	})
}
