package internal

import (
	"fmt"
	"strings"
	"time"

	"issue_timer/internal/notify"
	"issue_timer/internal/session"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true).
			Align(lipgloss.Center)

	issueItemStyle = lipgloss.NewStyle().
			Padding(0, 1)

	issueItemSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("170")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	timerDisplayStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("69")).
				Bold(true)

	timerRunningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("82")).
				Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 0)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170"))

	inputInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	logHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	logTagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170"))

	logTimeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	inactiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

func seconds(s int64) time.Duration { return time.Duration(s) * time.Second }

func (m *Model) emptyStateView() string {
	return lipgloss.Place(
		80, 24,
		lipgloss.Center, lipgloss.Center,
		titleStyle.Render("Issue Timer")+"\n\n"+
			inactiveStyle.Render("No tracked issues yet. Press 'n' to add one."),
	)
}

func (m *Model) mainView() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Width(80).Render("Issue Timer"))
	sb.WriteString("\n\n")

	boxes := lipgloss.JoinHorizontal(lipgloss.Top,
		m.issueListView(),
		"  ",
		m.issueDetailView(),
	)
	sb.WriteString(boxes)
	sb.WriteString("\n")
	if line := m.statusLine(); line != "" {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("Start/Pause: Enter | End: e | Participant: a | New: n | Untrack: d | Sessions: l | Quit: q"))

	return sb.String()
}

func (m *Model) statusLine() string {
	if m.Err != nil {
		return errorStyle.Render(m.Err.Error())
	}
	if m.Notice == nil {
		return ""
	}
	style := warnStyle
	if m.Notice.Type == notify.NotifyError {
		style = errorStyle
	}
	return style.Render(fmt.Sprintf("%s: %s", m.Notice.Title, m.Notice.Message)) + helpStyle.Render("  (x: dismiss)")
}

func (m *Model) issueListView() string {
	var sb strings.Builder

	sb.WriteString("Tracked issues\n\n")

	for i, is := range m.Issues {
		marker := ""
		e, ok := m.Entries[is.ID]
		if ok && e.Running {
			marker = " ●"
		} else if ok {
			marker = " ‖"
		}

		label := is.Label()
		if len([]rune(label)) > 20 {
			label = string([]rune(label)[:19]) + "…"
		}
		line := fmt.Sprintf("%s %s%s", label, formatDuration(seconds(e.Elapsed)), marker)

		if i == m.SelectedIndex {
			sb.WriteString(issueItemSelectedStyle.Render(line))
		} else {
			sb.WriteString(issueItemStyle.Render(inactiveStyle.Render(line)))
		}
		sb.WriteString("\n")
	}

	return boxStyle.Width(32).Height(15).Render(sb.String())
}

func (m *Model) issueDetailView() string {
	is := m.SelectedIssue()
	if is == nil {
		return boxStyle.Width(45).Height(15).Render("Select an issue")
	}

	e, tracked := m.Entries[is.ID]
	var timerStr string
	if e.Running {
		timerStr = timerRunningStyle.Render(formatDuration(seconds(e.Elapsed)))
	} else {
		timerStr = timerDisplayStyle.Render(formatDuration(seconds(e.Elapsed)))
	}

	status := "Not started"
	statusStyle := inactiveStyle
	switch {
	case e.Running:
		status = "Running"
		statusStyle = runningStyle
	case tracked:
		status = "Paused"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s\n", is.Label()))
	if is.URL != "" {
		sb.WriteString(logTimeStyle.Render(is.URL))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(timerStr)
	sb.WriteString(fmt.Sprintf("\n\n%s\n", statusStyle.Render(status)))

	if is.ID == m.ActiveID {
		if w, ok := m.ctl.CurrentSession(); ok {
			sb.WriteString("\n")
			sb.WriteString(logHeaderStyle.Render("Current session"))
			sb.WriteString("\n")
			sb.WriteString(fmt.Sprintf("  started %s\n", humanize.Time(time.UnixMilli(w.StartTime))))
			if len(w.Participants) > 0 {
				sb.WriteString(fmt.Sprintf("  with %s\n", strings.Join(w.Participants, ", ")))
			}
			if w.Notes != "" {
				sb.WriteString("  " + logTagStyle.Render(w.Notes) + "\n")
			}
		}
	}

	return boxStyle.Width(45).Height(15).Render(sb.String())
}

func (m *Model) addFormView() string {
	refMarker, nameMarker := "  ", "  "
	refLabelStyle, nameLabelStyle := inputInactiveStyle, inputInactiveStyle
	refValue, nameValue := m.NewIssueRef, m.NewIssueName
	focusName := "Issue"
	if m.InputFocus == 0 {
		refMarker = "→ "
		refLabelStyle = inputStyle
		refValue = inputStyle.Render(refValue + "█")
	} else {
		nameMarker = "→ "
		nameLabelStyle = inputStyle
		nameValue = inputStyle.Render(nameValue + "█")
		focusName = "Title"
	}

	helpText := fmt.Sprintf("Tab: Switch (Focused: %s) | Enter: Save | Esc: Cancel", focusName)

	form := fmt.Sprintf("%s%s\n\n%s%s\n\n%s",
		refLabelStyle.Render(refMarker+"Issue (owner/repo#42): "), refValue,
		nameLabelStyle.Render(nameMarker+"Title: "), nameValue,
		helpStyle.Render(helpText),
	)

	return lipgloss.Place(
		80, 24,
		lipgloss.Center, lipgloss.Center,
		titleStyle.Width(50).Render("Track Issue")+"\n\n"+boxStyle.Width(50).Render(form),
	)
}

func (m *Model) notesInputView() string {
	p := m.ctl.Projection()

	form := fmt.Sprintf(
		"%s\n\n%s%s\n\n%s",
		fmt.Sprintf("End %s after %s", p.Label, timerDisplayStyle.Render(formatDuration(seconds(p.Elapsed)))),
		inputStyle.Render("→ Notes: "), inputStyle.Render(m.NotesInput+"█"),
		helpStyle.Render("Enter: Save & end | Esc: End without editing notes"),
	)

	return lipgloss.Place(
		80, 24,
		lipgloss.Center, lipgloss.Center,
		titleStyle.Width(50).Render("End Session")+"\n\n"+boxStyle.Width(50).Render(form),
	)
}

func (m *Model) participantInputView() string {
	form := fmt.Sprintf(
		"%s%s\n\n%s",
		inputStyle.Render("→ User: "), inputStyle.Render(m.ParticipantInput+"█"),
		helpStyle.Render("Enter: Add | Esc: Cancel"),
	)

	return lipgloss.Place(
		80, 24,
		lipgloss.Center, lipgloss.Center,
		titleStyle.Width(50).Render("Add Participant")+"\n\n"+boxStyle.Width(50).Render(form),
	)
}

func (m *Model) quitConfirmView() string {
	p := m.ctl.Projection()
	form := fmt.Sprintf(
		"%s\n\n%s",
		warnStyle.Render(fmt.Sprintf("%s is still running (%s).", p.Label, formatDuration(seconds(p.Elapsed)))),
		helpStyle.Render("y: Quit anyway | any other key: Stay"),
	)

	return lipgloss.Place(
		80, 24,
		lipgloss.Center, lipgloss.Center,
		boxStyle.Width(50).Render(form),
	)
}

func (m *Model) allSessionsView() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Width(80).Render("Work Sessions"))
	sb.WriteString("\n\n")

	if len(m.AllSessions) == 0 {
		sb.WriteString(inactiveStyle.Render("No sessions recorded yet."))
	}

	const pageSize = 15
	end := m.LogViewScroll + pageSize
	if end > len(m.AllSessions) {
		end = len(m.AllSessions)
	}
	for _, w := range m.AllSessions[m.LogViewScroll:end] {
		sb.WriteString(m.formatSessionEntry(w))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("Scroll: Up/Down | Back: Esc"))
	return sb.String()
}

func (m *Model) formatSessionEntry(w session.WorkSession) string {
	timeStr := logTimeStyle.Render(humanize.Time(time.UnixMilli(w.StartTime)))
	dur := formatDuration(time.Duration(w.Duration) * time.Millisecond)

	state := ""
	switch {
	case w.IsActive && w.IsPaused:
		state = " " + inactiveStyle.Render("paused")
	case w.IsActive:
		state = " " + runningStyle.Render("active")
	}

	notes := ""
	if w.Notes != "" {
		notes = " " + logTagStyle.Render("["+w.Notes+"]")
	}

	name := w.IssueTitle
	if w.IssueNumber != 0 {
		name = fmt.Sprintf("%s#%d %s", w.IssueRepository, w.IssueNumber, w.IssueTitle)
	}
	return fmt.Sprintf("  %-14s %8s  %s%s%s", timeStr, dur, name, state, notes)
}
