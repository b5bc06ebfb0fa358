package session

import (
	"errors"
	"fmt"

	"issue_timer/internal/issue"
)

// ErrNotFound is returned when no session matches.
var ErrNotFound = errors.New("session not found")

// WorkSession is the durable record of one tracking episode of an issue,
// from its first start to an explicit end. Times are Unix milliseconds.
type WorkSession struct {
	ID              string   `json:"id" yaml:"id"`
	UserID          string   `json:"userId" yaml:"userId"`
	IssueID         string   `json:"issueId" yaml:"issueId"`
	IssueTitle      string   `json:"issueTitle" yaml:"issueTitle"`
	IssueNumber     int      `json:"issueNumber" yaml:"issueNumber"`
	IssueRepository string   `json:"issueRepository" yaml:"issueRepository"`
	IssueURL        string   `json:"issueUrl" yaml:"issueUrl"`
	StartTime       int64    `json:"startTime" yaml:"startTime"`
	EndTime         *int64   `json:"endTime,omitempty" yaml:"endTime,omitempty"`
	Duration        int64    `json:"duration" yaml:"duration"`
	IsActive        bool     `json:"isActive" yaml:"isActive"`
	IsPaused        bool     `json:"isPaused" yaml:"isPaused"`
	Notes           string   `json:"notes" yaml:"notes"`
	Participants    []string `json:"participants" yaml:"participants"`
	UpdatedAt       int64    `json:"updatedAt" yaml:"updatedAt"`
}

// New starts an episode for i at startMs.
func New(id, userID string, i issue.Issue, startMs int64) WorkSession {
	return WorkSession{
		ID:              id,
		UserID:          userID,
		IssueID:         i.ID,
		IssueTitle:      i.Title,
		IssueNumber:     i.Number,
		IssueRepository: i.Repository,
		IssueURL:        i.URL,
		StartTime:       startMs,
		IsActive:        true,
		Participants:    []string{},
		UpdatedAt:       startMs,
	}
}

// AddParticipant appends id unless it is already present.
func (w *WorkSession) AddParticipant(id string) bool {
	if id == "" {
		return false
	}
	for _, p := range w.Participants {
		if p == id {
			return false
		}
	}
	w.Participants = append(w.Participants, id)
	return true
}

// FlushElapsed records elapsed seconds as duration. Duration never decreases.
func (w *WorkSession) FlushElapsed(elapsedSeconds int64) bool {
	ms := elapsedSeconds * 1000
	if ms <= w.Duration {
		return false
	}
	w.Duration = ms
	return true
}

// End terminates the episode. EndTime is set only once.
func (w *WorkSession) End(atMs int64) {
	w.IsActive = false
	w.IsPaused = false
	if w.EndTime == nil {
		end := atMs
		w.EndTime = &end
	}
}

// clone copies the record so the writer never shares the participants slice.
func (w WorkSession) clone() WorkSession {
	w.Participants = append([]string{}, w.Participants...)
	if w.EndTime != nil {
		end := *w.EndTime
		w.EndTime = &end
	}
	return w
}

// WriteError is a failed durable write of a session.
type WriteError struct {
	SessionID string
	IssueID   string
	Attempts  int
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing session %s for issue %s (attempt %d): %v", e.SessionID, e.IssueID, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
