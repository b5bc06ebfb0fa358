package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Repository persists work sessions and the running-timer projection in sqlite.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database (see internal/db).
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Save inserts a session or updates its mutable fields. StartTime and the
// issue snapshot are written only on insert; EndTime only the first time.
func (r *Repository) Save(ctx context.Context, w *WorkSession) error {
	participants, err := json.Marshal(w.Participants)
	if err != nil {
		return err
	}

	var endTime sql.NullInt64
	if w.EndTime != nil {
		endTime = sql.NullInt64{Int64: *w.EndTime, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO work_sessions (id, user_id, issue_id, issue_title, issue_number, issue_repository, issue_url,
			start_time, end_time, duration, is_active, is_paused, notes, participants, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			end_time = COALESCE(work_sessions.end_time, excluded.end_time),
			duration = MAX(work_sessions.duration, excluded.duration),
			is_active = excluded.is_active,
			is_paused = excluded.is_paused,
			notes = excluded.notes,
			participants = excluded.participants,
			updated_at = excluded.updated_at
	`,
		w.ID, w.UserID, w.IssueID, w.IssueTitle, w.IssueNumber, w.IssueRepository, w.IssueURL,
		w.StartTime, endTime, w.Duration, w.IsActive, w.IsPaused, w.Notes, string(participants), w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", w.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, user_id, issue_id, issue_title, issue_number, issue_repository, issue_url,
	start_time, end_time, duration, is_active, is_paused, notes, participants, updated_at FROM work_sessions`

// Get returns the session with the given id.
func (r *Repository) Get(ctx context.Context, id string) (*WorkSession, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	w, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return w, err
}

// ListOptions filters List. Each combination maps to one of the indexes.
type ListOptions struct {
	UserID     string
	IssueID    string
	ActiveOnly bool
	Limit      int
}

// List returns sessions matching opts, newest first.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]WorkSession, error) {
	query := selectColumns + " WHERE 1=1"
	var args []interface{}

	if opts.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.ActiveOnly {
		query += " AND is_active = 1"
	}
	if opts.IssueID != "" {
		query += " AND issue_id = ?"
		args = append(args, opts.IssueID)
	}

	query += " ORDER BY start_time DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []WorkSession
	for rows.Next() {
		w, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *w)
	}
	return sessions, rows.Err()
}

// SetRunning records the denormalized "is any timer running" projection.
func (r *Repository) SetRunning(ctx context.Context, userID, issueID string, running bool, atMs int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timer_projection (user_id, issue_id, running, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			issue_id = excluded.issue_id,
			running = excluded.running,
			updated_at = excluded.updated_at
	`, userID, issueID, running, atMs)
	return err
}

// Running reads the projection for userID.
func (r *Repository) Running(ctx context.Context, userID string) (issueID string, running bool, err error) {
	err = r.db.QueryRowContext(ctx, "SELECT issue_id, running FROM timer_projection WHERE user_id = ?", userID).
		Scan(&issueID, &running)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return issueID, running, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*WorkSession, error) {
	var w WorkSession
	var endTime sql.NullInt64
	var participants string

	err := row.Scan(&w.ID, &w.UserID, &w.IssueID, &w.IssueTitle, &w.IssueNumber, &w.IssueRepository, &w.IssueURL,
		&w.StartTime, &endTime, &w.Duration, &w.IsActive, &w.IsPaused, &w.Notes, &participants, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		end := endTime.Int64
		w.EndTime = &end
	}
	w.Participants = []string{}
	if participants != "" && participants != "null" {
		if err := json.Unmarshal([]byte(participants), &w.Participants); err != nil {
			return nil, fmt.Errorf("session %s participants: %w", w.ID, err)
		}
	}
	return &w, nil
}
