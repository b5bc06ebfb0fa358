package issue

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds the tracked issues in sqlite and mirrors them in memory
// so lookups from the timer path never touch the database.
type Registry struct {
	db *sql.DB

	mu     sync.RWMutex
	issues map[string]Issue
}

// NewRegistry loads all tracked issues from db.
func NewRegistry(ctx context.Context, db *sql.DB) (*Registry, error) {
	r := &Registry{db: db, issues: make(map[string]Issue)}

	rows, err := db.QueryContext(ctx, "SELECT id, title, number, repository, url, tracked_at FROM tracked_issues")
	if err != nil {
		return nil, fmt.Errorf("loading tracked issues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var i Issue
		var trackedAt int64
		if err := rows.Scan(&i.ID, &i.Title, &i.Number, &i.Repository, &i.URL, &trackedAt); err != nil {
			return nil, err
		}
		i.TrackedAt = time.UnixMilli(trackedAt)
		r.issues[i.ID] = i
	}
	return r, rows.Err()
}

// Track adds or refreshes an issue. TrackedAt is kept from the first call.
func (r *Registry) Track(ctx context.Context, i Issue) (Issue, error) {
	if err := i.validate(); err != nil {
		return Issue{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.issues[i.ID]; ok {
		i.TrackedAt = existing.TrackedAt
	} else if i.TrackedAt.IsZero() {
		i.TrackedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tracked_issues (id, title, number, repository, url, tracked_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			number = excluded.number,
			repository = excluded.repository,
			url = excluded.url
	`, i.ID, i.Title, i.Number, i.Repository, i.URL, i.TrackedAt.UnixMilli())
	if err != nil {
		return Issue{}, fmt.Errorf("tracking issue %s: %w", i.ID, err)
	}

	r.issues[i.ID] = i
	return i, nil
}

// Untrack removes an issue. Timing state and recorded sessions are left alone.
func (r *Registry) Untrack(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.issues[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM tracked_issues WHERE id = ?", id); err != nil {
		return fmt.Errorf("untracking issue %s: %w", id, err)
	}
	delete(r.issues, id)
	return nil
}

// Lookup returns the tracked issue with the given id.
func (r *Registry) Lookup(id string) (Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.issues[id]
	if !ok {
		return Issue{}, fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	return i, nil
}

// List returns tracked issues, oldest first.
func (r *Registry) List() []Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Issue, 0, len(r.issues))
	for _, i := range r.issues {
		list = append(list, i)
	}
	sort.Slice(list, func(a, b int) bool {
		if !list[a].TrackedAt.Equal(list[b].TrackedAt) {
			return list[a].TrackedAt.Before(list[b].TrackedAt)
		}
		return list[a].ID < list[b].ID
	})
	return list
}
