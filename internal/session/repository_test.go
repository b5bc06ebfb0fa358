package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issue_timer/internal/db"
	"issue_timer/internal/issue"
)

func newRepository(t *testing.T) *Repository {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewRepository(conn)
}

var fixIssue = issue.Issue{ID: "I_42", Title: "Fix login", Number: 42, Repository: "acme/web", URL: "https://github.com/acme/web/issues/42"}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	w := New("s1", "u1", fixIssue, 1000)
	w.AddParticipant("u2")
	require.NoError(t, repo.Save(ctx, &w))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, w, *got)
	assert.Nil(t, got.EndTime)
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newRepository(t)
	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRepository_SaveKeepsImmutableFields(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	w := New("s1", "u1", fixIssue, 1000)
	require.NoError(t, repo.Save(ctx, &w))

	w.StartTime = 9999
	w.IssueTitle = "Edited upstream"
	w.FlushElapsed(5)
	w.End(7000)
	require.NoError(t, repo.Save(ctx, &w))

	later := int64(8000)
	w.EndTime = &later
	w.Duration = 1000
	require.NoError(t, repo.Save(ctx, &w))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.StartTime)
	assert.Equal(t, "Fix login", got.IssueTitle)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, int64(7000), *got.EndTime)
	assert.Equal(t, int64(5000), got.Duration)
	assert.False(t, got.IsActive)
}

func TestRepository_ListAccessPatterns(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	other := issue.Issue{ID: "I_7", Title: "Docs", Number: 7, Repository: "acme/web"}
	sessions := []WorkSession{
		New("a", "u1", fixIssue, 1000),
		New("b", "u1", other, 2000),
		New("c", "u2", fixIssue, 3000),
	}
	sessions[0].End(1500)
	for i := range sessions {
		require.NoError(t, repo.Save(ctx, &sessions[i]))
	}

	byUser, err := repo.List(ctx, ListOptions{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, "b", byUser[0].ID)

	active, err := repo.List(ctx, ListOptions{UserID: "u1", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].ID)

	history, err := repo.List(ctx, ListOptions{IssueID: "I_42"})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].ID)
	assert.Equal(t, "a", history[1].ID)

	limited, err := repo.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRepository_RunningProjection(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	id, running, err := repo.Running(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "", id)
	assert.False(t, running)

	require.NoError(t, repo.SetRunning(ctx, "u1", "I_42", true, 1000))
	id, running, err = repo.Running(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "I_42", id)
	assert.True(t, running)

	require.NoError(t, repo.SetRunning(ctx, "u1", "", false, 2000))
	_, running, err = repo.Running(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestWorkSession_Helpers(t *testing.T) {
	w := New("s", "u", fixIssue, 0)

	assert.True(t, w.AddParticipant("a"))
	assert.False(t, w.AddParticipant("a"))
	assert.False(t, w.AddParticipant(""))
	assert.True(t, w.AddParticipant("b"))
	assert.Equal(t, []string{"a", "b"}, w.Participants)

	assert.True(t, w.FlushElapsed(3))
	assert.False(t, w.FlushElapsed(2))
	assert.Equal(t, int64(3000), w.Duration)

	w.End(10)
	w.End(20)
	require.NotNil(t, w.EndTime)
	assert.Equal(t, int64(10), *w.EndTime)
	assert.False(t, w.IsActive)
	assert.False(t, w.IsPaused)
}
