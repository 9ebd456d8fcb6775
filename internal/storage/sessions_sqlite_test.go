package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focustimer/internal/core/model"
)

func openTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	store, err := OpenSessionStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func finishedSession(title string, start time.Time, duration time.Duration, tags ...string) model.Session {
	return model.NewSession(title, start, 25*time.Minute, tags, "TASK-1").Finalize("notes", duration)
}

func TestAppendAndListSessions(t *testing.T) {
	store := openTestSessionStore(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

	first := finishedSession("Morning", base, 20*time.Minute, "write", "deep")
	second := finishedSession("Afternoon", base.Add(5*time.Hour), 45*time.Minute)
	require.NoError(t, store.AppendSession(ctx, first))
	require.NoError(t, store.AppendSession(ctx, second))

	sessions, err := store.RecentSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)

	got := sessions[1]
	assert.Equal(t, "Morning", got.Title)
	assert.True(t, got.Start.Equal(first.Start))
	assert.True(t, got.End.Equal(first.End))
	assert.Equal(t, 20*time.Minute, got.Duration)
	assert.Equal(t, 25*time.Minute, got.Planned)
	assert.Equal(t, []string{"deep", "write"}, got.Tags)
	assert.Equal(t, "TASK-1", got.LinkedTask)
	assert.Equal(t, "notes", got.Notes)
	assert.Nil(t, sessions[0].Tags)
}

func TestAppendSessionIsIdempotent(t *testing.T) {
	store := openTestSessionStore(t)
	ctx := context.Background()

	session := finishedSession("Once", time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC), time.Minute)
	require.NoError(t, store.AppendSession(ctx, session))
	require.NoError(t, store.AppendSession(ctx, session))

	sessions, err := store.RecentSessions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestAppendRejectsUnfinishedSession(t *testing.T) {
	store := openTestSessionStore(t)

	session := model.NewSession("Open", time.Now(), 0, nil, "")
	err := store.AppendSession(context.Background(), session)
	assert.ErrorContains(t, err, "not finished")
}

func TestRecentSessionsLimit(t *testing.T) {
	store := openTestSessionStore(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

	for i := range 5 {
		require.NoError(t, store.AppendSession(ctx, finishedSession("s", base.Add(time.Duration(i)*time.Hour), time.Minute)))
	}

	sessions, err := store.RecentSessions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.True(t, sessions[0].Start.Equal(base.Add(4*time.Hour)))
}

func TestReopenKeepsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := OpenSessionStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AppendSession(ctx, finishedSession("Kept", time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC), time.Minute)))
	require.NoError(t, store.Close())

	reopened, err := OpenSessionStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	sessions, err := reopened.RecentSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Kept", sessions[0].Title)
}
