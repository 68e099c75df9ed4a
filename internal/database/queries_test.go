package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s := &Session{
		ID:           "sess-1",
		Username:     "alice",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, db.CreateSession(ctx, s))

	got, err := db.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)

	require.NoError(t, db.UpdateAccessToken(ctx, "sess-1", "access-2"))
	got, err = db.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken, "refresh token must survive an access update")

	require.NoError(t, db.DeleteSession(ctx, "sess-1"))
	_, err = db.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateAccessTokenUnknownSession(t *testing.T) {
	db := openTestDB(t)
	err := db.UpdateAccessToken(context.Background(), "missing", "x")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExpiredSessionsAreHiddenAndPurged(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateSession(ctx, &Session{ID: "old", ExpiresAt: time.Now().Add(-time.Minute)}))
	require.NoError(t, db.CreateSession(ctx, &Session{ID: "live", ExpiresAt: time.Now().Add(time.Hour)}))

	_, err := db.GetSession(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	n, err := db.PurgeExpiredSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	count, err := db.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
