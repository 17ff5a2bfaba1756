package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
)

const (
	testUserID = "8d6f3c6e-3f5b-4a53-9a57-2f0f3bb0e001"
	testOrgID  = "8d6f3c6e-3f5b-4a53-9a57-2f0f3bb0e101"
	otherOrgID = "8d6f3c6e-3f5b-4a53-9a57-2f0f3bb0e102"
)

var sessionRowColumns = []string{
	"id", "user_id", "token_hash", "active_organization_id",
	"expires_at", "created_at", "updated_at", "revoked_at",
}

// fakeMembers maps "org/user" to a role
type fakeMembers map[string]string

func (f fakeMembers) MemberRole(_ context.Context, organizationID, userID string) (string, bool, error) {
	role, ok := f[organizationID+"/"+userID]
	return role, ok, nil
}

func newMockSessions(t *testing.T, cache *SessionCache) (*SessionManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	members := fakeMembers{testOrgID + "/" + testUserID: "admin"}
	return NewSessionManager(db, members, cache, nil), mock
}

func sessionRow(hash string, activeOrg interface{}, expires time.Time, revoked interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(sessionRowColumns).
		AddRow("sess-1", testUserID, hash, activeOrg, expires, now, now, revoked)
}

func TestSessionManager_Create(t *testing.T) {
	m, mock := newMockSessions(t, nil)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), testUserID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	token, sess, err := m.Create(context.Background(), testUserID, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, m.tokens.HashToken(token), sess.TokenHash)
	assert.Equal(t, testUserID, sess.UserID)
	assert.WithinDuration(t, now.Add(time.Hour), sess.ExpiresAt, 5*time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionManager_Lookup(t *testing.T) {
	ctx := context.Background()
	tg := NewTokenGenerator()
	token, hash, err := tg.GenerateToken()
	require.NoError(t, err)

	t.Run("malformed token", func(t *testing.T) {
		m, _ := newMockSessions(t, nil)
		_, err := m.Lookup(ctx, "not-a-token")
		assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthenticated))
	})

	t.Run("unknown token", func(t *testing.T) {
		m, mock := newMockSessions(t, nil)
		mock.ExpectQuery("SELECT (.+) FROM sessions WHERE token_hash").
			WithArgs(hash).
			WillReturnError(sql.ErrNoRows)

		_, err := m.Lookup(ctx, token)
		assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthenticated))
	})

	t.Run("expired", func(t *testing.T) {
		m, mock := newMockSessions(t, nil)
		mock.ExpectQuery("SELECT (.+) FROM sessions").
			WillReturnRows(sessionRow(hash, nil, time.Now().Add(-time.Minute), nil))

		_, err := m.Lookup(ctx, token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Session has expired")
	})

	t.Run("revoked", func(t *testing.T) {
		m, mock := newMockSessions(t, nil)
		mock.ExpectQuery("SELECT (.+) FROM sessions").
			WillReturnRows(sessionRow(hash, nil, time.Now().Add(time.Hour), time.Now()))

		_, err := m.Lookup(ctx, token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Session has been revoked")
	})

	t.Run("valid session is cached", func(t *testing.T) {
		m, mock := newMockSessions(t, NewSessionCache(10, time.Minute, nil, nil))
		mock.ExpectQuery("SELECT (.+) FROM sessions").
			WillReturnRows(sessionRow(hash, testOrgID, time.Now().Add(time.Hour), nil))

		sess, err := m.Lookup(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, testOrgID, sess.ActiveOrganizationID)

		// second lookup is served without a query
		again, err := m.Lookup(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, again.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionManager_SetActiveOrganization(t *testing.T) {
	ctx := context.Background()
	tg := NewTokenGenerator()
	token, hash, err := tg.GenerateToken()
	require.NoError(t, err)

	t.Run("member switches and cache is invalidated", func(t *testing.T) {
		cache := NewSessionCache(10, time.Minute, nil, nil)
		m, mock := newMockSessions(t, cache)

		mock.ExpectQuery("SELECT (.+) FROM sessions").
			WillReturnRows(sessionRow(hash, nil, time.Now().Add(time.Hour), nil))
		sess, err := m.Lookup(ctx, token)
		require.NoError(t, err)
		require.Equal(t, 1, cache.Len())

		mock.ExpectQuery("UPDATE sessions").
			WithArgs(testOrgID, "sess-1").
			WillReturnRows(sessionRow(hash, testOrgID, sess.ExpiresAt, nil))

		updated, err := m.SetActiveOrganization(ctx, sess, testOrgID)
		require.NoError(t, err)
		assert.Equal(t, testOrgID, updated.ActiveOrganizationID)
		assert.Equal(t, 0, cache.Len())

		// the next lookup reads the new organization from the database
		mock.ExpectQuery("SELECT (.+) FROM sessions").
			WillReturnRows(sessionRow(hash, testOrgID, sess.ExpiresAt, nil))
		reloaded, err := m.Lookup(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, testOrgID, reloaded.Context().ActiveOrganizationID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-member gets not found", func(t *testing.T) {
		m, mock := newMockSessions(t, nil)
		sess := &Session{ID: "sess-1", UserID: testUserID, TokenHash: hash}

		_, err := m.SetActiveOrganization(ctx, sess, otherOrgID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed id gets not found", func(t *testing.T) {
		m, _ := newMockSessions(t, nil)
		sess := &Session{ID: "sess-1", UserID: testUserID, TokenHash: hash}

		_, err := m.SetActiveOrganization(ctx, sess, "nope")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})

	t.Run("clearing needs no membership", func(t *testing.T) {
		m, mock := newMockSessions(t, nil)
		sess := &Session{ID: "sess-1", UserID: testUserID, TokenHash: hash, ActiveOrganizationID: testOrgID}

		mock.ExpectQuery("UPDATE sessions").
			WithArgs(nil, "sess-1").
			WillReturnRows(sessionRow(hash, nil, time.Now().Add(time.Hour), nil))

		updated, err := m.SetActiveOrganization(ctx, sess, "")
		require.NoError(t, err)
		assert.Empty(t, updated.ActiveOrganizationID)
	})

	t.Run("revoked concurrently", func(t *testing.T) {
		m, mock := newMockSessions(t, nil)
		sess := &Session{ID: "sess-1", UserID: testUserID, TokenHash: hash}

		mock.ExpectQuery("UPDATE sessions").WillReturnError(sql.ErrNoRows)

		_, err := m.SetActiveOrganization(ctx, sess, testOrgID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthenticated))
	})
}

func TestSessionManager_Revoke(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	cache := NewSessionCache(10, time.Minute, client, nil)
	m, mock := newMockSessions(t, cache)

	sess := cachedSession("h1")
	cache.Set(ctx, sess)
	require.True(t, mr.Exists(sessionKeyPrefix+"h1"))

	mock.ExpectExec("UPDATE sessions SET revoked_at").
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.Revoke(ctx, sess))
	assert.Equal(t, 0, cache.Len())
	assert.False(t, mr.Exists(sessionKeyPrefix+"h1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionManager_DeleteExpired(t *testing.T) {
	m, mock := newMockSessions(t, nil)
	cutoff := time.Now()

	mock.ExpectExec("DELETE FROM sessions").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := m.DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSession_Context(t *testing.T) {
	var none *Session
	assert.Nil(t, none.Context())

	sess := &Session{UserID: testUserID, ActiveOrganizationID: testOrgID}
	ctx := sess.Context()
	assert.Equal(t, testUserID, ctx.UserID)
	assert.Equal(t, testOrgID, ctx.ActiveOrganizationID)
}
