package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/schema"
)

var userRowColumns = []string{"id", "email", "name", "role", "email_verified", "created_at", "updated_at"}

func newMockUsers(t *testing.T) (*UserStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry, err := rbac.NewRegistry([]schema.RoleDefinition{{Name: "hr"}})
	require.NoError(t, err)
	return NewUserStore(db, registry), mock
}

func TestUserStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes email", func(t *testing.T) {
		store, mock := newMockUsers(t)
		now := time.Now()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), "ada@example.com", "Ada", "hr").
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(testUserID, "ada@example.com", "Ada", "hr", false, now, now))

		u, err := store.Create(ctx, NewUser{Email: " Ada@Example.com ", Name: "Ada", Role: "hr"})
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", u.Email)
		assert.Equal(t, "hr", u.Role)
		assert.False(t, u.EmailVerified)
	})

	t.Run("invalid email", func(t *testing.T) {
		store, _ := newMockUsers(t)
		_, err := store.Create(ctx, NewUser{Email: "nope"})
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("unknown role", func(t *testing.T) {
		store, _ := newMockUsers(t)
		_, err := store.Create(ctx, NewUser{Email: "a@example.com", Role: "ghost"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unknown role 'ghost'")
	})

	t.Run("duplicate email", func(t *testing.T) {
		store, mock := newMockUsers(t)
		mock.ExpectQuery("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

		_, err := store.Create(ctx, NewUser{Email: "a@example.com"})
		assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	})
}

func TestUserStore_Find(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockUsers(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(testUserID, "ada@example.com", nil, nil, true, now, now))

	u, err := store.Find(ctx, testUserID)
	require.NoError(t, err)
	assert.Empty(t, u.Role)
	assert.True(t, u.EmailVerified)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)
	_, err = store.FindByEmail(ctx, "Ghost@example.com")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	_, err = store.Find(ctx, "not-a-uuid")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_SetRole(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockUsers(t)

	mock.ExpectExec("UPDATE users SET role").
		WithArgs("admin", testUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.SetRole(ctx, testUserID, "admin"))

	mock.ExpectExec("UPDATE users SET role").
		WithArgs(nil, testUserID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.SetRole(ctx, testUserID, "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	err = store.SetRole(ctx, testUserID, "ghost")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}
