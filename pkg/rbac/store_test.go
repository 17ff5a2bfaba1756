package rbac

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStore_MemberRole(t *testing.T) {
	store, mock := newMockStore(t)

	t.Run("member", func(t *testing.T) {
		mock.ExpectQuery("SELECT role FROM members").
			WithArgs("org-1", "user-1").
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))

		role, found, err := store.MemberRole(context.Background(), "org-1", "user-1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "admin", role)
	})

	t.Run("not a member", func(t *testing.T) {
		mock.ExpectQuery("SELECT role FROM members").
			WithArgs("org-1", "user-2").
			WillReturnError(sql.ErrNoRows)

		_, found, err := store.MemberRole(context.Background(), "org-1", "user-2")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT role FROM members").WillReturnError(errors.New("timeout"))

		_, _, err := store.MemberRole(context.Background(), "org-1", "user-3")
		assert.ErrorContains(t, err, "failed to get member role")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GlobalRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT role FROM users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("viewer"))
	mock.ExpectQuery("SELECT role FROM users").
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(nil))

	role, err := store.GlobalRole(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "viewer", role)

	role, err = store.GlobalRole(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Empty(t, role)

	assert.NoError(t, mock.ExpectationsWereMet())
}
