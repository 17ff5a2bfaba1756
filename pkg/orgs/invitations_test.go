package orgs

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
)

var recipient = Actor{UserID: memberID, Email: "ada@example.com"}

func invitationRow(status InvitationStatus, expires time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(inviteRowColumns).
		AddRow(inviteID, orgID, "ada@example.com", "hr", string(status), adminID, expires, fixedNow.Add(-time.Hour), nil)
}

func expectLoadForUpdate(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT (.+) FROM invitations WHERE id = (.+) FOR UPDATE").
		WithArgs(inviteID).
		WillReturnRows(rows)
}

func TestService_Invite(t *testing.T) {
	ctx := context.Background()

	t.Run("admin invites", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		expectRole(mock, adminID, rbac.RoleAdmin)
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(orgID, "ada@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec("UPDATE invitations SET status").
			WithArgs(InvitationExpired, fixedNow, orgID, "ada@example.com", InvitationPending).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO invitations").
			WithArgs(sqlmock.AnyArg(), orgID, "ada@example.com", "hr", InvitationPending, adminID, fixedNow.Add(DefaultInvitationTTL)).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(fixedNow))
		mock.ExpectCommit()

		inv, err := svc.Invite(ctx, adminID, orgID, InviteRequest{Email: "Ada@Example.com", Role: "hr"})
		require.NoError(t, err)
		assert.Equal(t, InvitationPending, inv.Status)
		assert.Equal(t, fixedNow.Add(48*time.Hour), inv.ExpiresAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate pending invitation", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		expectRole(mock, adminID, rbac.RoleAdmin)
		mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec("UPDATE invitations SET status").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO invitations").WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, err := svc.Invite(ctx, adminID, orgID, InviteRequest{Email: "ada@example.com", Role: "hr"})
		assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already a member", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		expectRole(mock, adminID, rbac.RoleAdmin)
		mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err := svc.Invite(ctx, adminID, orgID, InviteRequest{Email: "ada@example.com", Role: "hr"})
		assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	})

	t.Run("member cannot invite", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		expectRole(mock, memberID, "member")
		mock.ExpectRollback()

		_, err := svc.Invite(ctx, memberID, orgID, InviteRequest{Email: "ada@example.com", Role: "hr"})
		assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
	})

	t.Run("unknown role", func(t *testing.T) {
		svc, _ := newMockService(t)
		_, err := svc.Invite(ctx, adminID, orgID, InviteRequest{Email: "ada@example.com", Role: "ghost"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unknown role 'ghost'")
	})
}

func TestService_Accept(t *testing.T) {
	ctx := context.Background()

	t.Run("recipient joins with invited role", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		expectLoadForUpdate(mock, invitationRow(InvitationPending, fixedNow.Add(time.Hour)))
		mock.ExpectExec("INSERT INTO members").
			WithArgs(sqlmock.AnyArg(), orgID, memberID, "hr").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT (.+) FROM members m").
			WithArgs(orgID, memberID).
			WillReturnRows(sqlmock.NewRows(memberRowColumns).
				AddRow("m9", orgID, memberID, "hr", "ada@example.com", "Ada", fixedNow))
		mock.ExpectExec("UPDATE invitations SET status").
			WithArgs(InvitationAccepted, fixedNow, inviteID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		member, err := svc.Accept(ctx, recipient, inviteID)
		require.NoError(t, err)
		assert.Equal(t, "hr", member.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired is gone and persisted", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		expectLoadForUpdate(mock, invitationRow(InvitationPending, fixedNow.Add(-time.Minute)))
		mock.ExpectExec("UPDATE invitations SET status").
			WithArgs(InvitationExpired, fixedNow, inviteID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		_, err := svc.Accept(ctx, recipient, inviteID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindGone))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("swept invitation stays gone", func(t *testing.T) {
		for _, respond := range map[string]func(*Service) error{
			"accept": func(svc *Service) error { _, err := svc.Accept(ctx, recipient, inviteID); return err },
			"reject": func(svc *Service) error { _, err := svc.Reject(ctx, recipient, inviteID); return err },
		} {
			svc, mock := newMockService(t)
			mock.ExpectBegin()
			expectLoadForUpdate(mock, invitationRow(InvitationExpired, fixedNow.Add(-time.Hour)))
			mock.ExpectRollback()

			err := respond(svc)
			assert.True(t, apperrors.IsKind(err, apperrors.KindGone), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		}
	})

	t.Run("another email gets not found", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		expectLoadForUpdate(mock, invitationRow(InvitationPending, fixedNow.Add(time.Hour)))
		mock.ExpectRollback()

		_, err := svc.Accept(ctx, Actor{UserID: outsideID, Email: "eve@example.com"}, inviteID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-pending is a conflict", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		expectLoadForUpdate(mock, invitationRow(InvitationCanceled, fixedNow.Add(time.Hour)))
		mock.ExpectRollback()

		_, err := svc.Accept(ctx, recipient, inviteID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	})

	t.Run("unknown id", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM invitations").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := svc.Accept(ctx, recipient, inviteID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})
}

func TestService_RejectThenCancel(t *testing.T) {
	ctx := context.Background()
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, invitationRow(InvitationPending, fixedNow.Add(time.Hour)))
	mock.ExpectExec("UPDATE invitations SET status").
		WithArgs(InvitationRejected, fixedNow, inviteID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inv, err := svc.Reject(ctx, recipient, inviteID)
	require.NoError(t, err)
	assert.Equal(t, InvitationRejected, inv.Status)
	require.NotNil(t, inv.RespondedAt)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, invitationRow(InvitationRejected, fixedNow.Add(time.Hour)))
	expectRole(mock, adminID, rbac.RoleAdmin)
	mock.ExpectRollback()

	_, err = svc.Cancel(ctx, adminID, inviteID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("admin cancels", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		expectLoadForUpdate(mock, invitationRow(InvitationPending, fixedNow.Add(time.Hour)))
		expectRole(mock, adminID, rbac.RoleAdmin)
		mock.ExpectExec("UPDATE invitations SET status").
			WithArgs(InvitationCanceled, fixedNow, inviteID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		inv, err := svc.Cancel(ctx, adminID, inviteID)
		require.NoError(t, err)
		assert.Equal(t, InvitationCanceled, inv.Status)
	})

	t.Run("outsider gets not found", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		expectLoadForUpdate(mock, invitationRow(InvitationPending, fixedNow.Add(time.Hour)))
		expectRole(mock, outsideID, "")
		mock.ExpectRollback()

		_, err := svc.Cancel(ctx, outsideID, inviteID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})
}

func TestService_GetInvitation(t *testing.T) {
	ctx := context.Background()

	load := func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT (.+) FROM invitations WHERE id").
			WithArgs(inviteID).
			WillReturnRows(invitationRow(InvitationPending, fixedNow.Add(time.Hour)))
	}

	t.Run("recipient", func(t *testing.T) {
		svc, mock := newMockService(t)
		load(mock)
		inv, err := svc.GetInvitation(ctx, recipient, inviteID)
		require.NoError(t, err)
		assert.Equal(t, "hr", inv.Role)
	})

	t.Run("organization member", func(t *testing.T) {
		svc, mock := newMockService(t)
		load(mock)
		expectRole(mock, adminID, rbac.RoleAdmin)
		_, err := svc.GetInvitation(ctx, Actor{UserID: adminID, Email: "admin@example.com"}, inviteID)
		require.NoError(t, err)
	})

	t.Run("anyone else", func(t *testing.T) {
		svc, mock := newMockService(t)
		load(mock)
		expectRole(mock, outsideID, "")
		_, err := svc.GetInvitation(ctx, Actor{UserID: outsideID, Email: "eve@example.com"}, inviteID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invitation '"+inviteID+"' not found")
	})
}

func TestService_ExpireStale(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectExec("UPDATE invitations SET status").
		WithArgs(InvitationExpired, fixedNow, InvitationPending).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
