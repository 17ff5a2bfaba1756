package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/audit"
	"github.com/platinummonkey/rowguard/pkg/rbac"
)

const invitationColumns = `id, organization_id, email, role, status, inviter_id, expires_at, created_at, responded_at`

// Invite creates a pending invitation. The caller must be an admin of the
// organization. An address may hold one pending invitation per
// organization.
func (s *Service) Invite(ctx context.Context, actorID, organizationID string, req InviteRequest) (*Invitation, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Validation("A valid email address and role are required")
	}
	if !s.registry.Has(req.Role) {
		return nil, apperrors.Validationf("Unknown role '%s'", req.Role)
	}

	now := s.now().UTC()
	inv := &Invitation{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		Email:          req.Email,
		Role:           req.Role,
		Status:         InvitationPending,
		InviterID:      actorID,
		ExpiresAt:      now.Add(s.invitationTTL),
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.requireRole(ctx, tx, organizationID, actorID, rbac.RoleAdmin, "invite members"); err != nil {
			return err
		}

		var exists bool
		query := `
			SELECT EXISTS (
				SELECT 1 FROM members m JOIN users u ON u.id = m.user_id
				WHERE m.organization_id = $1 AND u.email = $2
			)
		`
		if err := tx.QueryRowContext(ctx, query, organizationID, inv.Email).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if exists {
			return apperrors.Conflictf("'%s' is already a member of this organization", inv.Email)
		}

		// a lapsed pending invitation must not block a new one
		query = `
			UPDATE invitations SET status = $1, responded_at = $2
			WHERE organization_id = $3 AND email = $4 AND status = $5 AND expires_at <= $2
		`
		if _, err := tx.ExecContext(ctx, query, InvitationExpired, now, organizationID, inv.Email, InvitationPending); err != nil {
			return fmt.Errorf("failed to expire stale invitations: %w", err)
		}

		query = `
			INSERT INTO invitations (id, organization_id, email, role, status, inviter_id, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`
		err := tx.QueryRowContext(ctx, query, inv.ID, inv.OrganizationID, inv.Email, inv.Role,
			inv.Status, inv.InviterID, inv.ExpiresAt).Scan(&inv.CreatedAt)
		if err != nil {
			if apperrors.IsKind(apperrors.FromPostgres(err), apperrors.KindConflict) {
				return apperrors.Conflictf("'%s' already has a pending invitation", inv.Email)
			}
			return fmt.Errorf("failed to create invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.transition(InvitationPending)
	s.record(ctx, audit.EventTypeOrgInvitationCreate, organizationID, audit.ResourceTypeInvitation, inv.ID,
		map[string]interface{}{"email": inv.Email, "role": inv.Role})
	return inv, nil
}

// ListInvitations lists an organization's invitations, newest first. The
// caller must be a member.
func (s *Service) ListInvitations(ctx context.Context, actorID, organizationID string) ([]*Invitation, error) {
	if _, err := s.requireRole(ctx, s.db, organizationID, actorID, "", ""); err != nil {
		return nil, err
	}

	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE organization_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []*Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invitations, nil
}

// GetInvitation returns an invitation to its recipient or to a member of
// the inviting organization. Everyone else gets not found.
func (s *Service) GetInvitation(ctx context.Context, actor Actor, id string) (*Invitation, error) {
	inv, err := s.loadInvitation(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if actor.owns(inv) {
		return inv, nil
	}
	if _, err := s.requireRole(ctx, s.db, inv.OrganizationID, actor.UserID, "", ""); err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, invitationNotFound(id)
		}
		return nil, err
	}
	return inv, nil
}

// Accept joins the recipient to the organization with the invited role
func (s *Service) Accept(ctx context.Context, actor Actor, id string) (*Member, error) {
	var member *Member
	inv, err := s.respond(ctx, actor, id, InvitationAccepted, func(tx *sql.Tx, inv *Invitation) error {
		query := `
			INSERT INTO members (id, organization_id, user_id, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (organization_id, user_id) DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, query, uuid.New().String(), inv.OrganizationID, actor.UserID, inv.Role); err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}

		query = `
			SELECT ` + memberColumns + `
			FROM members m
			JOIN users u ON u.id = m.user_id
			WHERE m.organization_id = $1 AND m.user_id = $2
		`
		var err error
		member, err = scanMember(tx.QueryRowContext(ctx, query, inv.OrganizationID, actor.UserID))
		if err != nil {
			return fmt.Errorf("failed to load member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.EventTypeOrgInvitationAccept, inv.OrganizationID, audit.ResourceTypeInvitation, inv.ID,
		map[string]interface{}{"role": inv.Role})
	return member, nil
}

// Reject declines an invitation
func (s *Service) Reject(ctx context.Context, actor Actor, id string) (*Invitation, error) {
	inv, err := s.respond(ctx, actor, id, InvitationRejected, nil)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.EventTypeOrgInvitationReject, inv.OrganizationID, audit.ResourceTypeInvitation, inv.ID, nil)
	return inv, nil
}

// Cancel withdraws a pending invitation. The caller must be an admin of the
// inviting organization.
func (s *Service) Cancel(ctx context.Context, actorID, id string) (*Invitation, error) {
	var inv *Invitation
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		inv, err = s.loadInvitation(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if _, err := s.requireRole(ctx, tx, inv.OrganizationID, actorID, rbac.RoleAdmin, "cancel invitations"); err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				return invitationNotFound(id)
			}
			return err
		}
		if inv.Status != InvitationPending {
			return notPending(inv)
		}
		return s.setStatus(ctx, tx, inv, InvitationCanceled)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.EventTypeOrgInvitationCancel, inv.OrganizationID, audit.ResourceTypeInvitation, inv.ID, nil)
	return inv, nil
}

// ExpireStale marks pending invitations past their expiry as expired
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	query := `UPDATE invitations SET status = $1, responded_at = $2 WHERE status = $3 AND expires_at <= $2`
	result, err := s.db.ExecContext(ctx, query, InvitationExpired, now, InvitationPending)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 && s.metrics != nil {
		s.metrics.LifecycleTransitions.WithLabelValues("invitation", string(InvitationExpired)).Add(float64(n))
	}
	return n, nil
}

// respond moves a pending invitation addressed to actor into status. A
// lapsed invitation is persisted as expired; expired ones are reported as
// gone.
func (s *Service) respond(ctx context.Context, actor Actor, id string, status InvitationStatus, apply func(tx *sql.Tx, inv *Invitation) error) (*Invitation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inv, err := s.loadInvitation(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if !actor.owns(inv) {
		return nil, invitationNotFound(id)
	}
	if inv.Status == InvitationExpired {
		return nil, apperrors.Gone("Invitation has expired")
	}
	if inv.Status != InvitationPending {
		return nil, notPending(inv)
	}

	if !s.now().Before(inv.ExpiresAt) {
		if err := s.setStatus(ctx, tx, inv, InvitationExpired); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, apperrors.Gone("Invitation has expired")
	}

	if apply != nil {
		if err := apply(tx, inv); err != nil {
			return nil, err
		}
	}
	if err := s.setStatus(ctx, tx, inv, status); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inv, nil
}

func (s *Service) loadInvitation(ctx context.Context, q queryRower, id string, forUpdate bool) (*Invitation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, invitationNotFound(id)
	}
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	inv, err := scanInvitation(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invitationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

func (s *Service) setStatus(ctx context.Context, tx *sql.Tx, inv *Invitation, status InvitationStatus) error {
	now := s.now().UTC()
	query := `UPDATE invitations SET status = $1, responded_at = $2 WHERE id = $3`
	if _, err := tx.ExecContext(ctx, query, status, now, inv.ID); err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	inv.Status = status
	inv.RespondedAt = &now
	s.transition(status)
	return nil
}

func (s *Service) transition(status InvitationStatus) {
	if s.metrics != nil {
		s.metrics.LifecycleTransitions.WithLabelValues("invitation", string(status)).Inc()
	}
}

func scanInvitation(row rowScanner) (*Invitation, error) {
	var (
		inv         Invitation
		respondedAt sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.Status,
		&inv.InviterID, &inv.ExpiresAt, &inv.CreatedAt, &respondedAt)
	if err != nil {
		return nil, err
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		inv.RespondedAt = &t
	}
	return &inv, nil
}

func invitationNotFound(id string) error {
	return apperrors.NotFoundf("Invitation '%s' not found", id)
}

func notPending(inv *Invitation) error {
	return apperrors.Conflictf("Invitation is already %s", inv.Status)
}

