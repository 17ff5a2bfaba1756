package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/audit"
	"github.com/platinummonkey/rowguard/pkg/rbac"
)

const memberColumns = `m.id, m.organization_id, m.user_id, m.role, u.email, u.name, m.created_at`

// ListMembers lists the members of an organization. The caller must be a
// member.
func (s *Service) ListMembers(ctx context.Context, actorID, organizationID string) ([]*Member, error) {
	if _, err := s.requireRole(ctx, s.db, organizationID, actorID, "", ""); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + memberColumns + `
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// UpdateMemberRole changes a member's role. The caller must be an admin of
// the organization, and the last admin cannot be demoted.
func (s *Service) UpdateMemberRole(ctx context.Context, actorID, organizationID, userID, role string) (*Member, error) {
	if !s.registry.Has(role) {
		return nil, apperrors.Validationf("Unknown role '%s'", role)
	}

	var member *Member
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.requireRole(ctx, tx, organizationID, actorID, rbac.RoleAdmin, "change member roles"); err != nil {
			return err
		}
		if role != rbac.RoleAdmin {
			if err := s.keepAdmin(ctx, tx, organizationID, userID); err != nil {
				return err
			}
		}

		query := `
			WITH updated AS (
				UPDATE members SET role = $1
				WHERE organization_id = $2 AND user_id = $3
				RETURNING id, organization_id, user_id, role, created_at
			)
			SELECT ` + memberColumns + `
			FROM updated m
			JOIN users u ON u.id = m.user_id
		`
		var err error
		member, err = scanMember(tx.QueryRowContext(ctx, query, role, organizationID, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return memberNotFound(userID)
		}
		if err != nil {
			return fmt.Errorf("failed to update member role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.EventTypeOrgMemberRoleChange, organizationID, audit.ResourceTypeMember, userID,
		map[string]interface{}{"role": role})
	return member, nil
}

// RemoveMember removes a member. The caller must be an admin of the
// organization, and the last admin cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, actorID, organizationID, userID string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.requireRole(ctx, tx, organizationID, actorID, rbac.RoleAdmin, "remove members"); err != nil {
			return err
		}
		if err := s.keepAdmin(ctx, tx, organizationID, userID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM members WHERE organization_id = $1 AND user_id = $2`,
			organizationID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return memberNotFound(userID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, audit.EventTypeOrgMemberRemove, organizationID, audit.ResourceTypeMember, userID, nil)
	return nil
}

// keepAdmin fails when userID is the organization's only admin. The admin
// rows are locked so that concurrent demotions serialize.
func (s *Service) keepAdmin(ctx context.Context, tx *sql.Tx, organizationID, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return memberNotFound(userID)
	}
	query := `SELECT user_id FROM members WHERE organization_id = $1 AND role = $2 FOR UPDATE`
	rows, err := tx.QueryContext(ctx, query, organizationID, rbac.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}

	if len(admins) == 1 && admins[0] == userID {
		return apperrors.Conflict("Organization must keep at least one admin")
	}
	return nil
}

func scanMember(row rowScanner) (*Member, error) {
	var (
		m    Member
		name sql.NullString
	)
	if err := row.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.Email, &name, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Name = name.String
	return &m, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func memberNotFound(userID string) error {
	return apperrors.NotFoundf("Member '%s' not found", userID)
}
