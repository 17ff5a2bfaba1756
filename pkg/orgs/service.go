package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/audit"
	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/rbac"
)

// DefaultInvitationTTL is used when no invitation lifetime is configured
const DefaultInvitationTTL = 48 * time.Hour

// Service manages organizations, members and invitations on PostgreSQL
type Service struct {
	db            *sql.DB
	roles         *rbac.Store
	registry      *rbac.Registry
	validate      *validator.Validate
	metrics       *observability.Metrics
	audit         audit.Logger
	invitationTTL time.Duration
	now           func() time.Time
}

// NewService creates an organization service. metrics and auditLogger may
// be nil; a zero invitationTTL selects DefaultInvitationTTL.
func NewService(db *sql.DB, registry *rbac.Registry, invitationTTL time.Duration, metrics *observability.Metrics, auditLogger audit.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.Nop()
	}
	if invitationTTL <= 0 {
		invitationTTL = DefaultInvitationTTL
	}
	return &Service{
		db:            db,
		roles:         rbac.NewStore(db),
		registry:      registry,
		validate:      validator.New(),
		metrics:       metrics,
		audit:         auditLogger,
		invitationTTL: invitationTTL,
		now:           time.Now,
	}
}

// MemberRole returns the user's role in an organization. It satisfies
// rbac.MembershipLookup.
func (s *Service) MemberRole(ctx context.Context, organizationID, userID string) (string, bool, error) {
	return s.roles.MemberRole(ctx, organizationID, userID)
}

// CreateOrganization creates an organization with creatorID as its admin
func (s *Service) CreateOrganization(ctx context.Context, creatorID string, req CreateOrgRequest) (*Organization, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Validation("Organization name is required")
	}
	// Generate slug from name if not provided
	if req.Slug == "" {
		req.Slug = generateSlug(req.Name)
	}
	if !validSlug(req.Slug) {
		return nil, apperrors.Validationf("Invalid organization slug '%s'", req.Slug)
	}

	org := &Organization{ID: uuid.New().String(), Name: req.Name, Slug: req.Slug, Role: rbac.RoleAdmin}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO organizations (id, name, slug)
			VALUES ($1, $2, $3)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowContext(ctx, query, org.ID, org.Name, org.Slug).Scan(&org.CreatedAt, &org.UpdatedAt)
		if err != nil {
			if apperrors.IsKind(apperrors.FromPostgres(err), apperrors.KindConflict) {
				return apperrors.Conflictf("Organization slug '%s' is already taken", org.Slug)
			}
			return fmt.Errorf("failed to create organization: %w", err)
		}

		query = `INSERT INTO members (id, organization_id, user_id, role) VALUES ($1, $2, $3, $4)`
		if _, err := tx.ExecContext(ctx, query, uuid.New().String(), org.ID, creatorID, rbac.RoleAdmin); err != nil {
			return fmt.Errorf("failed to add creator as admin: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.EventTypeOrgCreate, org.ID, audit.ResourceTypeOrganization, org.ID, nil)
	return org, nil
}

// ListForUser lists the organizations userID belongs to, with the user's
// role in each
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Organization, error) {
	query := `
		SELECT o.id, o.name, o.slug, m.role, o.created_at, o.updated_at
		FROM organizations o
		JOIN members m ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := []*Organization{}
	for rows.Next() {
		org := &Organization{}
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &org.Role, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

// GetForMember returns an organization userID belongs to. Organizations
// the user is not a member of are not found.
func (s *Service) GetForMember(ctx context.Context, userID, organizationID string) (*Organization, error) {
	if _, err := uuid.Parse(organizationID); err != nil {
		return nil, orgNotFound(organizationID)
	}
	query := `
		SELECT o.id, o.name, o.slug, m.role, o.created_at, o.updated_at
		FROM organizations o
		JOIN members m ON m.organization_id = o.id
		WHERE o.id = $1 AND m.user_id = $2
	`
	org := &Organization{}
	err := s.db.QueryRowContext(ctx, query, organizationID, userID).
		Scan(&org.ID, &org.Name, &org.Slug, &org.Role, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orgNotFound(organizationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// requireRole returns the caller's role, NotFound for non-members and
// Forbidden when want is set and not held
func (s *Service) requireRole(ctx context.Context, q queryRower, organizationID, userID, want, action string) (string, error) {
	if _, err := uuid.Parse(organizationID); err != nil {
		return "", orgNotFound(organizationID)
	}
	var role string
	err := q.QueryRowContext(ctx, `SELECT role FROM members WHERE organization_id = $1 AND user_id = $2`,
		organizationID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", orgNotFound(organizationID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to check membership: %w", err)
	}
	if want != "" && role != want {
		return role, apperrors.Forbiddenf("Only organization admins can %s", action)
	}
	return role, nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			observability.FromContext(ctx).WithError(rbErr).Warn("failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, eventType audit.EventType, organizationID string, resourceType audit.ResourceType, resourceID string, metadata map[string]interface{}) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess)
	event.OrganizationID = organizationID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Metadata = metadata

	if err := s.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit organization event")
	}
}

func orgNotFound(id string) error {
	return apperrors.NotFoundf("Organization '%s' not found", id)
}

func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}

func validSlug(slug string) bool {
	return slug != "" && generateSlug(slug) == slug
}
