package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/audit"
	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/rbac"
)

const sessionColumns = `id, user_id, token_hash, active_organization_id, expires_at, created_at, updated_at, revoked_at`

// SessionManager creates, resolves and revokes bearer sessions
type SessionManager struct {
	db      *sql.DB
	members rbac.MembershipLookup
	cache   *SessionCache
	tokens  *TokenGenerator
	audit   audit.Logger
	now     func() time.Time
}

// NewSessionManager creates a session manager. cache and auditLogger may be
// nil.
func NewSessionManager(db *sql.DB, members rbac.MembershipLookup, cache *SessionCache, auditLogger audit.Logger) *SessionManager {
	if auditLogger == nil {
		auditLogger = audit.Nop()
	}
	return &SessionManager{
		db:      db,
		members: members,
		cache:   cache,
		tokens:  NewTokenGenerator(),
		audit:   auditLogger,
		now:     time.Now,
	}
}

// Create starts a session for userID and returns the bearer token. The
// token is only available here; the database keeps its hash.
func (m *SessionManager) Create(ctx context.Context, userID string, ttl time.Duration) (string, *Session, error) {
	if ttl <= 0 {
		return "", nil, fmt.Errorf("session ttl must be positive")
	}

	token, hash, err := m.tokens.GenerateToken()
	if err != nil {
		return "", nil, err
	}

	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: m.now().Add(ttl).UTC(),
	}

	query := `
		INSERT INTO sessions (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err = m.db.QueryRowContext(ctx, query, sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt).
		Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if classified := apperrors.FromPostgres(err); classified != err {
			return "", nil, classified
		}
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.record(ctx, audit.EventTypeAuthSessionCreate, sess, nil)
	return token, sess, nil
}

// Lookup resolves a bearer token to a live session. Malformed, unknown,
// revoked and expired tokens are all Unauthenticated.
func (m *SessionManager) Lookup(ctx context.Context, token string) (*Session, error) {
	if err := m.tokens.ValidateTokenFormat(token); err != nil {
		return nil, apperrors.Unauthenticated("Invalid session token")
	}
	hash := m.tokens.HashToken(token)
	now := m.now()

	if m.cache != nil {
		if sess, ok := m.cache.Get(ctx, hash); ok && sess.Valid(now) {
			return sess, nil
		}
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`
	sess, err := scanSession(m.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Unauthenticated("Invalid session token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if sess.RevokedAt != nil {
		return nil, apperrors.Unauthenticated("Session has been revoked")
	}
	if !now.Before(sess.ExpiresAt) {
		return nil, apperrors.Unauthenticated("Session has expired")
	}

	if m.cache != nil {
		m.cache.Set(ctx, sess)
	}
	return sess, nil
}

// SetActiveOrganization switches the session's active organization. An
// empty organizationID clears it. Organizations the user does not belong
// to are reported as not found.
func (m *SessionManager) SetActiveOrganization(ctx context.Context, sess *Session, organizationID string) (*Session, error) {
	if organizationID != "" {
		if _, err := uuid.Parse(organizationID); err != nil {
			return nil, apperrors.NotFoundf("Organization '%s' not found", organizationID)
		}
		_, found, err := m.members.MemberRole(ctx, organizationID, sess.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to check membership: %w", err)
		}
		if !found {
			return nil, apperrors.NotFoundf("Organization '%s' not found", organizationID)
		}
	}

	query := `
		UPDATE sessions
		SET active_organization_id = $1, updated_at = now()
		WHERE id = $2 AND revoked_at IS NULL
		RETURNING ` + sessionColumns
	updated, err := scanSession(m.db.QueryRowContext(ctx, query,
		sql.NullString{String: organizationID, Valid: organizationID != ""}, sess.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Unauthenticated("Session has been revoked")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	m.invalidate(ctx, sess.TokenHash)
	m.record(ctx, audit.EventTypeAuthActiveOrgChange, updated, map[string]interface{}{
		"previous_organization_id": sess.ActiveOrganizationID,
	})
	return updated, nil
}

// Revoke ends a session. Revoking an already revoked session is a no-op.
func (m *SessionManager) Revoke(ctx context.Context, sess *Session) error {
	query := `UPDATE sessions SET revoked_at = now(), updated_at = now() WHERE id = $1 AND revoked_at IS NULL`
	if _, err := m.db.ExecContext(ctx, query, sess.ID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	m.invalidate(ctx, sess.TokenHash)
	m.record(ctx, audit.EventTypeAuthSessionRevoke, sess, nil)
	return nil
}

// DeleteExpired removes sessions that expired or were revoked before cutoff
func (m *SessionManager) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1 OR revoked_at < $1`
	result, err := m.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

func (m *SessionManager) invalidate(ctx context.Context, tokenHash string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx, tokenHash); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("session cache invalidation failed")
	}
}

func (m *SessionManager) record(ctx context.Context, eventType audit.EventType, sess *Session, metadata map[string]interface{}) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess)
	event.UserID = sess.UserID
	event.OrganizationID = sess.ActiveOrganizationID
	event.ResourceType = audit.ResourceTypeSession
	event.ResourceID = sess.ID
	event.Metadata = metadata

	if err := m.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit session event")
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess      Session
		activeOrg sql.NullString
		revokedAt sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &activeOrg,
		&sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	sess.ActiveOrganizationID = activeOrg.String
	if revokedAt.Valid {
		sess.RevokedAt = &revokedAt.Time
	}
	return &sess, nil
}
