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
)

// TokenService issues and consumes one-time tokens
type TokenService struct {
	db      *sql.DB
	tokens  *TokenGenerator
	metrics *observability.Metrics
	audit   audit.Logger
	now     func() time.Time
}

// NewTokenService creates a token service. metrics and auditLogger may be
// nil.
func NewTokenService(db *sql.DB, metrics *observability.Metrics, auditLogger audit.Logger) *TokenService {
	if auditLogger == nil {
		auditLogger = audit.Nop()
	}
	return &TokenService{
		db:      db,
		tokens:  NewTokenGenerator(),
		metrics: metrics,
		audit:   auditLogger,
		now:     time.Now,
	}
}

// Issue creates a token of kind for userID valid for ttl
func (s *TokenService) Issue(ctx context.Context, kind TokenKind, userID string, ttl time.Duration) (string, *OneTimeToken, error) {
	if !kind.Valid() {
		return "", nil, apperrors.Validationf("Unknown token kind '%s'", kind)
	}
	if ttl <= 0 {
		return "", nil, fmt.Errorf("token ttl must be positive")
	}

	token, hash, err := s.tokens.GenerateToken()
	if err != nil {
		return "", nil, err
	}

	t := &OneTimeToken{
		ID:        uuid.New().String(),
		Kind:      kind,
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: s.now().Add(ttl).UTC(),
	}

	query := `
		INSERT INTO one_time_tokens (id, kind, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err = s.db.QueryRowContext(ctx, query, t.ID, t.Kind, t.UserID, t.TokenHash, t.ExpiresAt).Scan(&t.CreatedAt)
	if err != nil {
		if classified := apperrors.FromPostgres(err); classified != err {
			return "", nil, classified
		}
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.transition(kind, "issued")
	return token, t, nil
}

// Consume marks a token used. Unknown tokens are NotFound, used tokens
// Conflict and expired tokens Gone. Consuming an email verification token
// also marks the user's email verified.
func (s *TokenService) Consume(ctx context.Context, kind TokenKind, token string) (*OneTimeToken, error) {
	if err := s.tokens.ValidateTokenFormat(token); err != nil {
		return nil, apperrors.NotFound("Token not found")
	}
	hash := s.tokens.HashToken(token)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT id, kind, user_id, token_hash, expires_at, used_at, created_at
		FROM one_time_tokens
		WHERE token_hash = $1 AND kind = $2
		FOR UPDATE
	`
	var (
		t      OneTimeToken
		usedAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx, query, hash, kind).
		Scan(&t.ID, &t.Kind, &t.UserID, &t.TokenHash, &t.ExpiresAt, &usedAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Token not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if usedAt.Valid {
		s.transition(kind, "reused")
		return nil, apperrors.Conflict("Token has already been used")
	}
	now := s.now()
	if !now.Before(t.ExpiresAt) {
		s.transition(kind, "expired")
		return nil, apperrors.Gone("Token has expired")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE one_time_tokens SET used_at = $1 WHERE id = $2`, now.UTC(), t.ID); err != nil {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	if kind == TokenKindEmailVerification {
		query := `UPDATE users SET email_verified = TRUE, updated_at = now() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, t.UserID); err != nil {
			return nil, fmt.Errorf("failed to verify email: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	used := now.UTC()
	t.UsedAt = &used
	s.transition(kind, "consumed")

	event := audit.NewEvent(ctx, audit.EventTypeAuthTokenConsume, audit.EventStatusSuccess)
	event.UserID = t.UserID
	event.ResourceType = audit.ResourceTypeToken
	event.ResourceID = t.ID
	event.Metadata = map[string]interface{}{"kind": string(kind)}
	if err := s.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit token consumption")
	}
	return &t, nil
}

// DeleteExpired removes tokens that expired or were used before cutoff
func (s *TokenService) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM one_time_tokens WHERE expires_at < $1 OR used_at < $1`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}

func (s *TokenService) transition(kind TokenKind, state string) {
	if s.metrics != nil {
		s.metrics.LifecycleTransitions.WithLabelValues(string(kind), state).Inc()
	}
}
