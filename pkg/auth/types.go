package auth

import (
	"time"

	"github.com/platinummonkey/rowguard/pkg/rbac"
)

// User is an account. Role is the optional global role used on tables that
// are not organization-scoped.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	Role          string    `json:"role,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Session is an authenticated bearer session
type Session struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"userId"`
	TokenHash            string     `json:"-"`
	ActiveOrganizationID string     `json:"activeOrganizationId,omitempty"`
	ExpiresAt            time.Time  `json:"expiresAt"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	RevokedAt            *time.Time `json:"revokedAt,omitempty"`
}

// Valid reports whether the session may still be used at now
func (s *Session) Valid(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Context returns the part of the session the role resolver reads. A nil
// session yields nil, meaning anonymous.
func (s *Session) Context() *rbac.SessionContext {
	if s == nil {
		return nil
	}
	return &rbac.SessionContext{UserID: s.UserID, ActiveOrganizationID: s.ActiveOrganizationID}
}

// TokenKind distinguishes one-time token purposes
type TokenKind string

const (
	TokenKindEmailVerification TokenKind = "email_verification"
	TokenKindPasswordReset     TokenKind = "password_reset"
)

// Valid reports whether k is a known kind
func (k TokenKind) Valid() bool {
	return k == TokenKindEmailVerification || k == TokenKindPasswordReset
}

// OneTimeToken is a single-use token such as an email verification link
type OneTimeToken struct {
	ID        string     `json:"id"`
	Kind      TokenKind  `json:"kind"`
	UserID    string     `json:"userId"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
