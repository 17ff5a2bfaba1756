package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store reads membership and global roles for the resolver
type Store struct {
	db *sql.DB
}

// NewStore creates a new role lookup store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// MemberRole returns the user's role in an organization
func (s *Store) MemberRole(ctx context.Context, organizationID, userID string) (string, bool, error) {
	query := `SELECT role FROM members WHERE organization_id = $1 AND user_id = $2`

	var role string
	err := s.db.QueryRowContext(ctx, query, organizationID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get member role: %w", err)
	}
	return role, true, nil
}

// GlobalRole returns the user's global role, or "" when none is set
func (s *Store) GlobalRole(ctx context.Context, userID string) (string, error) {
	query := `SELECT role FROM users WHERE id = $1`

	var role sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get global role: %w", err)
	}
	return role.String, nil
}
