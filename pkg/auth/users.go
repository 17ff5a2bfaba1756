package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/rbac"
)

const userColumns = `id, email, name, role, email_verified, created_at, updated_at`

// UserStore persists users
type UserStore struct {
	db       *sql.DB
	registry *rbac.Registry
	validate *validator.Validate
}

// NewUserStore creates a user store. Global roles are checked against
// registry.
func NewUserStore(db *sql.DB, registry *rbac.Registry) *UserStore {
	return &UserStore{db: db, registry: registry, validate: validator.New()}
}

// NewUser is the input to Create
type NewUser struct {
	Email string `validate:"required,email"`
	Name  string `validate:"max=200"`
	Role  string
}

// Create inserts a user. Emails are stored lowercased and must be unique.
func (s *UserStore) Create(ctx context.Context, in NewUser) (*User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Validation("A valid email address is required")
	}
	if in.Role != "" && !s.registry.Has(in.Role) {
		return nil, apperrors.Validationf("Unknown role '%s'", in.Role)
	}

	query := `
		INSERT INTO users (id, email, name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	u, err := scanUser(s.db.QueryRowContext(ctx, query,
		uuid.New().String(), in.Email, in.Name, sql.NullString{String: in.Role, Valid: in.Role != ""}))
	if err != nil {
		if apperrors.IsKind(apperrors.FromPostgres(err), apperrors.KindConflict) {
			return nil, apperrors.Conflictf("User with email '%s' already exists", in.Email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// Find returns a user by id
func (s *UserStore) Find(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("User '%s' not found", id)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("User '%s' not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// FindByEmail returns a user by email, case-insensitively
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("User '%s' not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// SetRole sets or clears (role "") the user's global role
func (s *UserStore) SetRole(ctx context.Context, id, role string) error {
	if role != "" && !s.registry.Has(role) {
		return apperrors.Validationf("Unknown role '%s'", role)
	}
	query := `UPDATE users SET role = $1, updated_at = now() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, sql.NullString{String: role, Valid: role != ""}, id)
	if err != nil {
		return fmt.Errorf("failed to set user role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set user role: %w", err)
	}
	if n == 0 {
		return apperrors.NotFoundf("User '%s' not found", id)
	}
	return nil
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u    User
		name sql.NullString
		role sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &name, &role, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Name = name.String
	u.Role = role.String
	return &u, nil
}
