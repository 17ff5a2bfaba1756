package scope

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/rowguard/pkg/rbac"
)

// Session variable names read by row-level security policies
const (
	VarUserRole       = "app.user_role"
	VarOrganizationID = "app.organization_id"
	VarUserID         = "app.user_id"
)

const anonymousRole = "anonymous"

// Vars are the values published to Postgres for one transaction
type Vars struct {
	UserRole       string
	OrganizationID string
	UserID         string
}

// VarsFor derives session variables from a principal
func VarsFor(p *rbac.Principal) Vars {
	if p.Anonymous() {
		return Vars{UserRole: anonymousRole}
	}
	return Vars{UserRole: p.Role, OrganizationID: p.OrganizationID, UserID: p.UserID}
}

// Execer is satisfied by *sql.Tx and *sql.Conn
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const setVarsQuery = `SELECT set_config('app.user_role', $1, true), set_config('app.organization_id', $2, true), set_config('app.user_id', $3, true)`

// SetSessionVariables sets the transaction-local variables. It must run
// inside a transaction; outside one the values would not be reset.
func SetSessionVariables(ctx context.Context, tx Execer, vars Vars) error {
	if _, err := tx.ExecContext(ctx, setVarsQuery, vars.UserRole, vars.OrganizationID, vars.UserID); err != nil {
		return fmt.Errorf("failed to set session variables: %w", err)
	}
	return nil
}

// BeginScoped starts a transaction and publishes p's session variables on it
func BeginScoped(ctx context.Context, db *sql.DB, p *rbac.Principal) (*sql.Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := SetSessionVariables(ctx, tx, VarsFor(p)); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return tx, nil
}
