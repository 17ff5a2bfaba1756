package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/records"
	"github.com/platinummonkey/rowguard/pkg/schema"
)

// EnsureTables creates the application tables declared in the schema,
// their unique indexes and, for organization-scoped tables, the row-level
// security policy. It runs in one transaction and is idempotent.
func EnsureTables(ctx context.Context, db *sql.DB, tables []schema.Table) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	logger := observability.FromContext(ctx)
	for i := range tables {
		table := &tables[i]
		for _, stmt := range records.TableStatements(table) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("table %s: %w", table.Name, err)
			}
		}
		logger.WithField("table", table.Name).Debug("Ensured application table")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table DDL: %w", err)
	}
	return nil
}
