package main

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply platform migrations and create application tables",
	RunE: dbCommand(func(ctx context.Context, e *env, db *sql.DB, _ []string) error {
		policy, err := e.loadPolicy()
		if err != nil {
			return err
		}
		return migrateAll(ctx, e, db, policy)
	}),
}

func migrateAll(ctx context.Context, e *env, db *sql.DB, policy *rbac.Policy) error {
	if err := postgres.Migrate(ctx, db, e.logger); err != nil {
		return err
	}
	if err := postgres.EnsureTables(ctx, db, policy.Tables()); err != nil {
		return err
	}
	v, err := postgres.SchemaVersion(ctx, db, e.logger)
	if err != nil {
		return err
	}
	e.logger.WithFields(map[string]interface{}{
		"version": v,
		"tables":  len(policy.Tables()),
	}).Info("Database is up to date")
	return nil
}
