package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/platinummonkey/rowguard/pkg/observability"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// gooseLogger routes goose output through the process logger
type gooseLogger struct {
	logger *observability.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) { l.logger.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.logger.Fatalf(format, v...) }

func setupGoose(logger *observability.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: logger})
	return goose.SetDialect("postgres")
}

// Migrate applies every pending platform migration: users, organizations,
// members, sessions, one-time tokens, invitations and audit events
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if err := setupGoose(logger); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the latest applied migration version
func SchemaVersion(ctx context.Context, db *sql.DB, logger *observability.Logger) (int64, error) {
	if err := setupGoose(logger); err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, nil
}
