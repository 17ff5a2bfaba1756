package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/rowguard/pkg/config"
	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/schema"
	"github.com/platinummonkey/rowguard/pkg/storage"
	"github.com/platinummonkey/rowguard/pkg/storage/postgres"
)

var version = "dev"

var schemaPath string

var rootCmd = &cobra.Command{
	Use:           "rowguard",
	Short:         "Permission resolution engine for schema-driven tables",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(tokensCmd)

	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to the application schema (overrides ROWGUARD_SCHEMA_PATH)")
}

// env is the shared startup state of every command
type env struct {
	cfg    *config.Config
	logger *observability.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if schemaPath != "" {
		cfg.Server.SchemaPath = schemaPath
	}
	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout).
		WithField("service", "rowguard")
	return &env{cfg: cfg, logger: logger}, nil
}

// loadPolicy reads and compiles the application schema
func (e *env) loadPolicy() (*rbac.Policy, error) {
	s, err := schema.Load(e.cfg.Server.SchemaPath)
	if err != nil {
		return nil, err
	}
	policy, err := rbac.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", e.cfg.Server.SchemaPath, err)
	}
	return policy, nil
}

func (e *env) openDB(ctx context.Context) (*sql.DB, error) {
	db, err := postgres.Open(ctx, e.cfg.Database)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Connected to PostgreSQL")
	return db, nil
}

// openRedis returns nil when no Redis endpoint is configured
func (e *env) openRedis(ctx context.Context) (*redis.Client, error) {
	if !e.cfg.Redis.Enabled() {
		return nil, nil
	}
	client, err := storage.NewRedisClient(ctx, e.cfg.Redis)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Connected to Redis")
	return client, nil
}

// dbCommand wraps a command body that needs the config, a logger and a
// database connection
func dbCommand(run func(ctx context.Context, e *env, db *sql.DB, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		ctx := observability.WithLogger(cmd.Context(), e.logger)
		db, err := e.openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		return run(ctx, e, db, args)
	}
}
