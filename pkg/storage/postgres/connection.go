package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/rowguard/pkg/config"
	"github.com/platinummonkey/rowguard/pkg/observability"
)

// Open opens the connection pool and verifies it with a ping
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// StartStatsRoutine copies pool statistics into the metrics gauges every
// interval until ctx is done
func StartStatsRoutine(ctx context.Context, db *sql.DB, metrics *observability.Metrics, interval time.Duration) {
	if interval == 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer observability.RecoverPanic(observability.FromContext(ctx), "db stats routine")

		metrics.RecordDBStats(db.Stats())
		for {
			select {
			case <-ticker.C:
				metrics.RecordDBStats(db.Stats())
			case <-ctx.Done():
				return
			}
		}
	}()
}
