package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/rowguard/pkg/api"
	"github.com/platinummonkey/rowguard/pkg/audit"
	"github.com/platinummonkey/rowguard/pkg/auth"
	"github.com/platinummonkey/rowguard/pkg/batch"
	"github.com/platinummonkey/rowguard/pkg/maintenance"
	"github.com/platinummonkey/rowguard/pkg/middleware"
	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/orgs"
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/records"
)

// app holds every wired service of a running instance
type app struct {
	policy   *rbac.Policy
	registry *prometheus.Registry
	metrics  *observability.Metrics
	audit    audit.Logger

	sessions *auth.SessionManager
	tokens   *auth.TokenService
	users    *auth.UserStore
	orgs     *orgs.Service
	records  *records.Service
	batches  *batch.Coordinator
	health   *observability.HealthChecker
	limiter  middleware.Limiter
	sweeper  *maintenance.Sweeper
}

// newApp wires the services on top of an open database. redisClient may be
// nil, in which case sessions are cached per process and rate limits are
// local.
func newApp(e *env, db *sql.DB, redisClient *redis.Client) (*app, error) {
	policy, err := e.loadPolicy()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}
	auditLogger := audit.NewMultiLogger(dbAudit, audit.NewLogLogger(e.logger.WithField("component", "audit")))

	store := rbac.NewStore(db)
	resolver := rbac.NewResolver(policy, store, store)
	checker := rbac.NewChecker(policy, resolver, metrics, auditLogger)

	recordService := records.NewService(db, checker, auditLogger)
	cfg := e.cfg

	cache := auth.NewSessionCache(cfg.Auth.SessionCacheMax, cfg.Auth.SessionCacheTTL, redisClient, metrics)
	sessions := auth.NewSessionManager(db, store, cache, auditLogger)
	tokens := auth.NewTokenService(db, metrics, auditLogger)
	orgService := orgs.NewService(db, policy.Registry(), cfg.Auth.InvitationTTL, metrics, auditLogger)

	var limiter middleware.Limiter
	if cfg.Limits.RateLimitEnabled {
		if redisClient != nil {
			limiter = middleware.NewRedisLimiter(redisClient, int(cfg.Limits.RequestsPerSecond), time.Second)
		} else {
			limiter = middleware.NewLocalLimiter(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst)
		}
	}

	a := &app{
		policy:   policy,
		registry: registry,
		metrics:  metrics,
		audit:    auditLogger,
		sessions: sessions,
		tokens:   tokens,
		users:    auth.NewUserStore(db, policy.Registry()),
		orgs:     orgService,
		records:  recordService,
		batches:  batch.NewCoordinator(recordService, cfg.Limits.MaxBatchSize, metrics, auditLogger),
		health:   observability.NewHealthChecker(db, redisClient, version),
		limiter:  limiter,
	}
	a.sweeper = maintenance.NewSweeper(sessions, tokens, orgService, cfg.Maintenance.Retention, metrics,
		e.logger.WithField("component", "maintenance"))

	e.logger.WithFields(map[string]interface{}{
		"tables": len(policy.Tables()),
		"roles":  len(policy.Registry().Roles()),
	}).Info("Schema compiled")
	return a, nil
}

// apiServer builds the HTTP API on top of the wired services
func (a *app) apiServer(e *env) *api.Server {
	return api.NewServer(api.Dependencies{
		Sessions:      a.sessions,
		Tokens:        a.tokens,
		Users:         a.users,
		Organizations: a.orgs,
		Records:       a.records,
		Batches:       a.batches,
		Health:        a.health,
		Limiter:       a.limiter,
		Metrics:       a.metrics,
		Logger:        e.logger.WithField("component", "api"),
		MaxBodyBytes:  e.cfg.Limits.MaxBodyBytes,
	})
}
