// Package config loads rowguard configuration from environment variables.
//
// Variables are read with envconfig; every field has a default except the
// database URL. The application schema (roles, tables, permissions) is a
// separate file whose path is given by ROWGUARD_SCHEMA_PATH.
//
// Server settings:
//
//	ROWGUARD_HOST="0.0.0.0"
//	ROWGUARD_PORT="8080"
//	ROWGUARD_HEALTH_PORT="9090"
//	ROWGUARD_SCHEMA_PATH="/etc/rowguard/schema.yaml"
//
// Database and cache:
//
//	ROWGUARD_DATABASE_URL="postgres://localhost/rowguard?sslmode=disable"
//	ROWGUARD_DATABASE_MAX_CONNS="20"
//	ROWGUARD_REDIS_URL="localhost:6379"
//
// Lifecycles and limits:
//
//	ROWGUARD_SESSION_TTL="168h"
//	ROWGUARD_INVITATION_TTL="48h"
//	ROWGUARD_MAX_BATCH_SIZE="1000"
//	ROWGUARD_RATE_LIMIT_RPS="50"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
