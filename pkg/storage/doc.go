// Package storage opens the shared backing services: the Redis client used
// by the session cache and the distributed rate limiter. The Postgres pool,
// migrations and application-table DDL live in the postgres subpackage.
package storage
