// Package scope confines queries and writes to the caller's organization.
//
// The application-level predicate produced by Filter and the row-level
// security policies rendered by PolicyStatements enforce the same rule:
// rows of an organization-scoped table are visible only when their
// organization_id equals the active organization. SetSessionVariables
// publishes the principal to Postgres once per transaction so that the
// policies have something to compare against.
//
// Soft-deleted rows (deleted_at IS NOT NULL) are excluded from every
// predicate.
package scope
