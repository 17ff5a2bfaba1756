// Package rbac resolves effective roles and evaluates table and field
// permission rules.
//
// # Roles
//
// The Registry holds the built-in roles admin (80), member (40) and viewer
// (10) plus the application's custom roles. Levels order roles for display
// only; a roles rule matches names exactly.
//
// # Resolution
//
// Resolver.Resolve picks the effective role for a session and table:
//
//  1. With an active organization, the membership role in it.
//  2. Otherwise, for tables that are not organization-scoped, the user's
//     global role, then the schema's defaultRole, then member.
//  3. Organization-scoped tables without an active organization are denied.
//  4. Unregistered roles become the authenticated pseudo-role.
//
// # Evaluation
//
// Evaluator.Evaluate applies one of the four rule kinds (all,
// authenticated, roles, owner) to an operation. MaskFields layers the
// per-field read and write rules on top. Checker wraps both, converting
// denials to apperrors and recording them for audit and metrics.
package rbac
