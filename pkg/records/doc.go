// Package records stores and guards rows of schema-declared tables.
//
// Store renders dynamic SQL for a table and runs it on a transaction the
// caller provides. Guard prepares writes: it evaluates the table rule,
// rejects readonly, cross-organization and field-denied writes, then
// coerces values to their declared types. Service ties both to a
// per-request transaction carrying the row-level security variables.
//
// Checks always run in the same order: table permission, field checks,
// value validation. A request that fails permission never learns whether
// its values were valid.
package records
