// Package batch applies multi-record create, update, delete and upsert
// requests atomically.
//
// A batch moves through Validating, Applying and then Committed, or
// RollingBack and Rejected. Every record is checked before any is
// written, all writes share one transaction, and a single failing record
// rejects the whole batch. A batch that mixes owned and non-owned records
// under an owner rule is therefore rejected as a whole with 403.
package batch
