package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger writes audit events to the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database audit logger. The table is created by the
// platform migrations.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts an event and records its id
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			occurred_at, event_type, status,
			user_id, organization_id, role,
			resource_type, resource_id,
			request_id, message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		nullString(event.UserID), nullString(event.OrganizationID), nullString(event.Role),
		nullString(string(event.ResourceType)), nullString(event.ResourceID),
		nullString(event.RequestID), event.Message, metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the connection pool is owned by the caller
func (l *DBLogger) Close() error {
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
