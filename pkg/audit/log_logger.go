package audit

import (
	"context"

	"github.com/platinummonkey/rowguard/pkg/observability"
)

// LogLogger writes audit events as structured log lines
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates a log-backed audit logger
func NewLogLogger(logger *observability.Logger) *LogLogger {
	return &LogLogger{logger: logger.WithField("component", "audit")}
}

// Log writes the event; denials are logged at warn level
func (l *LogLogger) Log(ctx context.Context, event *Event) error {
	entry := l.logger.WithFields(map[string]interface{}{
		"event_type":    event.EventType,
		"status":        event.Status,
		"user_id":       event.UserID,
		"organization":  event.OrganizationID,
		"role":          event.Role,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
		"request_id":    event.RequestID,
	})
	if len(event.Metadata) > 0 {
		entry = entry.WithFields(event.Metadata)
	}

	if event.Status == EventStatusDenied {
		entry.Warn(event.Message)
	} else {
		entry.Info(event.Message)
	}
	return nil
}

// Close is a no-op
func (l *LogLogger) Close() error {
	return nil
}
