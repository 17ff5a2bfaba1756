package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/rowguard/pkg/contextkeys"
)

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// NewEvent builds an event stamped with the current time and request id
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		UserID:    contextkeys.GetUserID(ctx),
		RequestID: contextkeys.GetRequestID(ctx),
	}
}

// Nop returns a logger that discards events
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Log(context.Context, *Event) error { return nil }
func (nopLogger) Close() error                      { return nil }
