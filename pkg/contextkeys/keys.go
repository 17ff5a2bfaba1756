// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that key
// usage stays discoverable and collision free.
//
//	import "github.com/platinummonkey/rowguard/pkg/contextkeys"
//	ctx = contextkeys.WithSession(ctx, sess)
//	sess, _ := ctx.Value(contextkeys.SessionKey).(*auth.Session)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *auth.Session
	// Set by: middleware.SessionMiddleware (pkg/middleware/auth.go)
	// Required by: every endpoint that resolves a role
	SessionKey Key = "session"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: Session middleware after the bearer token is resolved
	// Used by: Logger, audit trail, rate limiter
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	LoggerKey Key = "logger"

	// RequestStartTimeKey contains request start timestamp
	// Set by: httputil.LoggingMiddleware
	RequestStartTimeKey Key = "request_start_time"
)

// WithSession adds the resolved session to the context
func WithSession(ctx context.Context, session interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithRequestStartTime adds request start time to the context
func WithRequestStartTime(ctx context.Context, startTime interface{}) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, startTime)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
