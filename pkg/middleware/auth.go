package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/rowguard/pkg/auth"
	"github.com/platinummonkey/rowguard/pkg/contextkeys"
	"github.com/platinummonkey/rowguard/pkg/httputil"
)

// SessionLookup resolves a bearer token to a live session
type SessionLookup interface {
	Lookup(ctx context.Context, token string) (*auth.Session, error)
}

// SessionMiddleware resolves the bearer session of each request
type SessionMiddleware struct {
	sessions SessionLookup
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(sessions SessionLookup) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

// Handler wraps an HTTP handler with session resolution
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.WriteUnauthorized(w, "Invalid authorization header format")
			return
		}

		sess, err := m.sessions.Lookup(r.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}

		ctx := contextkeys.WithSession(r.Context(), sess)
		ctx = contextkeys.WithUserID(ctx, sess.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession rejects anonymous requests with 401
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromContext(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext returns the request's session, or nil when anonymous
func SessionFromContext(ctx context.Context) *auth.Session {
	sess, _ := ctx.Value(contextkeys.SessionKey).(*auth.Session)
	return sess
}
