// Package middleware provides HTTP middleware for session authentication
// and rate limiting.
//
// # Middleware Components
//
// SessionMiddleware: Bearer session resolution
//
//	router.Use(middleware.NewSessionMiddleware(sessions).Handler)
//	// Authorization: Bearer rg_... -> *auth.Session in the request context
//
// Requests without an Authorization header continue anonymously; the role
// resolver decides whether anonymous access is allowed. A header carrying
// an invalid, expired or revoked token is rejected with 401.
//
// RateLimitMiddleware: per-principal token bucket
//
//	limiter := middleware.NewLocalLimiter(50, 100)            // in-process
//	limiter := middleware.NewRedisLimiter(client, 3000, time.Minute) // shared
//	router.Use(middleware.NewRateLimitMiddleware(limiter).Handler)
//
// Signed-in callers are keyed by user id, anonymous callers by client IP.
// Redis errors fail open.
//
// # Related Packages
//
//   - pkg/auth: Session lookup
//   - pkg/httputil: Error responses
package middleware
