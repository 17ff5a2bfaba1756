package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/rowguard/pkg/httputil"
	"github.com/platinummonkey/rowguard/pkg/observability"
)

// Limiter decides whether the caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const (
	maxTrackedClients = 100000
	idleBucketTTL     = 5 * time.Minute
)

// LocalLimiter is an in-process token bucket per key. Idle buckets are
// evicted after five minutes.
type LocalLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *lru.LRU[string, *rate.Limiter]
}

// NewLocalLimiter creates a limiter refilling perSecond tokens up to burst
func NewLocalLimiter(perSecond float64, burst int) *LocalLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LocalLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: lru.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, idleBucketTTL),
	}
}

// Allow takes a token from key's bucket
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	lim, ok := l.buckets.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// re-adding refreshes the idle TTL
	l.buckets.Add(key, lim)
	return lim.Allow(), nil
}

// RateLimitMiddleware provides HTTP rate limiting
type RateLimitMiddleware struct {
	limiter    Limiter
	retryAfter time.Duration
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, retryAfter: time.Second}
}

// Handler wraps an HTTP handler with rate limiting. It must run after the
// session middleware so that signed-in callers are keyed by user.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + httputil.ClientIP(r)
		if sess := SessionFromContext(r.Context()); sess != nil {
			key = "user:" + sess.UserID
		}

		allowed, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			// Fail open: allow request on limiter error
			observability.FromContext(r.Context()).WithError(err).Warn("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", m.retryAfter.Seconds()))
			httputil.WriteTooManyRequests(w, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
