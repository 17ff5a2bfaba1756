package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/rowguard/pkg/observability"
)

const sessionKeyPrefix = "rowguard:session:"

// SessionCache keeps recently used sessions keyed by token hash. L1 is an
// in-process LRU whose entries expire after a short TTL; L2 is an optional
// Redis shared between instances.
type SessionCache struct {
	local   *lru.LRU[string, *Session]
	redis   *redis.Client
	metrics *observability.Metrics
}

// NewSessionCache creates a session cache. redisClient and metrics may be
// nil.
func NewSessionCache(maxEntries int, ttl time.Duration, redisClient *redis.Client, metrics *observability.Metrics) *SessionCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &SessionCache{
		local:   lru.NewLRU[string, *Session](maxEntries, nil, ttl),
		redis:   redisClient,
		metrics: metrics,
	}
}

// Get returns a cached session. Redis failures are logged and treated as a
// miss so that the database stays authoritative.
func (c *SessionCache) Get(ctx context.Context, tokenHash string) (*Session, bool) {
	if sess, ok := c.local.Get(tokenHash); ok {
		c.observe("l1", "hit")
		copied := *sess
		return &copied, true
	}
	c.observe("l1", "miss")

	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, sessionKeyPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		c.observe("l2", "miss")
		return nil, false
	}
	if err != nil {
		c.observe("l2", "error")
		observability.FromContext(ctx).WithError(err).Warn("session cache read failed")
		return nil, false
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		c.observe("l2", "error")
		return nil, false
	}
	// TokenHash is not serialized
	sess.TokenHash = tokenHash
	c.observe("l2", "hit")

	c.local.Add(tokenHash, &sess)
	copied := sess
	return &copied, true
}

// Set caches sess until its expiry, bounded by the L1 TTL locally
func (c *SessionCache) Set(ctx context.Context, sess *Session) {
	copied := *sess
	c.local.Add(sess.TokenHash, &copied)

	if c.redis == nil {
		return
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, sessionKeyPrefix+sess.TokenHash, data, ttl).Err(); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("session cache write failed")
	}
}

// Invalidate removes a session from both tiers
func (c *SessionCache) Invalidate(ctx context.Context, tokenHash string) error {
	c.local.Remove(tokenHash)
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, sessionKeyPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// Len returns the number of sessions held in L1
func (c *SessionCache) Len() int {
	return c.local.Len()
}

func (c *SessionCache) observe(tier, result string) {
	if c.metrics != nil {
		c.metrics.SessionCacheLookups.WithLabelValues(tier, result).Inc()
	}
}
