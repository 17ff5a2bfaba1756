// Package auth manages sessions, one-time tokens and users.
//
// # Sessions
//
// A session is created for a user and identified by an opaque bearer
// token:
//
//	rg_<base64url(32 random bytes)>
//
// Only the SHA-256 hash of the token is stored. The session carries the
// caller's active organization, which is the only request-scoped state the
// role resolver depends on:
//
//	token, sess, err := sessions.Create(ctx, userID, cfg.Auth.SessionTTL)
//	sess, err = sessions.Lookup(ctx, token)
//	sess, err = sessions.SetActiveOrganization(ctx, sess, orgID)
//
// Lookups are served from a two-tier cache: an in-process expirable LRU in
// front of an optional shared Redis. Both tiers are invalidated when a
// session is revoked or its active organization changes, and the LRU TTL is
// kept short so that other instances converge quickly.
//
// # One-time tokens
//
// Email verification and password reset tokens share the session token
// format. A token is consumed exactly once:
//
//	unknown token  -> not found
//	already used   -> conflict
//	past expiry    -> gone
//
// Consuming an email verification token marks the user verified in the
// same transaction.
package auth
