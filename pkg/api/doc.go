// Package api provides the HTTP server for rowguard.
//
// # Overview
//
// The API exposes schema-driven tables through permission-checked record
// endpoints, plus the session, organization and invitation endpoints that
// establish who the caller is and which organization they act in.
//
// # Architecture
//
// The server is built on gorilla/mux and organized into handler groups:
//
//   - Health: liveness and readiness probes
//   - Sessions: current session, sign out, active organization
//   - Auth: email verification through one-time tokens
//   - Organizations: organizations, members and invitations
//   - Records: single-record CRUD and transactional batches per table
//
// Every /api route runs behind the session middleware, which resolves an
// optional bearer token, and the per-principal rate limiter. Handlers never
// decide authorization themselves; they pass the session to the service
// layer and translate its typed errors with httputil.WriteAppError.
//
// # Status codes
//
//	401  no or invalid session where one is required
//	403  authenticated but denied (role, field, ownership, organization)
//	404  unknown table, or a row outside the caller's scope
//	400  invalid body or value
//	409  uniqueness or state conflict
//	410  expired invitation or token
//	429  rate limit or oversized batch
//
// # Usage
//
//	server := api.NewServer(api.Dependencies{
//		Sessions:      sessions,
//		Tokens:        tokens,
//		Users:         users,
//		Organizations: orgService,
//		Records:       recordService,
//		Batches:       coordinator,
//		Logger:        logger,
//	})
//	http.ListenAndServe(":8080", server.Handler())
package api
