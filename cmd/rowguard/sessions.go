package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/rowguard/pkg/audit"
	"github.com/platinummonkey/rowguard/pkg/auth"
	"github.com/platinummonkey/rowguard/pkg/rbac"
)

var (
	sessionTTL time.Duration
	sessionOrg string
	tokenKind  string
	tokenTTL   time.Duration
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage bearer sessions",
}

// Sessions are minted here; the HTTP API only resolves them
var sessionsIssueCmd = &cobra.Command{
	Use:   "issue USER_ID",
	Short: "Issue a bearer session for a user and print its token",
	Args:  cobra.ExactArgs(1),
	RunE: dbCommand(func(ctx context.Context, e *env, db *sql.DB, args []string) error {
		ttl := sessionTTL
		if ttl == 0 {
			ttl = e.cfg.Auth.SessionTTL
		}
		auditLogger := audit.NewLogLogger(e.logger.WithField("component", "audit"))
		store := rbac.NewStore(db)
		cache := auth.NewSessionCache(1, time.Second, nil, nil)
		sessions := auth.NewSessionManager(db, store, cache, auditLogger)

		token, sess, err := sessions.Create(ctx, args[0], ttl)
		if err != nil {
			return err
		}
		if sessionOrg != "" {
			if _, err := sessions.SetActiveOrganization(ctx, sess, sessionOrg); err != nil {
				return err
			}
		}
		fmt.Println(token)
		return nil
	}),
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage one-time tokens",
}

var tokensIssueCmd = &cobra.Command{
	Use:   "issue USER_ID",
	Short: "Issue a one-time token and print it",
	Args:  cobra.ExactArgs(1),
	RunE: dbCommand(func(ctx context.Context, e *env, db *sql.DB, args []string) error {
		kind := auth.TokenKind(tokenKind)
		if !kind.Valid() {
			return fmt.Errorf("unknown token kind %q", tokenKind)
		}
		ttl := tokenTTL
		if ttl == 0 {
			ttl = e.cfg.Auth.VerificationTTL
			if kind == auth.TokenKindPasswordReset {
				ttl = e.cfg.Auth.ResetTTL
			}
		}
		tokens := auth.NewTokenService(db, nil, audit.NewLogLogger(e.logger.WithField("component", "audit")))
		token, _, err := tokens.Issue(ctx, kind, args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}),
}

func init() {
	sessionsCmd.AddCommand(sessionsIssueCmd)
	sessionsIssueCmd.Flags().DurationVar(&sessionTTL, "ttl", 0, "Session lifetime (defaults to ROWGUARD_SESSION_TTL)")
	sessionsIssueCmd.Flags().StringVar(&sessionOrg, "organization", "", "Active organization for the new session")

	tokensCmd.AddCommand(tokensIssueCmd)
	tokensIssueCmd.Flags().StringVar(&tokenKind, "kind", string(auth.TokenKindEmailVerification), "Token kind: email_verification or password_reset")
	tokensIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to the configured lifetime for the kind)")
}
