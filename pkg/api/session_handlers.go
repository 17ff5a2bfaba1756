package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/rowguard/pkg/auth"
	"github.com/platinummonkey/rowguard/pkg/httputil"
	"github.com/platinummonkey/rowguard/pkg/middleware"
)

// SessionResponse describes the caller's session and account
type SessionResponse struct {
	Session *auth.Session `json:"session"`
	User    *auth.User    `json:"user,omitempty"`
}

// ActiveOrganizationRequest switches the organization a session acts in.
// A null or missing organizationId clears it.
type ActiveOrganizationRequest struct {
	OrganizationID *string `json:"organizationId"`
}

// VerifyEmailRequest carries an email verification token
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

func (s *Server) registerSessionRoutes(router *mux.Router) {
	router.HandleFunc("/session", s.getSession).Methods("GET")
	router.HandleFunc("/session", s.deleteSession).Methods("DELETE")
	router.HandleFunc("/session/active-organization", s.setActiveOrganization).Methods("PUT")
}

// registerAuthRoutes holds the routes that authenticate by their own token
func (s *Server) registerAuthRoutes(router *mux.Router) {
	router.HandleFunc("/auth/verify-email", s.verifyEmail).Methods("POST")
}

// getSession handles GET /api/session
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	user, err := s.deps.Users.Find(r.Context(), sess.UserID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, SessionResponse{Session: sess, User: user})
}

// deleteSession handles DELETE /api/session
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	if err := s.deps.Sessions.Revoke(r.Context(), sess); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// setActiveOrganization handles PUT /api/session/active-organization
func (s *Server) setActiveOrganization(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	var req ActiveOrganizationRequest
	if !s.decode(w, r, &req) {
		return
	}

	orgID := ""
	if req.OrganizationID != nil {
		orgID = *req.OrganizationID
	}
	updated, err := s.deps.Sessions.SetActiveOrganization(r.Context(), sess, orgID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, SessionResponse{Session: updated})
}

// verifyEmail handles POST /api/auth/verify-email. It needs no session:
// possession of the token is the credential.
func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !s.decode(w, r, &req) {
		return
	}

	tok, err := s.deps.Tokens.Consume(r.Context(), auth.TokenKindEmailVerification, req.Token)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"verified": true,
		"userId":   tok.UserID,
	})
}
