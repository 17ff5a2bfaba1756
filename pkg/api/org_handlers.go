package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/rowguard/pkg/httputil"
	"github.com/platinummonkey/rowguard/pkg/middleware"
	"github.com/platinummonkey/rowguard/pkg/orgs"
)

func (s *Server) registerOrganizationRoutes(router *mux.Router) {
	router.HandleFunc("/organizations", s.createOrganization).Methods("POST")
	router.HandleFunc("/organizations", s.listOrganizations).Methods("GET")
	router.HandleFunc("/organizations/{orgID}", s.getOrganization).Methods("GET")

	// Members
	router.HandleFunc("/organizations/{orgID}/members", s.listMembers).Methods("GET")
	router.HandleFunc("/organizations/{orgID}/members/{userID}", s.updateMember).Methods("PATCH")
	router.HandleFunc("/organizations/{orgID}/members/{userID}", s.removeMember).Methods("DELETE")

	// Invitations
	router.HandleFunc("/organizations/{orgID}/invitations", s.createInvitation).Methods("POST")
	router.HandleFunc("/organizations/{orgID}/invitations", s.listInvitations).Methods("GET")
	router.HandleFunc("/invitations/{invitationID}", s.getInvitation).Methods("GET")
	router.HandleFunc("/invitations/{invitationID}/accept", s.acceptInvitation).Methods("POST")
	router.HandleFunc("/invitations/{invitationID}/reject", s.rejectInvitation).Methods("POST")
	router.HandleFunc("/invitations/{invitationID}/cancel", s.cancelInvitation).Methods("POST")
}

// createOrganization handles POST /api/organizations
func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	var req orgs.CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := s.deps.Organizations.CreateOrganization(r.Context(), sess.UserID, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, org)
}

// listOrganizations handles GET /api/organizations
func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	list, err := s.deps.Organizations.ListForUser(r.Context(), sess.UserID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"organizations": list})
}

// getOrganization handles GET /api/organizations/{orgID}
func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	org, err := s.deps.Organizations.GetForMember(r.Context(), sess.UserID, httputil.PathVar(r, "orgID"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// listMembers handles GET /api/organizations/{orgID}/members
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	members, err := s.deps.Organizations.ListMembers(r.Context(), sess.UserID, httputil.PathVar(r, "orgID"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

// updateMember handles PATCH /api/organizations/{orgID}/members/{userID}
func (s *Server) updateMember(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	var req orgs.UpdateMemberRequest
	if !s.decode(w, r, &req) {
		return
	}

	member, err := s.deps.Organizations.UpdateMemberRole(r.Context(), sess.UserID,
		httputil.PathVar(r, "orgID"), httputil.PathVar(r, "userID"), req.Role)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

// removeMember handles DELETE /api/organizations/{orgID}/members/{userID}
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	err := s.deps.Organizations.RemoveMember(r.Context(), sess.UserID,
		httputil.PathVar(r, "orgID"), httputil.PathVar(r, "userID"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// createInvitation handles POST /api/organizations/{orgID}/invitations
func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	var req orgs.InviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv, err := s.deps.Organizations.Invite(r.Context(), sess.UserID, httputil.PathVar(r, "orgID"), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, inv)
}

// listInvitations handles GET /api/organizations/{orgID}/invitations
func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	list, err := s.deps.Organizations.ListInvitations(r.Context(), sess.UserID, httputil.PathVar(r, "orgID"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"invitations": list})
}

// getInvitation handles GET /api/invitations/{invitationID}
func (s *Server) getInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	inv, err := s.deps.Organizations.GetInvitation(r.Context(), actor, httputil.PathVar(r, "invitationID"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// acceptInvitation handles POST /api/invitations/{invitationID}/accept
func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	member, err := s.deps.Organizations.Accept(r.Context(), actor, httputil.PathVar(r, "invitationID"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

// rejectInvitation handles POST /api/invitations/{invitationID}/reject
func (s *Server) rejectInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	inv, err := s.deps.Organizations.Reject(r.Context(), actor, httputil.PathVar(r, "invitationID"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// cancelInvitation handles POST /api/invitations/{invitationID}/cancel
func (s *Server) cancelInvitation(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())

	inv, err := s.deps.Organizations.Cancel(r.Context(), sess.UserID, httputil.PathVar(r, "invitationID"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// actor resolves the session user's email, which is how invitations are
// addressed
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (orgs.Actor, bool) {
	sess := middleware.SessionFromContext(r.Context())
	user, err := s.deps.Users.Find(r.Context(), sess.UserID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return orgs.Actor{}, false
	}
	return orgs.Actor{UserID: user.ID, Email: user.Email}, true
}
