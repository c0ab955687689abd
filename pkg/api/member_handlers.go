package api

import (
	"net/http"

	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/platinummonkey/crmcore/pkg/contextkeys"
	"github.com/platinummonkey/crmcore/pkg/httputil"
	"github.com/platinummonkey/crmcore/pkg/middleware"
	"github.com/platinummonkey/crmcore/pkg/orgs"
)

// InvitationResponse returns the invite token to the inviter. Delivering it to the
// invitee is left to the caller.
type InvitationResponse struct {
	*orgs.Membership
	Token string `json:"token"`
}

// TenantResponse is the result of creating a tenant
type TenantResponse struct {
	Tenant     *orgs.Tenant     `json:"tenant"`
	Membership *orgs.Membership `json:"membership"`
}

// createTenant creates a tenant owned by the authenticated user
func (s *Server) createTenant(w http.ResponseWriter, r *http.Request) {
	var req orgs.CreateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	tenant, owner, err := s.tenants.CreateTenant(r.Context(), req, contextkeys.GetUserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, TenantResponse{Tenant: tenant, Membership: owner})
}

// acceptInvitation joins the authenticated user to the invitation's tenant
func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}

	m, err := s.tenants.AcceptInvitation(r.Context(), token, contextkeys.GetUserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, m)
}

// listMembers returns accepted members
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteForbidden(w, "no tenant membership in request")
		return
	}

	members, err := s.tenants.ListMembers(r.Context(), ac)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, members)
}

// listInvitations returns pending invitations
func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteForbidden(w, "no tenant membership in request")
		return
	}

	invitations, err := s.tenants.ListInvitations(r.Context(), ac)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, invitations)
}

// inviteMember creates or refreshes an invitation
func (s *Server) inviteMember(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteForbidden(w, "no tenant membership in request")
		return
	}
	var req orgs.InviteMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, err := s.tenants.InviteMember(r.Context(), ac, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, InvitationResponse{Membership: m, Token: m.InviteToken})
}

// revokeInvitation deletes a pending invitation
func (s *Server) revokeInvitation(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteForbidden(w, "no tenant membership in request")
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.tenants.RevokeInvitation(r.Context(), ac, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// updateMember changes a member's role
func (s *Server) updateMember(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteForbidden(w, "no tenant membership in request")
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "user")
	if !ok {
		return
	}
	var req orgs.UpdateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := auth.ParseRole(string(req.Role))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	m, err := s.tenants.UpdateMemberRole(r.Context(), ac, userID, role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, m)
}

// removeMember removes a member, or lets a member leave when the target is the caller
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteForbidden(w, "no tenant membership in request")
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "user")
	if !ok {
		return
	}

	if err := s.tenants.RemoveMember(r.Context(), ac, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
