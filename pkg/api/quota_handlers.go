package api

import (
	"net/http"

	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/httputil"
	"github.com/platinummonkey/crmcore/pkg/orgs"
	"github.com/platinummonkey/crmcore/pkg/rbac"
)

// QuotaResponse adds the derived fields a client needs to render a usage meter
type QuotaResponse struct {
	orgs.QuotaStatus
	Remaining int64 `json:"remaining"`
	Allowed   bool  `json:"allowed"`
}

func newQuotaResponse(status orgs.QuotaStatus) QuotaResponse {
	return QuotaResponse{QuotaStatus: status, Remaining: status.Remaining(), Allowed: status.Allowed()}
}

// listQuotas returns usage of every quota-gated feature
func (s *Server) listQuotas(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authorize(w, r, rbac.ResourceSettings, rbac.ActionRead)
	if !ok {
		return
	}

	statuses, err := s.quotas.CheckAllQuotas(r.Context(), ac.TenantID())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]QuotaResponse, 0, len(statuses))
	for _, status := range statuses {
		resp = append(resp, newQuotaResponse(status))
	}
	_ = httputil.WriteSuccess(w, resp)
}

// getQuota returns usage of a single feature
func (s *Server) getQuota(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authorize(w, r, rbac.ResourceSettings, rbac.ActionRead)
	if !ok {
		return
	}
	feature, ok := httputil.ParsePathStringOrError(w, r, "feature")
	if !ok {
		return
	}

	status, err := s.engine.CheckPlanQuota(r.Context(), ac.TenantID(), billing.FeatureKey(feature))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, newQuotaResponse(*status))
}
