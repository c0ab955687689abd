package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/platinummonkey/crmcore/pkg/credits"
	"github.com/platinummonkey/crmcore/pkg/httputil"
	"github.com/platinummonkey/crmcore/pkg/middleware"
	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/rbac"
)

// UsageResponse is the current period's usage plus recent history
type UsageResponse struct {
	Current credits.UsageRecord   `json:"current"`
	History []credits.UsageRecord `json:"history"`
}

// getBalance returns the tenant's credit balance
func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authorize(w, r, rbac.ResourceCredits, rbac.ActionRead)
	if !ok {
		return
	}

	balance, err := s.engine.CheckBalance(r.Context(), ac.TenantID())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, balance)
}

// listLedger returns wallet transactions, newest first
func (s *Server) listLedger(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authorize(w, r, rbac.ResourceCredits, rbac.ActionRead)
	if !ok {
		return
	}
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 50)
	if !ok {
		return
	}

	txs, err := s.ledger.ListTransactions(r.Context(), ac.TenantID(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, txs)
}

// getUsage returns usage for ?period=YYYY-MM (default: current month) and the last
// ?months=N periods
func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	ac, ok := s.authorize(w, r, rbac.ResourceCredits, rbac.ActionRead)
	if !ok {
		return
	}

	period := credits.PeriodOf(time.Now())
	if raw := r.URL.Query().Get("period"); raw != "" {
		t, err := time.Parse("2006-01", raw)
		if err != nil {
			httputil.WriteBadRequest(w, fmt.Sprintf("invalid period %q, want YYYY-MM", raw))
			return
		}
		period = credits.PeriodOf(t)
	}
	months, ok := httputil.ParseQueryIntOrError(w, r, "months", 12)
	if !ok {
		return
	}

	current, err := s.ledger.GetUsage(r.Context(), ac.TenantID(), period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history, err := s.ledger.UsageHistory(r.Context(), ac.TenantID(), months)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, UsageResponse{Current: current, History: history})
}

// authorize runs the base permission check for the caller attached by the tenant
// middleware. It writes the response and returns false on denial.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, resource rbac.Resource, action rbac.Action) (auth.AuthContext, bool) {
	ac, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteForbidden(w, "no tenant membership in request")
		return ac, false
	}
	if err := s.engine.Authorize(r.Context(), ac, resource, action); err != nil {
		httputil.WritePolicyError(w, err)
		return ac, false
	}
	return ac, true
}

// writeError logs unexpected errors before mapping them to a response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if httputil.StatusForError(err) == http.StatusInternalServerError {
		observability.FromContextOr(r.Context(), s.logger).WithError(err).
			WithField("path", r.URL.Path).Error("Request failed")
	}
	httputil.WritePolicyError(w, err)
}
