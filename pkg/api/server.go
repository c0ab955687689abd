package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/crmcore/pkg/audit"
	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/credits"
	"github.com/platinummonkey/crmcore/pkg/middleware"
	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/orgs"
	"github.com/platinummonkey/crmcore/pkg/rbac"
)

// PolicyEngine is the part of policy.Engine the handlers call
type PolicyEngine interface {
	Authorize(ctx context.Context, ac auth.AuthContext, resource rbac.Resource, action rbac.Action) error
	RequireQuota(ctx context.Context, tenantID string, feature billing.FeatureKey) error
	CheckPlanQuota(ctx context.Context, tenantID string, feature billing.FeatureKey) (*orgs.QuotaStatus, error)
	CheckBalance(ctx context.Context, tenantID string) (credits.Balance, error)
}

// CreditLedger reads wallet history and usage
type CreditLedger interface {
	ListTransactions(ctx context.Context, tenantID string, limit int) ([]credits.Transaction, error)
	GetUsage(ctx context.Context, tenantID string, period credits.Period) (credits.UsageRecord, error)
	UsageHistory(ctx context.Context, tenantID string, limit int) ([]credits.UsageRecord, error)
}

// QuotaReporter reports usage of every quota-gated feature
type QuotaReporter interface {
	CheckAllQuotas(ctx context.Context, tenantID string) ([]orgs.QuotaStatus, error)
}

// TenantService manages tenants and their members
type TenantService interface {
	middleware.MembershipValidator
	CreateTenant(ctx context.Context, req orgs.CreateTenantRequest, ownerUserID string) (*orgs.Tenant, *orgs.Membership, error)
	InviteMember(ctx context.Context, ac auth.AuthContext, req orgs.InviteMemberRequest) (*orgs.Membership, error)
	AcceptInvitation(ctx context.Context, token, userID string) (*orgs.Membership, error)
	UpdateMemberRole(ctx context.Context, ac auth.AuthContext, targetUserID string, role auth.Role) (*orgs.Membership, error)
	RemoveMember(ctx context.Context, ac auth.AuthContext, targetUserID string) error
	RevokeInvitation(ctx context.Context, ac auth.AuthContext, invitationID string) error
	ListMembers(ctx context.Context, ac auth.AuthContext) ([]*orgs.Membership, error)
	ListInvitations(ctx context.Context, ac auth.AuthContext) ([]*orgs.Membership, error)
}

// Config wires a Server
type Config struct {
	Engine  PolicyEngine
	Ledger  CreditLedger
	Quotas  QuotaReporter
	Tenants TenantService
	Audit   audit.Logger
	Limiter *middleware.TenantRateLimiter
	Logger  *observability.Logger
}

// Server is the HTTP admin API over the policy engine
type Server struct {
	engine  PolicyEngine
	ledger  CreditLedger
	quotas  QuotaReporter
	tenants TenantService
	audit   audit.Logger
	limiter *middleware.TenantRateLimiter
	logger  *observability.Logger
}

// NewServer creates an API server
func NewServer(cfg Config) *Server {
	return &Server{
		engine:  cfg.Engine,
		ledger:  cfg.Ledger,
		quotas:  cfg.Quotas,
		tenants: cfg.Tenants,
		audit:   cfg.Audit,
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
	}
}

// RegisterRoutes registers the API routes on router
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.Use(middleware.RequestID)

	router.Handle("/tenants", middleware.RequireUser(http.HandlerFunc(s.createTenant))).Methods("POST")
	router.Handle("/invitations/{token}/accept", middleware.RequireUser(http.HandlerFunc(s.acceptInvitation))).Methods("POST")

	tenant := router.PathPrefix("/tenants/{tenant}").Subrouter()
	tenant.Use(middleware.TenantContextMiddleware(s.tenants, s.audit, s.logger))
	if s.limiter != nil {
		tenant.Use(s.limiter.Middleware)
	}

	// Credits
	tenant.HandleFunc("/balance", s.getBalance).Methods("GET")
	tenant.HandleFunc("/ledger", s.listLedger).Methods("GET")
	tenant.HandleFunc("/usage", s.getUsage).Methods("GET")

	// Quotas
	tenant.HandleFunc("/quotas", s.listQuotas).Methods("GET")
	tenant.HandleFunc("/quotas/{feature}", s.getQuota).Methods("GET")

	// Members
	tenant.HandleFunc("/members", s.listMembers).Methods("GET")
	tenant.HandleFunc("/members/invitations", s.inviteMember).Methods("POST")
	tenant.HandleFunc("/members/invitations", s.listInvitations).Methods("GET")
	tenant.HandleFunc("/members/invitations/{id}", s.revokeInvitation).Methods("DELETE")
	tenant.HandleFunc("/members/{user}", s.updateMember).Methods("PATCH")
	tenant.HandleFunc("/members/{user}", s.removeMember).Methods("DELETE")
}
