package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/httputil"
	"github.com/platinummonkey/crmcore/pkg/rbac"
)

// Authorizer is the subset of the policy engine used by route guards
type Authorizer interface {
	Authorize(ctx context.Context, ac auth.AuthContext, resource rbac.Resource, action rbac.Action) error
	RequireQuota(ctx context.Context, tenantID string, feature billing.FeatureKey) error
}

// RequirePermission rejects requests whose role may not perform action on resource.
// It must run after TenantContextMiddleware.
func RequirePermission(authorizer Authorizer, resource rbac.Resource, action rbac.Action) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := GetAuthContext(r)
			if !ok {
				httputil.WriteForbidden(w, "no tenant membership in request")
				return
			}
			if err := authorizer.Authorize(r.Context(), ac, resource, action); err != nil {
				httputil.WritePolicyError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireQuota rejects requests when the tenant is at its plan ceiling for feature.
// It must run after TenantContextMiddleware.
func RequireQuota(authorizer Authorizer, feature billing.FeatureKey) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := GetAuthContext(r)
			if !ok {
				httputil.WriteForbidden(w, "no tenant membership in request")
				return
			}
			if err := authorizer.RequireQuota(r.Context(), ac.TenantID(), feature); err != nil {
				httputil.WritePolicyError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
