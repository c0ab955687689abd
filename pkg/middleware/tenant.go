package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/crmcore/pkg/async"
	"github.com/platinummonkey/crmcore/pkg/audit"
	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/platinummonkey/crmcore/pkg/contextkeys"
	"github.com/platinummonkey/crmcore/pkg/httputil"
	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/orgs"
)

const (
	// UserIDHeader carries the user id asserted by the upstream authentication proxy
	UserIDHeader = "X-User-ID"

	// RequestIDHeader carries the request id; one is generated when absent
	RequestIDHeader = "X-Request-ID"

	// TenantVar is the route variable holding the tenant id or slug
	TenantVar = "tenant"
)

// MembershipValidator resolves a user's accepted membership in a tenant
type MembershipValidator interface {
	ValidateMembership(ctx context.Context, userID, tenantRef string) (auth.AuthContext, error)
}

// RequestID attaches the incoming X-Request-ID, or a new UUID, to the request context
// and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(contextkeys.WithRequestID(r.Context(), requestID)))
	})
}

// RequireUser rejects requests without an authenticated user id with 401 and attaches
// the id to the context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextkeys.WithUserID(r.Context(), userID)))
	})
}

// TenantContextMiddleware validates that the authenticated user is an accepted member of
// the tenant named by the {tenant} route variable and attaches the resulting
// auth.AuthContext. Requests from non-members get 403 and are audited.
func TenantContextMiddleware(validator MembershipValidator, auditor audit.Logger, logger *observability.Logger) mux.MiddlewareFunc {
	if auditor == nil {
		auditor = audit.NoopLogger{}
	}
	return func(next http.Handler) http.Handler {
		return RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := contextkeys.GetUserID(ctx)

			tenantRef := mux.Vars(r)[TenantVar]
			if tenantRef == "" {
				httputil.WriteBadRequest(w, "missing tenant")
				return
			}

			ac, err := validator.ValidateMembership(ctx, userID, tenantRef)
			if err != nil {
				if errors.Is(err, orgs.ErrMembershipNotFound) || errors.Is(err, orgs.ErrTenantNotFound) {
					event := audit.NewEvent(ctx, audit.EventTypeAuthzMembershipDenied, audit.EventStatusDenied)
					event.ResourceID = tenantRef
					event.Message = "user is not a member of this tenant"
					async.SafeGo(context.WithoutCancel(ctx), 5*time.Second, "audit membership denial", func(ctx context.Context) error {
						return auditor.Log(ctx, event)
					})
					httputil.WriteForbidden(w, "not a member of this tenant")
					return
				}
				observability.FromContextOr(ctx, logger).WithError(err).
					WithField("tenant", tenantRef).Error("Failed to validate membership")
				httputil.WritePolicyError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextkeys.WithAuth(ctx, ac)))
		}))
	}
}

// GetAuthContext returns the validated membership attached by TenantContextMiddleware
func GetAuthContext(r *http.Request) (auth.AuthContext, bool) {
	return contextkeys.GetAuth(r.Context())
}
