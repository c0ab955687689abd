// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/crmcore/pkg/contextkeys"
//	ctx = contextkeys.WithAuth(ctx, authCtx)
//	authCtx, ok := contextkeys.GetAuth(ctx)
package contextkeys

import (
	"context"

	"github.com/platinummonkey/crmcore/pkg/auth"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains auth.AuthContext
	// Set by: middleware.TenantContextMiddleware (pkg/middleware/tenant.go)
	// Required by: every tenant-scoped endpoint, permission and quota middleware
	// Type: auth.AuthContext
	AuthKey Key = "auth_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated (not yet tenant-validated) user ID
	// Set by: middleware.TenantContextMiddleware, from the upstream identity header
	// Used by: Logger, invitation acceptance
	// Type: string
	UserIDKey Key = "user_id"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx auth.AuthContext) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// GetAuth retrieves the authentication context. The second value is false when no
// validated membership has been attached.
func GetAuth(ctx context.Context) (auth.AuthContext, bool) {
	authCtx, ok := ctx.Value(AuthKey).(auth.AuthContext)
	if !ok || authCtx.IsZero() {
		return auth.AuthContext{}, false
	}
	return authCtx, true
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
