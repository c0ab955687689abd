// Package middleware provides the HTTP guards for tenant-scoped routes.
//
// Ordering matters. The tenant context has to be attached before any permission, quota
// or rate limit guard runs:
//
//	router.Use(middleware.RequestID)
//	tenant := router.PathPrefix("/tenants/{tenant}").Subrouter()
//	tenant.Use(middleware.TenantContextMiddleware(orgService, auditLogger, logger))
//	tenant.Use(limiter.Middleware)
//	tenant.Handle("/contacts", middleware.RequirePermission(engine, rbac.ResourceContact, rbac.ActionCreate)(
//	    middleware.RequireQuota(engine, billing.FeatureMaxContacts)(createContact)))
//
// The user id comes from the X-User-ID header, set by the authentication proxy in front
// of the service. This package never trusts a tenant id from the client: the tenant in
// the path is only used to look up the caller's accepted membership.
package middleware
