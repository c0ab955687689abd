// Package httputil provides JSON response helpers, request parsing, and the mapping
// from policy and domain errors to HTTP status codes.
//
// Handlers return errors from the policy engine unchanged and let WritePolicyError pick
// the status:
//
//	if err := engine.AuthorizeCreate(ctx, ac, rbac.ResourceContact); err != nil {
//	    httputil.WritePolicyError(w, err)
//	    return
//	}
//
// Authorization, ownership, member-policy and quota errors are 403. Quota errors also
// carry the resource, current count and limit so a client can prompt for an upgrade.
// Missing tenants, memberships, invitations and wallets are 404.
package httputil
