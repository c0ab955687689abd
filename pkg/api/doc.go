// Package api exposes a thin HTTP admin API over the policy engine and the tenant,
// membership and credit services.
//
// # Routes
//
//	POST   /tenants                                  create a tenant owned by the caller
//	POST   /invitations/{token}/accept               accept an invitation
//	GET    /tenants/{tenant}/balance                 credit balance
//	GET    /tenants/{tenant}/ledger?limit=N          wallet transactions, newest first
//	GET    /tenants/{tenant}/usage?period=YYYY-MM    usage for a period plus history
//	GET    /tenants/{tenant}/quotas                  usage of every quota-gated feature
//	GET    /tenants/{tenant}/quotas/{feature}        usage of one feature
//	GET    /tenants/{tenant}/members                 accepted members
//	POST   /tenants/{tenant}/members/invitations     invite a member
//	GET    /tenants/{tenant}/members/invitations     pending invitations
//	DELETE /tenants/{tenant}/members/invitations/{id}
//	PATCH  /tenants/{tenant}/members/{user}          change a member's role
//	DELETE /tenants/{tenant}/members/{user}          remove a member
//
// Every route requires the X-User-ID header. Routes under /tenants/{tenant} also require
// an accepted membership in that tenant.
package api
