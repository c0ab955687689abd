// Package orgs manages tenants, memberships and plan quotas.
//
// # Tenants and memberships
//
// A tenant is the unit of data isolation. Users act inside a tenant through a
// membership carrying one role. An invitation is a pending membership: it holds an
// email address and a single-use token until someone accepts it.
//
//	svc := orgs.NewService(orgs.NewSQLStore(db, storage.DialectPostgres), orgs.ServiceOptions{
//		Quotas:  orgs.NewQuotaEnforcer(resolver, store, logger),
//		Wallets: wallets,
//		Plans:   resolver,
//	})
//
//	ac, err := svc.ValidateMembership(ctx, userID, "acme")
//	if errors.Is(err, orgs.ErrMembershipNotFound) {
//		// reject the request
//	}
//
// Only accepted memberships produce an AuthContext.
//
// # Quotas
//
// QuotaEnforcer compares a live count of a tenant's resources against the limit of its
// effective plan. RequireQuota rejects with *QuotaExceededError once the count reaches
// the limit; CheckPlanQuota reports the same numbers without rejecting. A tenant with no
// plan has a limit of 0 for every feature.
//
// Pending invitations that have not expired count towards max_members.
package orgs
