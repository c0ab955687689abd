// Package policy is the centralized authorization and metering facade. Every mutating
// operation goes through an Engine rather than calling rbac, orgs and credits directly,
// so the role matrix, ownership scoping, plan quotas and credit debits are enforced the
// same way everywhere.
//
// A typical create path:
//
//	if err := engine.AuthorizeCreate(ctx, ac, rbac.ResourceContact); err != nil {
//	    return err
//	}
//	owner := engine.ResolveAssignedTo(ac, req.AssignedTo)
//
// A typical update path, where current was loaded with a tenant filter:
//
//	if err := engine.AuthorizeReassignment(ctx, ac, rbac.ResourceDeal, current, req.AssignedTo); err != nil {
//	    return err
//	}
//
// Metered actions:
//
//	ok, err := engine.DebitCredits(ctx, ac.TenantID(), 5, "AI summary", nil)
//	if err != nil {
//	    return err
//	}
//	if !ok {
//	    // out of credits: skip the billable step
//	}
//
// Denials are logged, counted in crmcore_policy_decisions_total and written to the audit
// logger in the background.
package policy
