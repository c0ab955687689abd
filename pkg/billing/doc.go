// Package billing provides the plan catalog and effective plan resolution for tenants.
//
// # Overview
//
// A plan sets a ceiling per quota-gated feature (contacts, companies, deals, members,
// pipelines) and a monthly credit allowance. Which plan applies to a tenant is decided
// by Resolver.ResolveEffectivePlan, the single place both quota enforcement and credit
// grants read it from.
//
// # Plans
//
// The built-in catalog has three plans:
//
//	starter - trial baseline, 500 contacts, 3 members, 100 credits/month
//	growth  - 10,000 contacts, 15 members, 1,000 credits/month
//	scale   - top plan, 250,000 contacts, 100 members, 10,000 credits/month
//
// A YAML file can replace it:
//
//	plans:
//	  - key: starter
//	    display_name: Starter
//	    rank: 1
//	    monthly_credits: 100
//	    limits:
//	      max_contacts: 500
//	      max_members: 3
//
// Features a plan leaves out have a ceiling of 0. CatalogWatcher reloads the file on
// change and keeps the previous catalog when the new one is invalid.
//
// # Resolution
//
// First match wins:
//
//  1. an administrative override (PlanSourceOverride)
//  2. an active or trialing subscription (PlanSourceSubscription)
//  3. the trial plan while tenants.trial_ends_at is in the future (PlanSourceTrial)
//  4. nothing (PlanSourceNone): every limit and allowance is 0
//
// Example:
//
//	resolver, err := billing.NewResolver(billing.NewPostgresStore(db), billing.DefaultCatalog(), billing.PlanStarter)
//	ep, err := resolver.ResolveEffectivePlan(ctx, tenantID)
//	limit := ep.Limit(billing.FeatureMaxContacts)
//
// # Related Packages
//
//   - pkg/orgs: quota enforcement against resolved limits
//   - pkg/credits: monthly plan credit grants
package billing
