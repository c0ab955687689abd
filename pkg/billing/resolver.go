package billing

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/platinummonkey/crmcore/pkg/observability"
)

// Resolver implements effective plan resolution. Quota limits and credit allowances are
// both read through it, so they cannot disagree about which plan a tenant is on.
type Resolver struct {
	store     Store
	catalog   *Catalog
	trialPlan string
	logger    *observability.Logger
	now       func() time.Time
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithLogger sets the resolver logger
func WithLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver. trialPlan is the baseline plan granted during a trial
// window; it must exist in catalog and must not be the top plan.
func NewResolver(store Store, catalog *Catalog, trialPlan string, opts ...ResolverOption) (*Resolver, error) {
	if err := catalog.ValidateTrialPlan(trialPlan); err != nil {
		return nil, fmt.Errorf("invalid trial plan: %w", err)
	}
	r := &Resolver{
		store:     store,
		catalog:   catalog,
		trialPlan: trialPlan,
		logger:    observability.NewLogger(observability.InfoLevel, os.Stdout),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Catalog returns the catalog plans are resolved against
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// TrialPlan returns the baseline plan granted during a trial window
func (r *Resolver) TrialPlan() (Plan, error) {
	return r.catalog.Get(r.trialPlan)
}

// ResolveEffectivePlan returns the tenant's plan from the first source that applies:
//  1. an active administrative override
//  2. an active or trialing subscription
//  3. the trial plan, while the trial window is open
//
// Otherwise it returns PlanSourceNone. A source naming a plan missing from the catalog
// is skipped, never treated as unlimited. Store errors are returned as-is; callers must
// fail closed on error.
func (r *Resolver) ResolveEffectivePlan(ctx context.Context, tenantID string) (EffectivePlan, error) {
	now := r.now()
	log := r.logger.WithField("tenant_id", tenantID)

	override, err := r.store.GetOverride(ctx, tenantID)
	if err != nil {
		return EffectivePlan{}, fmt.Errorf("failed to get plan override: %w", err)
	}
	if override.ActiveAt(now) {
		if plan, err := r.catalog.Get(override.PlanKey); err == nil {
			return EffectivePlan{TenantID: tenantID, Plan: &plan, Source: PlanSourceOverride}, nil
		}
		log.WithField("plan", override.PlanKey).Warn("Plan override references unknown plan, skipping")
	}

	sub, err := r.store.GetSubscription(ctx, tenantID)
	if err != nil {
		return EffectivePlan{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub != nil && sub.Status.Grants() {
		if plan, err := r.catalog.Get(sub.PlanKey); err == nil {
			return EffectivePlan{TenantID: tenantID, Plan: &plan, Source: PlanSourceSubscription}, nil
		}
		log.WithField("plan", sub.PlanKey).Warn("Subscription references unknown plan, skipping")
	}

	trialEnd, err := r.store.GetTrialEnd(ctx, tenantID)
	if err != nil {
		return EffectivePlan{}, fmt.Errorf("failed to get trial window: %w", err)
	}
	if trialEnd != nil && now.Before(*trialEnd) {
		if plan, err := r.catalog.Get(r.trialPlan); err == nil {
			return EffectivePlan{TenantID: tenantID, Plan: &plan, Source: PlanSourceTrial}, nil
		}
		log.WithField("plan", r.trialPlan).Error("Trial plan missing from catalog")
	}

	return EffectivePlan{TenantID: tenantID, Source: PlanSourceNone}, nil
}

// HasActivePlan reports whether any plan source currently applies to the tenant. A
// tenant without one has no spendable credits.
func (r *Resolver) HasActivePlan(ctx context.Context, tenantID string) (bool, error) {
	ep, err := r.ResolveEffectivePlan(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return ep.HasPlan(), nil
}

// CreditAllowance resolves the tenant's monthly plan credits
func (r *Resolver) CreditAllowance(ctx context.Context, tenantID string) (int64, error) {
	ep, err := r.ResolveEffectivePlan(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return ep.CreditAllowance(), nil
}
