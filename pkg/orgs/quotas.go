package orgs

import (
	"context"
	"fmt"
	"os"

	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// PlanResolver resolves the plan a tenant is currently on
type PlanResolver interface {
	ResolveEffectivePlan(ctx context.Context, tenantID string) (billing.EffectivePlan, error)
}

// ResourceCounter counts the resources a tenant currently holds for a quota feature
type ResourceCounter interface {
	CountResources(ctx context.Context, tenantID string, feature billing.FeatureKey) (int64, error)
}

// QuotaEnforcer compares live resource counts against the tenant's effective plan.
// Counts are never cached: a stale count on the create path would let concurrent
// creations overshoot the ceiling.
type QuotaEnforcer struct {
	plans   PlanResolver
	counter ResourceCounter
	logger  *observability.Logger
}

// NewQuotaEnforcer creates a new quota enforcer
func NewQuotaEnforcer(plans PlanResolver, counter ResourceCounter, logger *observability.Logger) *QuotaEnforcer {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	return &QuotaEnforcer{plans: plans, counter: counter, logger: logger}
}

// CheckPlanQuota returns the tenant's usage of feature without enforcing it
func (q *QuotaEnforcer) CheckPlanQuota(ctx context.Context, tenantID string, feature billing.FeatureKey) (*QuotaStatus, error) {
	return q.checkPlanQuota(ctx, tenantID, feature, q.counter)
}

func (q *QuotaEnforcer) checkPlanQuota(ctx context.Context, tenantID string, feature billing.FeatureKey, counter ResourceCounter) (*QuotaStatus, error) {
	if !feature.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}

	ep, err := q.plans.ResolveEffectivePlan(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan: %w", err)
	}

	current, err := counter.CountResources(ctx, tenantID, feature)
	if err != nil {
		return nil, err
	}

	return &QuotaStatus{
		Feature: feature,
		Current: current,
		Limit:   ep.Limit(feature),
		Plan:    ep.PlanKey(),
		Source:  ep.Source,
	}, nil
}

// RequireQuota returns a *QuotaExceededError unless one more resource of feature may be
// created. A tenant without a plan has a ceiling of 0 for every feature.
func (q *QuotaEnforcer) RequireQuota(ctx context.Context, tenantID string, feature billing.FeatureKey) error {
	return q.requireQuota(ctx, tenantID, feature, q.counter)
}

// requireQuota is RequireQuota with the count read through counter, so a caller holding
// a transaction can check and create under the same lock
func (q *QuotaEnforcer) requireQuota(ctx context.Context, tenantID string, feature billing.FeatureKey, counter ResourceCounter) error {
	status, err := q.checkPlanQuota(ctx, tenantID, feature, counter)
	if err != nil {
		return err
	}
	if !status.Allowed() {
		q.logger.WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"feature":   feature,
			"current":   status.Current,
			"limit":     status.Limit,
			"source":    status.Source,
		}).Debug("Quota exhausted")
		return &QuotaExceededError{Resource: string(feature), Current: status.Current, Limit: status.Limit}
	}
	return nil
}

// CheckAllQuotas returns the tenant's usage of every quota feature, in FeatureKeys order
func (q *QuotaEnforcer) CheckAllQuotas(ctx context.Context, tenantID string) ([]QuotaStatus, error) {
	ep, err := q.plans.ResolveEffectivePlan(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan: %w", err)
	}

	features := billing.FeatureKeys()
	statuses := make([]QuotaStatus, len(features))

	g, gctx := errgroup.WithContext(ctx)
	for i, feature := range features {
		g.Go(func() error {
			current, err := q.counter.CountResources(gctx, tenantID, feature)
			if err != nil {
				return err
			}
			statuses[i] = QuotaStatus{
				Feature: feature,
				Current: current,
				Limit:   ep.Limit(feature),
				Plan:    ep.PlanKey(),
				Source:  ep.Source,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}
