package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/crmcore/pkg/async"
	"github.com/platinummonkey/crmcore/pkg/credits"
	"github.com/platinummonkey/crmcore/pkg/observability"
)

// JobPlanCreditGrant is the job name used in logs and metrics
const JobPlanCreditGrant = "plan_credit_grant"

// TenantLister lists every tenant id
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]string, error)
}

// PlanResolver resolves a tenant's monthly plan credits; 0 when no plan applies
type PlanResolver interface {
	CreditAllowance(ctx context.Context, tenantID string) (int64, error)
}

// CreditGranter resets a tenant's plan credits for a period
type CreditGranter interface {
	GrantPlanCredits(ctx context.Context, tenantID string, amount int64, period credits.Period) (*credits.Transaction, bool, error)
}

// GrantSummary reports the outcome of one grant run
type GrantSummary struct {
	Period  credits.Period
	Tenants int
	Granted int64
	Skipped int64
	Failed  int
}

// PlanCreditGranter grants each tenant its plan's monthly credit allowance
type PlanCreditGranter struct {
	tenants TenantLister
	plans   PlanResolver
	wallets CreditGranter
	workers int
	timeout time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewPlanCreditGranter creates a granter processing tenants with workers goroutines
func NewPlanCreditGranter(tenants TenantLister, plans PlanResolver, wallets CreditGranter, workers int,
	metrics *observability.Metrics, logger *observability.Logger) *PlanCreditGranter {
	return &PlanCreditGranter{
		tenants: tenants,
		plans:   plans,
		wallets: wallets,
		workers: workers,
		timeout: 30 * time.Second,
		metrics: metrics,
		logger:  logger,
	}
}

// WithTimeout sets the per-tenant deadline
func (g *PlanCreditGranter) WithTimeout(d time.Duration) *PlanCreditGranter {
	if d > 0 {
		g.timeout = d
	}
	return g
}

// Run grants credits for the period containing now. Grants are idempotent per period, so
// a rerun only touches tenants that failed or were created since. Per-tenant failures
// are logged and counted but do not fail the run.
func (g *PlanCreditGranter) Run(ctx context.Context, now time.Time) (GrantSummary, error) {
	start := time.Now()
	period := credits.PeriodOf(now)
	summary := GrantSummary{Period: period}

	ids, err := g.tenants.ListTenantIDs(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list tenants: %w", err)
		g.metrics.RecordJobRun(JobPlanCreditGrant, err, time.Since(start))
		return summary, err
	}
	summary.Tenants = len(ids)

	var granted, skipped atomic.Int64
	errs := async.Batch(ctx, ids, g.workers, JobPlanCreditGrant, g.timeout, func(ctx context.Context, tenantID string) error {
		allowance, err := g.plans.CreditAllowance(ctx, tenantID)
		if err != nil {
			g.metrics.RecordGrant("error")
			return fmt.Errorf("failed to resolve plan: %w", err)
		}

		_, ok, err := g.wallets.GrantPlanCredits(ctx, tenantID, allowance, period)
		switch {
		case err != nil:
			g.metrics.RecordGrant("error")
			return err
		case ok:
			granted.Add(1)
			g.metrics.RecordGrant("granted")
		default:
			skipped.Add(1)
			g.metrics.RecordGrant("already_granted")
		}
		return nil
	})

	for _, err := range errs {
		g.logger.WithError(err).WithField("period", period.String()).Warn("Plan credit grant failed")
	}

	summary.Granted = granted.Load()
	summary.Skipped = skipped.Load()
	summary.Failed = len(errs)
	g.metrics.RecordJobRun(JobPlanCreditGrant, nil, time.Since(start))

	g.logger.WithFields(map[string]interface{}{
		"period":  period.String(),
		"tenants": summary.Tenants,
		"granted": summary.Granted,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}).Info("Plan credit grant finished")
	return summary, nil
}
