package policy

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/platinummonkey/crmcore/pkg/async"
	"github.com/platinummonkey/crmcore/pkg/audit"
	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/credits"
	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/orgs"
	"github.com/platinummonkey/crmcore/pkg/rbac"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// auditTimeout bounds a single background audit write
const auditTimeout = 5 * time.Second

// Check names used for the decision metric
const (
	checkPermission   = "permission"
	checkOwnership    = "ownership"
	checkReassignment = "reassignment"
	checkQuota        = "quota"
)

// QuotaChecker enforces and reports plan quotas
type QuotaChecker interface {
	RequireQuota(ctx context.Context, tenantID string, feature billing.FeatureKey) error
	CheckPlanQuota(ctx context.Context, tenantID string, feature billing.FeatureKey) (*orgs.QuotaStatus, error)
}

// Wallet reads and debits tenant credit balances
type Wallet interface {
	CheckBalance(ctx context.Context, tenantID string) (credits.Balance, error)
	DebitCredits(ctx context.Context, tenantID string, amount int64, description string, metadata map[string]interface{}) (bool, error)
}

// Options configures an Engine. Quotas and Wallet are required.
type Options struct {
	Checker *rbac.Checker
	Quotas  QuotaChecker
	Wallet  Wallet
	Audit   audit.Logger
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// Engine is the single entry point for permission, ownership, quota and credit checks.
// The boolean Can* methods are pure; the error-returning methods log, count and audit
// every denial.
type Engine struct {
	checker *rbac.Checker
	quotas  QuotaChecker
	wallet  Wallet
	auditor audit.Logger
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewEngine creates a policy engine
func NewEngine(opts Options) (*Engine, error) {
	if opts.Quotas == nil {
		return nil, errors.New("quota checker is required")
	}
	if opts.Wallet == nil {
		return nil, errors.New("wallet is required")
	}
	if opts.Checker == nil {
		opts.Checker = rbac.DefaultChecker()
	}
	if opts.Audit == nil {
		opts.Audit = audit.NoopLogger{}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}

	return &Engine{
		checker: opts.Checker,
		quotas:  opts.Quotas,
		wallet:  opts.Wallet,
		auditor: opts.Audit,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}, nil
}

// RequirePermission converts a false result of CanPerformAction into an
// *rbac.AuthorizationError. It has no side effects.
func (e *Engine) RequirePermission(allowed bool) error {
	return rbac.RequirePermission(allowed)
}

// CanPerformAction reports whether the caller's role may perform action on resource
func (e *Engine) CanPerformAction(ac auth.AuthContext, resource rbac.Resource, action rbac.Action) bool {
	return e.checker.CanPerform(ac, resource, action)
}

// Authorize checks the base permission for action on resource
func (e *Engine) Authorize(ctx context.Context, ac auth.AuthContext, resource rbac.Resource, action rbac.Action) error {
	err := e.checker.Authorize(ac, resource, action)
	e.decide(ctx, ac, checkPermission, string(resource), "", string(action), err)
	return err
}

// CanAccessRecord reports whether the caller may act on rec given its owner
func (e *Engine) CanAccessRecord(ac auth.AuthContext, rec rbac.Record) bool {
	return rbac.CanAccessRecord(ac, rec)
}

// AuthorizeRecord checks that rec belongs to the caller's tenant and that the caller may
// act on it. rec must come from a tenant-filtered query.
func (e *Engine) AuthorizeRecord(ctx context.Context, ac auth.AuthContext, resource rbac.Resource, rec rbac.Record) error {
	err := rbac.AuthorizeRecord(ac, rec)
	e.decide(ctx, ac, checkOwnership, string(resource), rec.ID, "", err)
	return err
}

// CanTransferOwnership reports whether the caller may reassign records
func (e *Engine) CanTransferOwnership(ac auth.AuthContext) bool {
	return rbac.CanTransferOwnership(ac)
}

// AuthorizeReassignment runs the three checks guarding an update of current: base
// update permission, ownership of the record before the update, and transfer permission
// when newOwner differs from the current owner.
func (e *Engine) AuthorizeReassignment(ctx context.Context, ac auth.AuthContext, resource rbac.Resource, current rbac.Record, newOwner *string) error {
	err := e.checker.AuthorizeUpdate(ac, resource, current, newOwner)
	e.decide(ctx, ac, checkReassignment, string(resource), current.ID, string(rbac.ActionUpdate), err)
	return err
}

// ResolveAssignedTo returns the owner to store on a record the caller is creating
func (e *Engine) ResolveAssignedTo(ac auth.AuthContext, requestedOwner string) string {
	return rbac.ResolveAssignedTo(ac, requestedOwner)
}

// RequireQuota rejects with *orgs.QuotaExceededError when the tenant is at its ceiling
// for feature
func (e *Engine) RequireQuota(ctx context.Context, tenantID string, feature billing.FeatureKey) error {
	err := e.quotas.RequireQuota(ctx, tenantID, feature)
	switch {
	case err == nil:
		e.metrics.RecordDecision(checkQuota, observability.OutcomeAllow)
	case orgs.IsQuotaExceeded(err):
		e.metrics.RecordDecision(checkQuota, observability.OutcomeDeny)
		e.metrics.RecordQuotaRejection(string(feature))

		var qe *orgs.QuotaExceededError
		errors.As(err, &qe)
		e.logger.WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"feature":   string(feature),
			"current":   qe.Current,
			"limit":     qe.Limit,
		}).Info("Quota exceeded")

		event := audit.NewEvent(ctx, audit.EventTypeQuotaExceeded, audit.EventStatusDenied)
		event.TenantID = tenantID
		event.ResourceType = string(feature)
		event.Action = string(rbac.ActionCreate)
		event.Message = err.Error()
		event.WithMetadata("current", qe.Current).WithMetadata("limit", qe.Limit)
		e.record(ctx, event)
	default:
		e.metrics.RecordDecision(checkQuota, observability.OutcomeError)
		observability.FromContextOr(ctx, e.logger).WithError(err).
			WithField("feature", string(feature)).Error("Quota check failed")
	}
	return err
}

// CheckPlanQuota reports usage of feature without enforcing it
func (e *Engine) CheckPlanQuota(ctx context.Context, tenantID string, feature billing.FeatureKey) (*orgs.QuotaStatus, error) {
	return e.quotas.CheckPlanQuota(ctx, tenantID, feature)
}

// AuthorizeCreate checks create permission on resource and then, for quota-gated
// resources, the tenant's quota. The quota is not evaluated when permission is denied.
func (e *Engine) AuthorizeCreate(ctx context.Context, ac auth.AuthContext, resource rbac.Resource) error {
	if err := e.Authorize(ctx, ac, resource, rbac.ActionCreate); err != nil {
		return err
	}
	feature, ok := QuotaFeature(resource)
	if !ok {
		return nil
	}
	return e.RequireQuota(ctx, ac.TenantID(), feature)
}

// CheckBalance returns the tenant's credit balance
func (e *Engine) CheckBalance(ctx context.Context, tenantID string) (credits.Balance, error) {
	return e.wallet.CheckBalance(ctx, tenantID)
}

// DebitCredits atomically charges amount to the tenant's wallet. Insufficient balance is
// (false, nil); callers decide whether to skip the billable action or surface it.
func (e *Engine) DebitCredits(ctx context.Context, tenantID string, amount int64, description string, metadata map[string]interface{}) (bool, error) {
	ctx, span := observability.Tracer().Start(ctx, "policy.DebitCredits",
		trace.WithAttributes(
			attribute.String("crmcore.tenant_id", tenantID),
			attribute.Int64("crmcore.credits.amount", amount),
		))
	defer span.End()

	start := time.Now()
	ok, err := e.wallet.DebitCredits(ctx, tenantID, amount, description, metadata)
	duration := time.Since(start)

	logger := observability.FromContextOr(ctx, e.logger).WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"amount":    amount,
	})

	var event *audit.AuditEvent
	switch {
	case err != nil:
		e.metrics.RecordDebit(observability.DebitError, amount, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WithError(err).Error("Credit debit failed")
		return false, err
	case !ok:
		e.metrics.RecordDebit(observability.DebitInsufficient, amount, duration)
		span.SetAttributes(attribute.Bool("crmcore.credits.insufficient", true))
		logger.Info("Insufficient credits")
		event = audit.NewEvent(ctx, audit.EventTypeCreditsDebitInsufficient, audit.EventStatusDenied)
	default:
		e.metrics.RecordDebit(observability.DebitSuccess, amount, duration)
		logger.Debug("Credits debited")
		event = audit.NewEvent(ctx, audit.EventTypeCreditsDebit, audit.EventStatusSuccess)
	}

	event.TenantID = tenantID
	event.ResourceType = string(rbac.ResourceCredits)
	event.Message = description
	event.WithMetadata("amount", amount)
	for k, v := range metadata {
		event.WithMetadata(k, v)
	}
	e.record(ctx, event)
	return ok, nil
}

// decide records the outcome of an authorization check and audits denials
func (e *Engine) decide(ctx context.Context, ac auth.AuthContext, check, resource, resourceID, action string, err error) {
	if err == nil {
		e.metrics.RecordDecision(check, observability.OutcomeAllow)
		return
	}
	e.metrics.RecordDecision(check, observability.OutcomeDeny)

	eventType := audit.EventTypeAuthzPermissionDenied
	var authzErr *rbac.AuthorizationError
	switch {
	case rbac.IsOwnershipError(err):
		eventType = audit.EventTypeAuthzOwnershipDenied
	case errors.As(err, &authzErr) && authzErr.Permission.Action == rbac.ActionAssign:
		eventType = audit.EventTypeAuthzReassignmentDenied
	}

	e.logger.WithFields(map[string]interface{}{
		"check":     check,
		"tenant_id": ac.TenantID(),
		"user_id":   ac.UserID(),
		"role":      string(ac.Role()),
		"resource":  resource,
		"action":    action,
	}).WithError(err).Info("Policy check denied")

	event := audit.NewEvent(ctx, eventType, audit.EventStatusDenied)
	event.TenantID = ac.TenantID()
	event.UserID = ac.UserID()
	event.Role = string(ac.Role())
	event.ResourceType = resource
	event.ResourceID = resourceID
	event.Action = action
	event.ErrorMessage = err.Error()
	e.record(ctx, event)
}

// record hands event to the audit logger without blocking the caller
func (e *Engine) record(ctx context.Context, event *audit.AuditEvent) {
	auditor := e.auditor
	async.SafeGo(context.WithoutCancel(ctx), auditTimeout, "audit "+string(event.EventType), func(ctx context.Context) error {
		return auditor.Log(ctx, event)
	})
}
