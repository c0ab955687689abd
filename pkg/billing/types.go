package billing

import (
	"context"
	"time"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
)

// Grants reports whether a subscription in this status entitles the tenant to its plan
func (s SubscriptionStatus) Grants() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Subscription is a tenant's paid subscription record
type Subscription struct {
	ID                 string             `json:"id"`
	TenantID           string             `json:"tenant_id"`
	PlanKey            string             `json:"plan"`
	Status             SubscriptionStatus `json:"status"`
	ExternalID         string             `json:"external_id,omitempty"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// PlanOverride is an administratively granted plan that bypasses subscription state
type PlanOverride struct {
	TenantID  string     `json:"tenant_id"`
	PlanKey   string     `json:"plan"`
	Reason    string     `json:"reason,omitempty"`
	GrantedBy string     `json:"granted_by,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ActiveAt reports whether the override applies at t
func (o *PlanOverride) ActiveAt(t time.Time) bool {
	return o != nil && (o.ExpiresAt == nil || t.Before(*o.ExpiresAt))
}

// PlanSource identifies which resolution step produced an effective plan
type PlanSource string

const (
	PlanSourceOverride     PlanSource = "override"
	PlanSourceSubscription PlanSource = "subscription"
	PlanSourceTrial        PlanSource = "trial"
	PlanSourceNone         PlanSource = "none"
)

// EffectivePlan is the plan actually applied to a tenant. When Source is PlanSourceNone
// Plan is nil and every limit and allowance is zero.
type EffectivePlan struct {
	TenantID string     `json:"tenant_id"`
	Plan     *Plan      `json:"plan,omitempty"`
	Source   PlanSource `json:"source"`
}

// HasPlan reports whether any plan resolved
func (e EffectivePlan) HasPlan() bool {
	return e.Plan != nil
}

// PlanKey returns the resolved plan key, or "" when none resolved
func (e EffectivePlan) PlanKey() string {
	if e.Plan == nil {
		return ""
	}
	return e.Plan.Key
}

// Limit returns the ceiling for feature, 0 when no plan resolved
func (e EffectivePlan) Limit(feature FeatureKey) int64 {
	if e.Plan == nil {
		return 0
	}
	return e.Plan.Limit(feature)
}

// CreditAllowance returns the monthly plan credits, 0 when no plan resolved
func (e EffectivePlan) CreditAllowance() int64 {
	if e.Plan == nil {
		return 0
	}
	return e.Plan.MonthlyCredits
}

// Store is the plan/subscription persistence the resolver reads from. Lookups that
// find nothing return nil with a nil error.
type Store interface {
	GetOverride(ctx context.Context, tenantID string) (*PlanOverride, error)
	GetSubscription(ctx context.Context, tenantID string) (*Subscription, error)
	GetTrialEnd(ctx context.Context, tenantID string) (*time.Time, error)
}
