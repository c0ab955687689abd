package orgs

import (
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/platinummonkey/crmcore/pkg/billing"
)

var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvitationExpired   = errors.New("invitation expired")
	ErrAlreadyMember       = errors.New("user is already a member of this tenant")
	ErrSlugTaken           = errors.New("tenant slug already taken")
	ErrUnknownFeature      = errors.New("unknown quota feature")
	ErrInvalidTenantFields = errors.New("tenant name is required")
	ErrInvalidEmail        = errors.New("invalid invitation email")
)

// Tenant is an organization, the unit of data isolation
type Tenant struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Membership binds a user to a tenant with a role. A pending membership is an
// invitation: it has an email and token but no user until it is accepted.
type Membership struct {
	ID          string                `json:"id"`
	TenantID    string                `json:"tenant_id"`
	UserID      string                `json:"user_id,omitempty"`
	Email       string                `json:"email,omitempty"`
	Role        auth.Role             `json:"role"`
	Status      auth.MembershipStatus `json:"status"`
	InviteToken string                `json:"-"`
	InvitedBy   string                `json:"invited_by,omitempty"`
	ExpiresAt   *time.Time            `json:"expires_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	AcceptedAt  *time.Time            `json:"accepted_at,omitempty"`
}

// IsPending reports whether the membership is an outstanding invitation
func (m Membership) IsPending() bool {
	return m.Status == auth.MembershipPending
}

// ExpiredAt reports whether a pending invitation can no longer be accepted at t
func (m Membership) ExpiredAt(t time.Time) bool {
	return m.ExpiresAt != nil && !t.Before(*m.ExpiresAt)
}

// CreateTenantRequest represents a request to create a tenant
type CreateTenantRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// InviteMemberRequest represents a request to invite a member
type InviteMemberRequest struct {
	Email string    `json:"email"`
	Role  auth.Role `json:"role"`
}

// UpdateMemberRequest represents a request to change a member's role
type UpdateMemberRequest struct {
	Role auth.Role `json:"role"`
}

// QuotaStatus is a tenant's usage of one quota-gated feature
type QuotaStatus struct {
	Feature billing.FeatureKey `json:"feature"`
	Current int64              `json:"current"`
	Limit   int64              `json:"limit"`
	Plan    string             `json:"plan,omitempty"`
	Source  billing.PlanSource `json:"source"`
}

// Allowed reports whether one more resource may be created
func (q QuotaStatus) Allowed() bool {
	return q.Current < q.Limit
}

// Remaining returns how many more resources may be created
func (q QuotaStatus) Remaining() int64 {
	if q.Current >= q.Limit {
		return 0
	}
	return q.Limit - q.Current
}

// QuotaExceededError is returned when a tenant reached its plan ceiling for a feature
type QuotaExceededError struct {
	Resource string
	Current  int64
	Limit    int64
}

func (e *QuotaExceededError) Error() string {
	if e.Limit == 0 {
		return fmt.Sprintf("quota exceeded for %s: not available on the current plan", e.Resource)
	}
	return fmt.Sprintf("quota exceeded for %s: %d of %d used", e.Resource, e.Current, e.Limit)
}

// IsQuotaExceeded checks if an error is (or wraps) a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var target *QuotaExceededError
	return errors.As(err, &target)
}
