package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAuthzPermissionDenied   EventType = "authz.permission_denied"
	EventTypeAuthzOwnershipDenied    EventType = "authz.ownership_denied"
	EventTypeAuthzReassignmentDenied EventType = "authz.reassignment_denied"
	EventTypeAuthzMembershipDenied   EventType = "authz.membership_denied"

	// Quota events
	EventTypeQuotaExceeded EventType = "quota.exceeded"

	// Credit events
	EventTypeCreditsDebit             EventType = "credits.debit"
	EventTypeCreditsDebitInsufficient EventType = "credits.debit_insufficient"
	EventTypeCreditsTopUp             EventType = "credits.top_up"
	EventTypeCreditsPlanGrant         EventType = "credits.plan_grant"

	// Membership events
	EventTypeTenantCreate     EventType = "tenant.create"
	EventTypeMemberInvite     EventType = "member.invite"
	EventTypeMemberAccept     EventType = "member.accept"
	EventTypeMemberRoleChange EventType = "member.role_change"
	EventTypeMemberRemove     EventType = "member.remove"
	EventTypeInvitationRevoke EventType = "invitation.revoke"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	TenantID string `json:"tenant_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Role     string `json:"role,omitempty"`

	// Target
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	Action       string `json:"action,omitempty"`

	RequestID    string                 `json:"request_id,omitempty"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WithMetadata sets a metadata key and returns the event
func (e *AuditEvent) WithMetadata(key string, value interface{}) *AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
