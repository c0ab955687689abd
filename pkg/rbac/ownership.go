package rbac

import (
	"github.com/platinummonkey/crmcore/pkg/auth"
)

// Record is the ownership view of any business entity: which tenant it belongs to
// and who it is assigned to. Callers build it from a row fetched with a tenant filter.
type Record struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	AssignedTo string `json:"assigned_to"`
}

// CanAccessRecord reports whether the caller may act on rec. Elevated roles always
// pass; other roles pass only for records assigned to them.
//
// This assumes rec was loaded with a tenant filter. It is a second layer on top of
// tenant scoping, not a replacement for it.
func CanAccessRecord(ac auth.AuthContext, rec Record) bool {
	if ac.IsZero() {
		return false
	}
	if ac.IsElevated() {
		return true
	}
	return rec.AssignedTo != "" && rec.AssignedTo == ac.UserID()
}

// AuthorizeRecord checks tenant membership of rec and then CanAccessRecord. A record
// without a tenant id is never trusted.
func AuthorizeRecord(ac auth.AuthContext, rec Record) error {
	if rec.TenantID == "" {
		return &OwnershipError{UserID: ac.UserID(), RecordID: rec.ID, Reason: "record has no tenant"}
	}
	if rec.TenantID != ac.TenantID() {
		return &OwnershipError{UserID: ac.UserID(), RecordID: rec.ID, Reason: "record belongs to another tenant"}
	}
	if !CanAccessRecord(ac, rec) {
		return &OwnershipError{UserID: ac.UserID(), RecordID: rec.ID, Reason: "record is assigned to another user"}
	}
	return nil
}

// ResolveAssignedTo returns the owner to store on a newly created record. Non-elevated
// callers always get themselves regardless of what was requested. Elevated callers get
// the requested owner, or themselves when none was requested; validating that the
// requested owner belongs to the tenant is up to the caller.
func ResolveAssignedTo(ac auth.AuthContext, requestedOwner string) string {
	if !ac.IsElevated() || requestedOwner == "" {
		return ac.UserID()
	}
	return requestedOwner
}

// IsOwnershipChange reports whether an update moves a record to a different owner.
// A nil or empty newOwner means the update leaves the owner untouched.
func IsOwnershipChange(newOwner *string, oldOwner string) bool {
	return newOwner != nil && *newOwner != "" && *newOwner != oldOwner
}

// CanTransferOwnership reports whether the caller may reassign records to someone else
func CanTransferOwnership(ac auth.AuthContext) bool {
	return !ac.IsZero() && ac.IsElevated()
}

// AuthorizeUpdate runs the checks for updating an existing record, in order:
//  1. base update permission on the resource kind
//  2. ownership of the record as it was before the update
//  3. transfer permission, if the update changes the owner
//
// The first failure is returned.
func (c *Checker) AuthorizeUpdate(ac auth.AuthContext, resource Resource, current Record, newOwner *string) error {
	if err := c.Authorize(ac, resource, ActionUpdate); err != nil {
		return err
	}
	if err := AuthorizeRecord(ac, current); err != nil {
		return err
	}
	if IsOwnershipChange(newOwner, current.AssignedTo) && !CanTransferOwnership(ac) {
		return &AuthorizationError{
			Role:       ac.Role(),
			Permission: Permission{Resource: resource, Action: ActionAssign},
		}
	}
	return nil
}

// AuthorizeAccess checks the base permission for action and then record ownership.
// Used for reads and deletes of existing records.
func (c *Checker) AuthorizeAccess(ac auth.AuthContext, resource Resource, action Action, rec Record) error {
	if err := c.Authorize(ac, resource, action); err != nil {
		return err
	}
	return AuthorizeRecord(ac, rec)
}
