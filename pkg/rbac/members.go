package rbac

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/crmcore/pkg/auth"
)

// MemberRef identifies a membership targeted by a member-management action
type MemberRef struct {
	UserID string
	Role   auth.Role
}

// MemberPolicyError is returned when a member-management action breaks one of the
// membership invariants (owner immutability, self role changes, admin management).
// These hold regardless of what the permission matrix grants.
type MemberPolicyError struct {
	Reason string
}

func (e *MemberPolicyError) Error() string {
	return "member policy violation: " + e.Reason
}

// IsMemberPolicyError checks if an error is (or wraps) a member policy error
func IsMemberPolicyError(err error) bool {
	var target *MemberPolicyError
	return errors.As(err, &target)
}

// CanChangeMemberRole checks whether actor may change target's role to newRole
func (c *Checker) CanChangeMemberRole(actor auth.AuthContext, target MemberRef, newRole auth.Role) error {
	if !newRole.Valid() {
		return fmt.Errorf("invalid role %q", newRole)
	}
	if target.Role == auth.RoleOwner {
		return &MemberPolicyError{Reason: "the owner role cannot be changed"}
	}
	if newRole == auth.RoleOwner {
		return &MemberPolicyError{Reason: "the owner role cannot be granted"}
	}
	if target.UserID == actor.UserID() {
		return &MemberPolicyError{Reason: "members cannot change their own role"}
	}
	if err := c.Authorize(actor, ResourceMember, ActionUpdateRole); err != nil {
		return err
	}
	if (target.Role == auth.RoleAdmin || newRole == auth.RoleAdmin) && actor.Role() != auth.RoleOwner {
		return &MemberPolicyError{Reason: "only the owner can manage admins"}
	}
	return nil
}

// CanRemoveMember checks whether actor may remove target from the tenant. Leaving a
// tenant (removing yourself) needs no permission unless you are the owner.
func (c *Checker) CanRemoveMember(actor auth.AuthContext, target MemberRef) error {
	if target.Role == auth.RoleOwner {
		return &MemberPolicyError{Reason: "the owner cannot be removed"}
	}
	if target.UserID == actor.UserID() {
		return nil
	}
	if err := c.Authorize(actor, ResourceMember, ActionRemove); err != nil {
		return err
	}
	if target.Role == auth.RoleAdmin && actor.Role() != auth.RoleOwner {
		return &MemberPolicyError{Reason: "only the owner can remove admins"}
	}
	return nil
}

// CanInviteWithRole checks whether actor may invite a new member with role
func (c *Checker) CanInviteWithRole(actor auth.AuthContext, role auth.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	if role == auth.RoleOwner {
		return &MemberPolicyError{Reason: "the owner role cannot be granted by invitation"}
	}
	if err := c.Authorize(actor, ResourceMember, ActionInvite); err != nil {
		return err
	}
	if role == auth.RoleAdmin && actor.Role() != auth.RoleOwner {
		return &MemberPolicyError{Reason: "only the owner can invite admins"}
	}
	return nil
}
