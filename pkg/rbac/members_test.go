package rbac

import (
	"testing"

	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/stretchr/testify/assert"
)

func TestCanChangeMemberRole(t *testing.T) {
	checker := DefaultChecker()
	owner := mustContext(t, "owner-1", auth.RoleOwner)
	admin := mustContext(t, "admin-1", auth.RoleAdmin)
	member := mustContext(t, "member-1", auth.RoleMember)

	tests := []struct {
		name       string
		actor      auth.AuthContext
		target     MemberRef
		newRole    auth.Role
		wantPolicy bool
		wantAuthz  bool
	}{
		{"owner promotes member to admin", owner, MemberRef{"m2", auth.RoleMember}, auth.RoleAdmin, false, false},
		{"owner demotes admin", owner, MemberRef{"a2", auth.RoleAdmin}, auth.RoleMember, false, false},
		{"owner changes own role", owner, MemberRef{"owner-1", auth.RoleOwner}, auth.RoleAdmin, true, false},
		{"admin changes owner role", admin, MemberRef{"owner-1", auth.RoleOwner}, auth.RoleMember, true, false},
		{"grant owner role", owner, MemberRef{"m2", auth.RoleMember}, auth.RoleOwner, true, false},
		{"admin changes own role", admin, MemberRef{"admin-1", auth.RoleAdmin}, auth.RoleMember, true, false},
		{"admin demotes other admin", admin, MemberRef{"a2", auth.RoleAdmin}, auth.RoleMember, true, false},
		{"admin promotes member to admin", admin, MemberRef{"m2", auth.RoleMember}, auth.RoleAdmin, true, false},
		{"member changes roles", member, MemberRef{"m2", auth.RoleMember}, auth.RoleMember, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.CanChangeMemberRole(tt.actor, tt.target, tt.newRole)
			if !tt.wantPolicy && !tt.wantAuthz {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantPolicy, IsMemberPolicyError(err), "err=%v", err)
			assert.Equal(t, tt.wantAuthz, IsAuthorizationError(err), "err=%v", err)
		})
	}
}

func TestCanChangeMemberRole_InvalidRole(t *testing.T) {
	owner := mustContext(t, "owner-1", auth.RoleOwner)
	err := DefaultChecker().CanChangeMemberRole(owner, MemberRef{"m2", auth.RoleMember}, auth.Role("viewer"))
	assert.Error(t, err)
}

func TestCanRemoveMember(t *testing.T) {
	checker := DefaultChecker()
	owner := mustContext(t, "owner-1", auth.RoleOwner)
	admin := mustContext(t, "admin-1", auth.RoleAdmin)
	member := mustContext(t, "member-1", auth.RoleMember)

	// The owner can never be removed, not even by themselves.
	assert.True(t, IsMemberPolicyError(checker.CanRemoveMember(owner, MemberRef{"owner-1", auth.RoleOwner})))
	assert.True(t, IsMemberPolicyError(checker.CanRemoveMember(admin, MemberRef{"owner-1", auth.RoleOwner})))

	assert.NoError(t, checker.CanRemoveMember(member, MemberRef{"member-1", auth.RoleMember}))
	assert.NoError(t, checker.CanRemoveMember(admin, MemberRef{"admin-1", auth.RoleAdmin}))

	assert.NoError(t, checker.CanRemoveMember(admin, MemberRef{"m2", auth.RoleMember}))
	assert.NoError(t, checker.CanRemoveMember(owner, MemberRef{"a2", auth.RoleAdmin}))
	assert.True(t, IsMemberPolicyError(checker.CanRemoveMember(admin, MemberRef{"a2", auth.RoleAdmin})))
	assert.True(t, IsAuthorizationError(checker.CanRemoveMember(member, MemberRef{"m2", auth.RoleMember})))
}

func TestCanInviteWithRole(t *testing.T) {
	checker := DefaultChecker()
	owner := mustContext(t, "owner-1", auth.RoleOwner)
	admin := mustContext(t, "admin-1", auth.RoleAdmin)
	member := mustContext(t, "member-1", auth.RoleMember)

	assert.True(t, IsMemberPolicyError(checker.CanInviteWithRole(owner, auth.RoleOwner)))
	assert.NoError(t, checker.CanInviteWithRole(owner, auth.RoleAdmin))
	assert.NoError(t, checker.CanInviteWithRole(admin, auth.RoleMember))
	assert.True(t, IsMemberPolicyError(checker.CanInviteWithRole(admin, auth.RoleAdmin)))
	assert.True(t, IsAuthorizationError(checker.CanInviteWithRole(member, auth.RoleMember)))
	assert.Error(t, checker.CanInviteWithRole(owner, auth.Role("")))
}
