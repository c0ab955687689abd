package rbac

import (
	"testing"

	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustContext(t *testing.T, userID string, role auth.Role) auth.AuthContext {
	t.Helper()
	ac, err := auth.NewAuthContext(userID, "tenant-1", role)
	require.NoError(t, err)
	return ac
}

var allResources = []Resource{
	ResourceContact, ResourceCompany, ResourceDeal, ResourceTask, ResourceNote,
	ResourcePipeline, ResourceMember, ResourceInvitation, ResourceSettings,
	ResourceBilling, ResourceCredits, ResourceAIAssistant, Resource("unknown"),
}

var allActions = []Action{
	ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAssign, ActionInvite,
	ActionRemove, ActionUpdateRole, ActionPurchase, ActionUse, Action("export"),
}

func TestCanPerform_DenyByDefault(t *testing.T) {
	matrix := DefaultMatrix()
	checker := NewChecker(matrix)

	for _, role := range []auth.Role{auth.RoleOwner, auth.RoleAdmin, auth.RoleMember} {
		ac := mustContext(t, "user-1", role)
		for _, res := range allResources {
			for _, act := range allActions {
				perm := Permission{Resource: res, Action: act}
				listed := matrix.Allows(role, perm)
				assert.Equal(t, listed, checker.CanPerform(ac, res, act),
					"role=%s perm=%s", role, perm)
			}
		}
	}
}

func TestCanPerform_UnknownPairsDenied(t *testing.T) {
	owner := mustContext(t, "user-1", auth.RoleOwner)
	assert.False(t, CanPerformAction(owner, Resource("invoice"), ActionRead))
	assert.False(t, CanPerformAction(owner, ResourceContact, Action("export")))
}

func TestCanPerform_ZeroContextDenied(t *testing.T) {
	assert.False(t, CanPerformAction(auth.AuthContext{}, ResourceContact, ActionRead))
}

func TestCanPerform_NilMatrixDenies(t *testing.T) {
	checker := NewChecker(nil)
	owner := mustContext(t, "user-1", auth.RoleOwner)
	assert.False(t, checker.CanPerform(owner, ResourceContact, ActionRead))
}

func TestDefaultMatrix_RoleSubsets(t *testing.T) {
	matrix := DefaultMatrix()

	for _, p := range matrix.Permissions(auth.RoleMember) {
		assert.True(t, matrix.Allows(auth.RoleAdmin, p), "admin missing member permission %s", p)
	}
	for _, p := range matrix.Permissions(auth.RoleAdmin) {
		assert.True(t, matrix.Allows(auth.RoleOwner, p), "owner missing admin permission %s", p)
	}
}

func TestDefaultMatrix_Grants(t *testing.T) {
	member := mustContext(t, "m", auth.RoleMember)
	admin := mustContext(t, "a", auth.RoleAdmin)
	owner := mustContext(t, "o", auth.RoleOwner)

	tests := []struct {
		name     string
		ac       auth.AuthContext
		resource Resource
		action   Action
		want     bool
	}{
		{"member creates contact", member, ResourceContact, ActionCreate, true},
		{"member cannot delete deal", member, ResourceDeal, ActionDelete, false},
		{"member cannot invite", member, ResourceMember, ActionInvite, false},
		{"member uses ai assistant", member, ResourceAIAssistant, ActionUse, true},
		{"member cannot buy credits", member, ResourceCredits, ActionPurchase, false},
		{"admin deletes deal", admin, ResourceDeal, ActionDelete, true},
		{"admin invites", admin, ResourceMember, ActionInvite, true},
		{"admin cannot update billing", admin, ResourceBilling, ActionUpdate, false},
		{"owner updates billing", owner, ResourceBilling, ActionUpdate, true},
		{"owner deletes settings", owner, ResourceSettings, ActionDelete, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanPerformAction(tt.ac, tt.resource, tt.action))
		})
	}
}

func TestRequirePermission(t *testing.T) {
	assert.NoError(t, RequirePermission(true))

	err := RequirePermission(false)
	require.Error(t, err)
	assert.True(t, IsAuthorizationError(err))
	assert.False(t, IsOwnershipError(err))
}

func TestAuthorize_ReturnsDetails(t *testing.T) {
	member := mustContext(t, "m", auth.RoleMember)

	err := DefaultChecker().Authorize(member, ResourceDeal, ActionDelete)
	require.Error(t, err)

	var authzErr *AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	assert.Equal(t, auth.RoleMember, authzErr.Role)
	assert.Equal(t, Permission{Resource: ResourceDeal, Action: ActionDelete}, authzErr.Permission)
	assert.Contains(t, err.Error(), "deal:delete")
}
