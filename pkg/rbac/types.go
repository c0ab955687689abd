package rbac

import (
	"github.com/platinummonkey/crmcore/pkg/auth"
)

// Resource represents a resource kind in the system
type Resource string

const (
	ResourceContact     Resource = "contact"
	ResourceCompany     Resource = "company"
	ResourceDeal        Resource = "deal"
	ResourceTask        Resource = "task"
	ResourceNote        Resource = "note"
	ResourcePipeline    Resource = "pipeline"
	ResourceMember      Resource = "member"
	ResourceInvitation  Resource = "invitation"
	ResourceSettings    Resource = "settings"
	ResourceBilling     Resource = "billing"
	ResourceCredits     Resource = "credits"
	ResourceAIAssistant Resource = "ai_assistant"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate     Action = "create"
	ActionRead       Action = "read"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionAssign     Action = "assign"
	ActionInvite     Action = "invite"
	ActionRemove     Action = "remove"
	ActionUpdateRole Action = "update_role"
	ActionPurchase   Action = "purchase"
	ActionUse        Action = "use"
)

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// Matrix is the role capability table. A permission not listed for a role is denied.
type Matrix map[auth.Role]map[Permission]struct{}

// NewMatrix builds a Matrix from per-role permission lists
func NewMatrix(grants map[auth.Role][]Permission) Matrix {
	m := make(Matrix, len(grants))
	for role, perms := range grants {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		m[role] = set
	}
	return m
}

// Allows reports whether role is granted perm
func (m Matrix) Allows(role auth.Role, perm Permission) bool {
	perms, ok := m[role]
	if !ok {
		return false
	}
	_, ok = perms[perm]
	return ok
}

// Permissions returns the permissions granted to role
func (m Matrix) Permissions(role auth.Role) []Permission {
	perms := make([]Permission, 0, len(m[role]))
	for p := range m[role] {
		perms = append(perms, p)
	}
	return perms
}

func perms(resource Resource, actions ...Action) []Permission {
	out := make([]Permission, 0, len(actions))
	for _, a := range actions {
		out = append(out, Permission{Resource: resource, Action: a})
	}
	return out
}

func concat(lists ...[]Permission) []Permission {
	var out []Permission
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// memberPermissions is the baseline granted to every accepted member
func memberPermissions() []Permission {
	return concat(
		perms(ResourceContact, ActionCreate, ActionRead, ActionUpdate),
		perms(ResourceCompany, ActionCreate, ActionRead, ActionUpdate),
		perms(ResourceDeal, ActionCreate, ActionRead, ActionUpdate),
		perms(ResourceTask, ActionCreate, ActionRead, ActionUpdate, ActionDelete),
		perms(ResourceNote, ActionCreate, ActionRead, ActionUpdate, ActionDelete),
		perms(ResourcePipeline, ActionRead),
		perms(ResourceMember, ActionRead),
		perms(ResourceSettings, ActionRead),
		perms(ResourceCredits, ActionRead),
		perms(ResourceAIAssistant, ActionUse),
	)
}

func adminPermissions() []Permission {
	return concat(
		memberPermissions(),
		perms(ResourceContact, ActionDelete, ActionAssign),
		perms(ResourceCompany, ActionDelete, ActionAssign),
		perms(ResourceDeal, ActionDelete, ActionAssign),
		perms(ResourceTask, ActionAssign),
		perms(ResourcePipeline, ActionCreate, ActionUpdate, ActionDelete),
		perms(ResourceMember, ActionInvite, ActionRemove, ActionUpdateRole),
		perms(ResourceInvitation, ActionCreate, ActionRead, ActionDelete),
		perms(ResourceSettings, ActionUpdate),
		perms(ResourceBilling, ActionRead),
		perms(ResourceCredits, ActionPurchase),
	)
}

func ownerPermissions() []Permission {
	return concat(
		adminPermissions(),
		perms(ResourceBilling, ActionUpdate),
		perms(ResourceSettings, ActionDelete),
	)
}

// DefaultMatrix returns the built-in role capability table
func DefaultMatrix() Matrix {
	return NewMatrix(map[auth.Role][]Permission{
		auth.RoleMember: memberPermissions(),
		auth.RoleAdmin:  adminPermissions(),
		auth.RoleOwner:  ownerPermissions(),
	})
}
