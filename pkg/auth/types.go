package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Role represents a tenant-level role
type Role string

const (
	RoleOwner  Role = "owner"  // Created the tenant, immutable
	RoleAdmin  Role = "admin"  // Manages members, billing and all records
	RoleMember Role = "member" // Works on records assigned to them
)

// Rank returns the privilege rank of a role. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the role is one of the known roles
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r carries at least the privileges of other
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r.Rank() >= other.Rank()
}

// IsElevated reports whether the role is admin or owner
func (r Role) IsElevated() bool {
	return r.AtLeast(RoleAdmin)
}

func (r Role) String() string {
	return string(r)
}

// ParseRole parses a role name, rejecting unknown values
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// IsElevated reports whether role is admin or owner
func IsElevated(role Role) bool {
	return role.IsElevated()
}

// MembershipStatus is the lifecycle state of a membership
type MembershipStatus string

const (
	MembershipPending  MembershipStatus = "pending"  // Invited, not yet accepted
	MembershipAccepted MembershipStatus = "accepted"
)

var (
	ErrMissingUserID   = errors.New("auth: user id is required")
	ErrMissingTenantID = errors.New("auth: tenant id is required")
)

// AuthContext identifies the caller of a single request: who they are, which tenant
// they act in and with what role. It is built once from a validated membership.
type AuthContext struct {
	userID   string
	tenantID string
	role     Role
}

// NewAuthContext creates an AuthContext. The role must be a known role.
func NewAuthContext(userID, tenantID string, role Role) (AuthContext, error) {
	if userID == "" {
		return AuthContext{}, ErrMissingUserID
	}
	if tenantID == "" {
		return AuthContext{}, ErrMissingTenantID
	}
	if !role.Valid() {
		return AuthContext{}, fmt.Errorf("auth: invalid role %q", role)
	}
	return AuthContext{userID: userID, tenantID: tenantID, role: role}, nil
}

// UserID returns the acting user's id
func (ac AuthContext) UserID() string { return ac.userID }

// TenantID returns the tenant the request is scoped to
func (ac AuthContext) TenantID() string { return ac.tenantID }

// Role returns the acting user's role in the tenant
func (ac AuthContext) Role() Role { return ac.role }

// IsElevated reports whether the caller holds an elevated role
func (ac AuthContext) IsElevated() bool { return ac.role.IsElevated() }

// IsZero reports whether the context was never initialized
func (ac AuthContext) IsZero() bool { return ac.userID == "" && ac.tenantID == "" }

func (ac AuthContext) String() string {
	return fmt.Sprintf("user=%s tenant=%s role=%s", ac.userID, ac.tenantID, ac.role)
}
