// Package auth defines the caller identity used by every policy check.
//
// # Overview
//
// Authentication and session issuance happen outside this module. By the time a
// request reaches the policy layer, an upstream collaborator has identified the user and
// the membership resolver (pkg/orgs) has confirmed an accepted membership in the tenant.
// The result is an AuthContext:
//
//	ac, err := auth.NewAuthContext(userID, tenantID, auth.RoleMember)
//
// AuthContext is a value type with unexported fields; once built it cannot be altered.
//
// # Roles
//
// Roles form a closed, totally ordered set:
//
//	owner  (rank 3) - created the tenant, cannot be demoted or removed
//	admin  (rank 2) - elevated
//	member (rank 1) - restricted to records assigned to them
//
// Use Role.IsElevated and Role.AtLeast rather than comparing role strings.
//
// # Related Packages
//
//   - pkg/rbac: permission matrix and ownership guards
//   - pkg/orgs: membership resolution
package auth
