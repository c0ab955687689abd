// Package rbac provides role-based access control and record ownership scoping for
// CRM tenants.
//
// # Overview
//
// Every request is evaluated in two layers:
//
//  1. Role permissions: can this role perform this action on this kind of resource?
//  2. Record ownership: may this caller touch this particular record?
//
// Both layers are pure functions of an auth.AuthContext and the data passed in. The
// package performs no I/O; loading records (always with a tenant filter) is the
// caller's job.
//
// # Resources and Actions
//
// Resources are the kinds of things a tenant owns:
//
//	ResourceContact, ResourceCompany, ResourceDeal, ResourceTask, ResourceNote
//	ResourcePipeline, ResourceMember, ResourceInvitation, ResourceSettings
//	ResourceBilling, ResourceCredits, ResourceAIAssistant
//
// Actions are what can be done to them:
//
//	ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAssign
//	ActionInvite, ActionRemove, ActionUpdateRole, ActionPurchase, ActionUse
//
// A Permission is the pair, written "resource:action" (e.g. "deal:delete").
//
// # Permission Matrix
//
// A Matrix lists the permissions granted to each role. Anything not listed is denied,
// including unknown resources, unknown actions and unknown roles:
//
//	checker := rbac.DefaultChecker()
//	if !checker.CanPerform(ac, rbac.ResourceDeal, rbac.ActionDelete) {
//		return rbac.RequirePermission(false)
//	}
//
// The default matrix gives members day-to-day CRM work on their own records, admins
// deletion, reassignment and member management, and the owner billing control.
//
// # Ownership Scoping
//
// Owners and admins see every record in their tenant. Members only see records
// assigned to them:
//
//	rec := rbac.Record{ID: deal.ID, TenantID: deal.TenantID, AssignedTo: deal.AssignedTo}
//	if err := rbac.AuthorizeRecord(ac, rec); err != nil {
//		return err // *rbac.OwnershipError
//	}
//
// A record with no owner is invisible to members. New records go through
// ResolveAssignedTo so members cannot create records on someone else's behalf, and
// updates go through Checker.AuthorizeUpdate so members cannot reassign records.
//
// # Member Management
//
// Checker.CanChangeMemberRole, CanRemoveMember and CanInviteWithRole enforce the
// membership rules on top of the matrix:
//
//   - the owner's role never changes and the owner cannot be removed
//   - nobody can be granted the owner role
//   - nobody changes their own role
//   - only the owner manages admins
//
// Violations return *MemberPolicyError.
//
// # Errors
//
// Denials are typed so the HTTP layer can map them without string matching:
//
//	if rbac.IsAuthorizationError(err) || rbac.IsOwnershipError(err) {
//		httputil.WritePolicyError(w, err) // 403
//	}
package rbac
