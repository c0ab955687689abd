package rbac

import (
	"github.com/platinummonkey/crmcore/pkg/auth"
)

// Checker evaluates role permissions against a capability matrix. It performs no I/O.
type Checker struct {
	matrix Matrix
}

// NewChecker creates a checker over matrix. A nil matrix denies everything.
func NewChecker(matrix Matrix) *Checker {
	return &Checker{matrix: matrix}
}

var defaultChecker = NewChecker(DefaultMatrix())

// DefaultChecker returns the checker for the built-in matrix
func DefaultChecker() *Checker {
	return defaultChecker
}

// CanPerform reports whether the caller's role may perform action on resource.
// Pairs missing from the matrix are denied.
func (c *Checker) CanPerform(ac auth.AuthContext, resource Resource, action Action) bool {
	if ac.IsZero() || !ac.Role().Valid() {
		return false
	}
	return c.matrix.Allows(ac.Role(), Permission{Resource: resource, Action: action})
}

// Authorize is CanPerform returning an *AuthorizationError on denial
func (c *Checker) Authorize(ac auth.AuthContext, resource Resource, action Action) error {
	if c.CanPerform(ac, resource, action) {
		return nil
	}
	return &AuthorizationError{
		Role:       ac.Role(),
		Permission: Permission{Resource: resource, Action: action},
	}
}

// CanPerformAction evaluates against the built-in matrix
func CanPerformAction(ac auth.AuthContext, resource Resource, action Action) bool {
	return defaultChecker.CanPerform(ac, resource, action)
}

// RequirePermission converts a false permission result into an *AuthorizationError.
// It has no side effects.
func RequirePermission(allowed bool) error {
	if allowed {
		return nil
	}
	return &AuthorizationError{}
}
