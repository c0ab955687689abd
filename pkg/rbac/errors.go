package rbac

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/crmcore/pkg/auth"
)

// AuthorizationError is returned when the caller's role lacks the base permission
// for an action. It is never retried.
type AuthorizationError struct {
	Role       auth.Role
	Permission Permission
}

func (e *AuthorizationError) Error() string {
	if e.Permission == (Permission{}) {
		return "not authorized to perform this action"
	}
	return fmt.Sprintf("role %q is not authorized to %s", e.Role, e.Permission)
}

// OwnershipError is returned when the role permits an action in general but not on
// the specific record.
type OwnershipError struct {
	UserID   string
	RecordID string
	Reason   string
}

func (e *OwnershipError) Error() string {
	msg := "not authorized to access this record"
	if e.RecordID != "" {
		msg = fmt.Sprintf("not authorized to access record %s", e.RecordID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IsAuthorizationError checks if an error is (or wraps) an authorization error
func IsAuthorizationError(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsOwnershipError checks if an error is (or wraps) an ownership error
func IsOwnershipError(err error) bool {
	var target *OwnershipError
	return errors.As(err, &target)
}
