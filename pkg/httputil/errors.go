package httputil

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/crmcore/pkg/credits"
	"github.com/platinummonkey/crmcore/pkg/orgs"
	"github.com/platinummonkey/crmcore/pkg/rbac"
)

// QuotaErrorResponse is the body of a 403 caused by a plan quota
type QuotaErrorResponse struct {
	Error    string `json:"error"`
	Resource string `json:"resource"`
	Current  int64  `json:"current"`
	Limit    int64  `json:"limit"`
}

// StatusForError maps a policy or domain error to an HTTP status code
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case rbac.IsAuthorizationError(err), rbac.IsOwnershipError(err), rbac.IsMemberPolicyError(err),
		orgs.IsQuotaExceeded(err):
		return http.StatusForbidden
	case errors.Is(err, orgs.ErrTenantNotFound), errors.Is(err, orgs.ErrMembershipNotFound),
		errors.Is(err, orgs.ErrInvitationNotFound), errors.Is(err, credits.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, orgs.ErrInvitationExpired):
		return http.StatusGone
	case errors.Is(err, orgs.ErrAlreadyMember), errors.Is(err, orgs.ErrSlugTaken):
		return http.StatusConflict
	case errors.Is(err, credits.ErrInvalidAmount), errors.Is(err, orgs.ErrInvalidEmail),
		errors.Is(err, orgs.ErrInvalidTenantFields), errors.Is(err, orgs.ErrUnknownFeature):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WritePolicyError writes err with the status from StatusForError. Quota errors carry
// the resource, its current count and the plan limit. Unmapped errors are written as a
// generic 500 so internal details do not leak.
func WritePolicyError(w http.ResponseWriter, err error) {
	var quotaErr *orgs.QuotaExceededError
	if errors.As(err, &quotaErr) {
		_ = WriteJSON(w, http.StatusForbidden, QuotaErrorResponse{
			Error:    quotaErr.Error(),
			Resource: quotaErr.Resource,
			Current:  quotaErr.Current,
			Limit:    quotaErr.Limit,
		})
		return
	}

	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		WriteErrorMessage(w, status, "internal server error")
		return
	}
	WriteError(w, status, err)
}
