package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/crmcore/pkg/credits"
	"github.com/platinummonkey/crmcore/pkg/orgs"
	"github.com/platinummonkey/crmcore/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusBadRequest, errors.New("test error"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"test error"}`, w.Body.String())
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"authorization", &rbac.AuthorizationError{}, http.StatusForbidden},
		{"wrapped ownership", fmt.Errorf("update deal: %w", &rbac.OwnershipError{RecordID: "d1"}), http.StatusForbidden},
		{"member policy", &rbac.MemberPolicyError{Reason: "owner cannot be removed"}, http.StatusForbidden},
		{"quota", &orgs.QuotaExceededError{Resource: "max_deals", Current: 50, Limit: 50}, http.StatusForbidden},
		{"membership", orgs.ErrMembershipNotFound, http.StatusNotFound},
		{"wallet", fmt.Errorf("debit: %w", credits.ErrWalletNotFound), http.StatusNotFound},
		{"expired invitation", orgs.ErrInvitationExpired, http.StatusGone},
		{"already member", orgs.ErrAlreadyMember, http.StatusConflict},
		{"amount", credits.ErrInvalidAmount, http.StatusBadRequest},
		{"email", orgs.ErrInvalidEmail, http.StatusBadRequest},
		{"other", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestWritePolicyError_Quota(t *testing.T) {
	w := httptest.NewRecorder()

	WritePolicyError(w, fmt.Errorf("create contact: %w", &orgs.QuotaExceededError{Resource: "max_contacts", Current: 500, Limit: 500}))

	assert.Equal(t, http.StatusForbidden, w.Code)
	var body QuotaErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "max_contacts", body.Resource)
	assert.Equal(t, int64(500), body.Current)
	assert.Equal(t, int64(500), body.Limit)
	assert.Contains(t, body.Error, "quota exceeded")
}

func TestWritePolicyError_HidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()

	WritePolicyError(w, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestParseJSON(t *testing.T) {
	var dest struct {
		Email string `json:"email"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@example.com"}`))
	require.NoError(t, ParseJSON(r, &dest))
	assert.Equal(t, "a@example.com", dest.Email)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@example.com","role":"owner"}`))
	assert.Error(t, ParseJSON(r, &dest))

	w := httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))
	assert.False(t, ParseJSONOrError(w, r, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathString(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"tenant": "acme"})

	val, err := ParsePathString(r, "tenant")
	require.NoError(t, err)
	assert.Equal(t, "acme", val)

	w := httptest.NewRecorder()
	_, ok := ParsePathStringOrError(w, r, "user")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=25", nil)
	val, err := ParseQueryInt(r, "limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 25, val)

	val, err = ParseQueryInt(r, "offset", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, val)

	w := httptest.NewRecorder()
	_, ok := ParseQueryIntOrError(w, httptest.NewRequest(http.MethodGet, "/?limit=abc", nil), "limit", 50)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
