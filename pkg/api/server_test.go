package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/crmcore/pkg/audit"
	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/credits"
	"github.com/platinummonkey/crmcore/pkg/middleware"
	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/orgs"
	"github.com/platinummonkey/crmcore/pkg/policy"
	"github.com/platinummonkey/crmcore/pkg/storage"
	"github.com/platinummonkey/crmcore/pkg/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	router *mux.Router
}

// newAPIFixture wires the real services over a migrated SQLite database
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db := storagetest.NewSQLiteDB(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	resolver, err := billing.NewResolver(billing.NewPostgresStore(db), billing.DefaultCatalog(), billing.PlanStarter,
		billing.WithLogger(logger))
	require.NoError(t, err)

	wallets := credits.NewService(db, storage.DialectSQLite, credits.WithLogger(logger))
	store := orgs.NewSQLStore(db, storage.DialectSQLite)
	quotas := orgs.NewQuotaEnforcer(resolver, store, logger)
	tenants := orgs.NewService(store, orgs.ServiceOptions{
		Quotas:  quotas,
		Wallets: wallets,
		Plans:   resolver,
		Logger:  logger,
	})

	engine, err := policy.NewEngine(policy.Options{Quotas: quotas, Wallet: wallets, Logger: logger})
	require.NoError(t, err)

	server := NewServer(Config{
		Engine:  engine,
		Ledger:  wallets,
		Quotas:  quotas,
		Tenants: tenants,
		Audit:   audit.NoopLogger{},
		Logger:  logger,
	})
	router := mux.NewRouter()
	server.RegisterRoutes(router)
	return &apiFixture{router: router}
}

func (f *apiFixture) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// join invites email with role as the owner and accepts it as userID
func (f *apiFixture) join(t *testing.T, email, role, userID string) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/tenants/acme/members/invitations", "u-owner",
		map[string]string{"email": email, "role": role})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	invite := decode[InvitationResponse](t, w)
	require.NotEmpty(t, invite.Token)

	w = f.do(t, http.MethodPost, "/invitations/"+invite.Token+"/accept", userID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func newTenant(t *testing.T) *apiFixture {
	t.Helper()
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/tenants", "u-owner", map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[TenantResponse](t, w)
	require.Equal(t, "acme", created.Tenant.Slug)
	return f
}

func TestAPI_RequiresUser(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/tenants", "", map[string]string{"name": "Acme"}).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/tenants/acme/balance", "", nil).Code)
}

func TestAPI_BalanceAndLedger(t *testing.T) {
	f := newTenant(t)

	w := f.do(t, http.MethodGet, "/tenants/acme/balance", "u-owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	balance := decode[credits.Balance](t, w)
	assert.Equal(t, int64(100), balance.Available, "new tenants start with the trial plan allowance")
	assert.Equal(t, int64(100), balance.PlanBalance)

	w = f.do(t, http.MethodGet, "/tenants/acme/ledger", "u-owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	txs := decode[[]credits.Transaction](t, w)
	require.Len(t, txs, 1)
	assert.Equal(t, credits.TransactionPlanGrant, txs[0].Type)

	w = f.do(t, http.MethodGet, "/tenants/acme/usage", "u-owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	usage := decode[UsageResponse](t, w)
	assert.Equal(t, int64(0), usage.Current.ActionCount)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/tenants/acme/usage?period=march", "u-owner", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/tenants/acme/balance", "u-stranger", nil).Code)
}

func TestAPI_Quotas(t *testing.T) {
	f := newTenant(t)

	w := f.do(t, http.MethodGet, "/tenants/acme/quotas", "u-owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[[]QuotaResponse](t, w)
	assert.Len(t, all, len(billing.FeatureKeys()))

	w = f.do(t, http.MethodGet, "/tenants/acme/quotas/max_members", "u-owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	members := decode[QuotaResponse](t, w)
	assert.Equal(t, int64(1), members.Current)
	assert.Equal(t, int64(3), members.Limit)
	assert.Equal(t, int64(2), members.Remaining)
	assert.Equal(t, billing.PlanSourceTrial, members.Source)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/tenants/acme/quotas/max_widgets", "u-owner", nil).Code)
}

func TestAPI_MemberLifecycle(t *testing.T) {
	f := newTenant(t)
	f.join(t, "ada@example.com", "admin", "u-admin")
	f.join(t, "bob@example.com", "member", "u-bob")

	w := f.do(t, http.MethodGet, "/tenants/acme/members", "u-bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]orgs.Membership](t, w), 3)

	// members cannot invite
	w = f.do(t, http.MethodPost, "/tenants/acme/members/invitations", "u-bob",
		map[string]string{"email": "eve@example.com", "role": "member"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// starter allows three members
	w = f.do(t, http.MethodPost, "/tenants/acme/members/invitations", "u-owner",
		map[string]string{"email": "eve@example.com", "role": "member"})
	require.Equal(t, http.StatusForbidden, w.Code)
	quotaErr := decode[map[string]interface{}](t, w)
	assert.Equal(t, "max_members", quotaErr["resource"])
	assert.Equal(t, float64(3), quotaErr["limit"])

	// the owner's role is immutable
	w = f.do(t, http.MethodPatch, "/tenants/acme/members/u-owner", "u-admin", map[string]string{"role": "member"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPatch, "/tenants/acme/members/u-bob", "u-owner", map[string]string{"role": "superuser"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPatch, "/tenants/acme/members/u-bob", "u-owner", map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "admin", decode[map[string]interface{}](t, w)["role"])

	w = f.do(t, http.MethodDelete, "/tenants/acme/members/u-owner", "u-admin", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, "/tenants/acme/members/u-bob", "u-owner", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// removed members lose access
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/tenants/acme/balance", "u-bob", nil).Code)
}

func TestAPI_Invitations(t *testing.T) {
	f := newTenant(t)

	w := f.do(t, http.MethodPost, "/tenants/acme/members/invitations", "u-owner",
		map[string]string{"email": "ada@example.com", "role": "member"})
	require.Equal(t, http.StatusCreated, w.Code)
	invite := decode[InvitationResponse](t, w)

	w = f.do(t, http.MethodGet, "/tenants/acme/members/invitations", "u-owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]orgs.Membership](t, w), 1)

	w = f.do(t, http.MethodDelete, "/tenants/acme/members/invitations/"+invite.ID, "u-owner", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodPost, "/invitations/"+invite.Token+"/accept", "u-ada", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/tenants/acme/members/invitations", "u-owner",
		map[string]string{"email": "not-an-email", "role": "member"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/tenants/acme/members/invitations", "u-owner",
		map[string]string{"email": "x@example.com", "role": "owner"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
