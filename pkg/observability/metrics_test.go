package observability

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAll(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	m.RecordDecision("permission", OutcomeAllow)
	m.RecordDebit(DebitSuccess, 5, time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["crmcore_policy_decisions_total"])
	assert.True(t, names["crmcore_credit_debits_total"])
	assert.True(t, names["crmcore_credits_debited_total"])
}

func TestNewMetrics_DoubleRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestMetrics_RecordDecision(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDecision("ownership", OutcomeDeny)
	m.RecordDecision("ownership", OutcomeDeny)
	m.RecordDecision("ownership", OutcomeAllow)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PolicyDecisionsTotal.WithLabelValues("ownership", OutcomeDeny)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyDecisionsTotal.WithLabelValues("ownership", OutcomeAllow)))
}

func TestMetrics_RecordDebit(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDebit(DebitSuccess, 15, time.Millisecond)
	m.RecordDebit(DebitInsufficient, 100, time.Millisecond)
	m.RecordDebit(DebitError, 7, time.Millisecond)

	assert.Equal(t, 15.0, testutil.ToFloat64(m.CreditsDebitedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CreditDebitsTotal.WithLabelValues(DebitInsufficient)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CreditDebitsTotal.WithLabelValues(DebitSuccess)))
}

func TestMetrics_OtherRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordQuotaRejection("max_contacts")
	m.RecordGrant("success")
	m.RecordCacheLookup("balance_l1", true)
	m.RecordCacheLookup("balance_l1", false)
	m.RecordJobRun("plan_credit_grant", errors.New("db down"), time.Second)
	m.UpdateDBStats(sql.DBStats{InUse: 3, Idle: 2, WaitCount: 7})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaRejectionsTotal.WithLabelValues("max_contacts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CreditGrantsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("balance_l1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("balance_l1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("plan_credit_grant", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DBConnectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DBConnectionsIdle))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.DBConnectionsWaitCount))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDecision("permission", OutcomeDeny)
		m.RecordQuotaRejection("max_deals")
		m.RecordDebit(DebitSuccess, 1, time.Millisecond)
		m.RecordGrant("success")
		m.RecordCacheLookup("balance", true)
		m.RecordJobRun("job", nil, time.Second)
		m.UpdateDBStats(sql.DBStats{})
	})
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/tenants/{tenant}/balance", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hello"))
	})

	for _, tenant := range []string{"acme", "globex"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tenants/"+tenant+"/balance", nil))
		assert.Equal(t, http.StatusTeapot, rr.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/tenants/{tenant}/balance", "418")))
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	n, err := rw.Write([]byte("12345"))

	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.Equal(t, 5, rw.bytesWritten)
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordDecision("quota", OutcomeDeny)

	server := httptest.NewServer(MetricsHandler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `crmcore_policy_decisions_total{check="quota",outcome="deny"} 1`))
}
