package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision outcomes used as the outcome label of PolicyDecisionsTotal
const (
	OutcomeAllow = "allow"
	OutcomeDeny  = "deny"
	OutcomeError = "error"
)

// Debit outcomes used as the outcome label of CreditDebitsTotal
const (
	DebitSuccess      = "success"
	DebitInsufficient = "insufficient"
	DebitError        = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Policy metrics
	PolicyDecisionsTotal *prometheus.CounterVec
	QuotaRejectionsTotal *prometheus.CounterVec

	// Credit metrics
	CreditDebitsTotal   *prometheus.CounterVec
	CreditsDebitedTotal prometheus.Counter
	CreditDebitDuration prometheus.Histogram
	CreditGrantsTotal   *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge

	// Job metrics
	JobRunsTotal   *prometheus.CounterVec
	JobRunDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crmcore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crmcore_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		PolicyDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmcore_policy_decisions_total",
				Help: "Policy checks by check name and outcome",
			},
			[]string{"check", "outcome"},
		),
		QuotaRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmcore_quota_rejections_total",
				Help: "Creations rejected because the tenant reached its plan limit",
			},
			[]string{"feature"},
		),

		CreditDebitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmcore_credit_debits_total",
				Help: "Credit debit attempts by outcome",
			},
			[]string{"outcome"},
		),
		CreditsDebitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crmcore_credits_debited_total",
				Help: "Total credits debited from tenant wallets",
			},
		),
		CreditDebitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crmcore_credit_debit_duration_seconds",
				Help:    "Duration of the debit transaction in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		CreditGrantsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmcore_credit_grants_total",
				Help: "Plan credit grants by outcome",
			},
			[]string{"outcome"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmcore_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmcore_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crmcore_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crmcore_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crmcore_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),

		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmcore_job_runs_total",
				Help: "Background job runs by job and status",
			},
			[]string{"job", "status"},
		),
		JobRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crmcore_job_run_duration_seconds",
				Help:    "Background job run duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
			},
			[]string{"job"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.PolicyDecisionsTotal,
		m.QuotaRejectionsTotal,
		m.CreditDebitsTotal,
		m.CreditsDebitedTotal,
		m.CreditDebitDuration,
		m.CreditGrantsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.JobRunsTotal,
		m.JobRunDuration,
	)

	return m
}

// RecordDecision counts one policy check outcome. Safe to call on a nil *Metrics.
func (m *Metrics) RecordDecision(check, outcome string) {
	if m == nil {
		return
	}
	m.PolicyDecisionsTotal.WithLabelValues(check, outcome).Inc()
}

// RecordQuotaRejection counts a creation rejected by the plan limit of feature
func (m *Metrics) RecordQuotaRejection(feature string) {
	if m == nil {
		return
	}
	m.QuotaRejectionsTotal.WithLabelValues(feature).Inc()
}

// RecordDebit counts a debit attempt. amount is only added to the debited total on success.
func (m *Metrics) RecordDebit(outcome string, amount int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.CreditDebitsTotal.WithLabelValues(outcome).Inc()
	m.CreditDebitDuration.Observe(duration.Seconds())
	if outcome == DebitSuccess {
		m.CreditsDebitedTotal.Add(float64(amount))
	}
}

// RecordGrant counts a plan credit grant
func (m *Metrics) RecordGrant(outcome string) {
	if m == nil {
		return
	}
	m.CreditGrantsTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts a hit or miss for cacheType
func (m *Metrics) RecordCacheLookup(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
}

// RecordJobRun counts a job run and its duration
func (m *Metrics) RecordJobRun(job string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	m.JobRunDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// UpdateDBStats copies connection pool statistics into the database gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the mux route template so tenant ids and tokens do not become labels
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
