package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/crmcore/pkg/api"
	"github.com/platinummonkey/crmcore/pkg/async"
	"github.com/platinummonkey/crmcore/pkg/audit"
	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/config"
	"github.com/platinummonkey/crmcore/pkg/credits"
	"github.com/platinummonkey/crmcore/pkg/middleware"
	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/orgs"
	"github.com/platinummonkey/crmcore/pkg/policy"
	"github.com/platinummonkey/crmcore/pkg/storage"
	"github.com/platinummonkey/crmcore/pkg/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var version = "dev"

func main() {
	limits := middleware.DefaultRateLimitConfig()
	rateLimit := flag.Int("rate-limit", limits.RequestsPerWindow, "Requests per tenant per window when Redis is configured (0 disables)")
	rateWindow := flag.Duration("rate-window", limits.WindowDuration, "Tenant rate limit window")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogger(cfg.Observability.LogLevel.String())
	obs := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "crmcore")
	async.SetLogger(obs)
	logger.WithField("version", version).Info("Starting crmcore API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, obs)
	if err != nil {
		logger.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	db, err := cfg.Database.Open(ctx, obs)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Database.AutoMigrate {
		if err := storage.Migrate(ctx, db.Primary, db.Dialect); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		logger.Info("Redis connected")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	catalog, err := loadCatalog(cfg.Billing.PlanCatalogPath)
	if err != nil {
		logger.Fatalf("Failed to load plan catalog: %v", err)
	}
	if cfg.Billing.PlanCatalogPath != "" && cfg.Billing.WatchCatalog {
		watcher := billing.NewCatalogWatcher(cfg.Billing.PlanCatalogPath, catalog, obs)
		watcher.OnReload(func(plans []billing.Plan) {
			logger.WithField("plans", len(plans)).Info("Plan catalog reloaded")
		})
		async.SafeGo(ctx, async.NoTimeout, "plan catalog watcher", watcher.Run)
	}

	resolver, err := billing.NewResolver(billing.NewPostgresStore(db.Primary), catalog, cfg.Billing.TrialPlan,
		billing.WithLogger(obs))
	if err != nil {
		logger.Fatalf("Failed to create plan resolver: %v", err)
	}

	walletOpts := []credits.Option{credits.WithLogger(obs), credits.WithReader(db.Reader), credits.WithPlanChecker(resolver)}
	if redisClient != nil && cfg.Billing.BalanceCacheTTL > 0 {
		cache, err := credits.NewRedisBalanceCache(redisClient, credits.RedisCacheOptions{
			TTL:       cfg.Billing.BalanceCacheTTL,
			LocalSize: cfg.Billing.BalanceL1Size,
			Metrics:   metrics,
			Logger:    obs,
		})
		if err != nil {
			logger.Fatalf("Failed to create balance cache: %v", err)
		}
		walletOpts = append(walletOpts, credits.WithCache(cache))
	}
	wallets := credits.NewService(db.Primary, db.Dialect, walletOpts...)

	store := orgs.NewSQLStore(db.Primary, db.Dialect)
	quotas := orgs.NewQuotaEnforcer(resolver, store, obs)
	tenants := orgs.NewService(store, orgs.ServiceOptions{
		Quotas:        quotas,
		Wallets:       wallets,
		Plans:         resolver,
		InvitationTTL: cfg.Billing.InvitationTTL,
		TrialPeriod:   cfg.Billing.TrialPeriod,
		Logger:        obs,
	})

	auditLogger := audit.NewLogrusLogger(logger)
	engine, err := policy.NewEngine(policy.Options{
		Quotas:  quotas,
		Wallet:  wallets,
		Audit:   auditLogger,
		Metrics: metrics,
		Logger:  obs,
	})
	if err != nil {
		logger.Fatalf("Failed to create policy engine: %v", err)
	}

	var limiter *middleware.TenantRateLimiter
	if redisClient != nil && *rateLimit > 0 {
		limiter = middleware.NewTenantRateLimiter(redisClient, middleware.RateLimitConfig{
			RequestsPerWindow: *rateLimit,
			WindowDuration:    *rateWindow,
		}, obs)
	}

	router := mux.NewRouter()
	router.Use(observability.RecoveryMiddleware(obs))
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	api.NewServer(api.Config{
		Engine:  engine,
		Ledger:  wallets,
		Quotas:  quotas,
		Tenants: tenants,
		Audit:   auditLogger,
		Limiter: limiter,
		Logger:  obs,
	}).RegisterRoutes(router)

	var handler http.Handler = router
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(router, "crmcore")
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(db.Primary, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.HealthAddr(),
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	async.SafeGoNoError(ctx, async.NoTimeout, "db stats", func(ctx context.Context) {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBStats(db.Stats())
			case <-ctx.Done():
				return
			}
		}
	})

	shutdown := observability.NewShutdownManager(obs, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, obs)
	})
	shutdown.RegisterShutdownFunc("audit", func(context.Context) error { return auditLogger.Close() })
	shutdown.RegisterShutdownFunc("health server", healthServer.Shutdown)
	shutdown.RegisterShutdownFunc("background tasks", func(context.Context) error {
		cancel()
		return nil
	})

	go serve(logger, "health", healthServer)
	go serve(logger, "api", server)
	logger.Infof("Listening on %s (health and metrics on %s)", server.Addr, healthServer.Addr)

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		logger.Errorf("Shutdown finished with errors: %v", err)
		os.Exit(1)
	}
	logger.Info("crmcore API server stopped")
}

func serve(logger *logrus.Logger, name string, server *http.Server) {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("%s server failed: %v", name, err)
	}
}

func loadCatalog(path string) (*billing.Catalog, error) {
	if path == "" {
		return billing.DefaultCatalog(), nil
	}
	return billing.LoadCatalogFile(path)
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
