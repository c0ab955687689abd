package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/crmcore/pkg/async"
	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/config"
	"github.com/platinummonkey/crmcore/pkg/credits"
	"github.com/platinummonkey/crmcore/pkg/jobs"
	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/orgs"
	"github.com/platinummonkey/crmcore/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	runOnce   = flag.String("run-once", "", "Run a single job and exit: grants or invitations")
	grantDate = flag.String("date", "", "Month to grant (YYYY-MM). Defaults to the current month. Only used with --run-once grants")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.Observability.LogLevel.String()); err == nil {
		logger.SetLevel(lvl)
	}
	obs := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "crmcore-worker")
	async.SetLogger(obs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := cfg.Database.Open(ctx, obs)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := storage.Migrate(ctx, db.Primary, db.Dialect); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
	}

	catalog := billing.DefaultCatalog()
	if cfg.Billing.PlanCatalogPath != "" {
		catalog, err = billing.LoadCatalogFile(cfg.Billing.PlanCatalogPath)
		if err != nil {
			logger.Fatalf("Failed to load plan catalog: %v", err)
		}
	}
	resolver, err := billing.NewResolver(billing.NewPostgresStore(db.Primary), catalog, cfg.Billing.TrialPlan,
		billing.WithLogger(obs))
	if err != nil {
		logger.Fatalf("Failed to create plan resolver: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	wallets := credits.NewService(db.Primary, db.Dialect, credits.WithLogger(obs))
	store := orgs.NewSQLStore(db.Primary, db.Dialect)
	tenants := orgs.NewService(store, orgs.ServiceOptions{
		Quotas:        orgs.NewQuotaEnforcer(resolver, store, obs),
		Wallets:       wallets,
		Plans:         resolver,
		InvitationTTL: cfg.Billing.InvitationTTL,
		Logger:        obs,
	})

	granter := jobs.NewPlanCreditGranter(store, resolver, wallets, cfg.Jobs.Workers, metrics, obs).
		WithTimeout(cfg.Jobs.TaskTimeout)
	cleaner := jobs.NewInvitationCleaner(tenants, metrics, obs)

	switch *runOnce {
	case "":
	case "grants":
		now := time.Now().UTC()
		if *grantDate != "" {
			now, err = time.Parse("2006-01", *grantDate)
			if err != nil {
				logger.Fatalf("Invalid month: %v", err)
			}
		}
		summary, err := granter.Run(ctx, now)
		if err != nil {
			logger.Fatalf("Plan credit grant failed: %v", err)
		}
		logger.WithField("failed", summary.Failed).Infof("Granted %d tenants for %s", summary.Granted, summary.Period)
		return
	case "invitations":
		if _, err := cleaner.Run(ctx); err != nil {
			logger.Fatalf("Invitation cleanup failed: %v", err)
		}
		return
	default:
		logger.Fatalf("Unknown job %q", *runOnce)
	}

	c := cron.New(cron.WithLocation(time.UTC))

	_, err = c.AddFunc(cfg.Jobs.GrantSchedule, func() {
		logger.Info("Starting plan credit grant")
		if _, err := granter.Run(ctx, time.Now()); err != nil {
			logger.Errorf("Plan credit grant failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule plan credit grant: %v", err)
	}

	_, err = c.AddFunc(cfg.Jobs.InviteCleanupSchedule, func() {
		if _, err := cleaner.Run(ctx); err != nil {
			logger.Errorf("Invitation cleanup failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule invitation cleanup: %v", err)
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(db.Primary, nil, "worker"))
	healthRouter.Handle("/metrics", observability.MetricsHandler(registry))
	healthServer := &http.Server{Addr: cfg.Server.HealthAddr(), Handler: healthRouter, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Health server failed: %v", err)
		}
	}()

	c.Start()
	logger.Info("crmcore worker started")
	logger.Infof("Plan credit grant schedule: %s", cfg.Jobs.GrantSchedule)
	logger.Infof("Invitation cleanup schedule: %s", cfg.Jobs.InviteCleanupSchedule)

	<-ctx.Done()
	logger.Info("Shutting down worker")
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Health server shutdown: %v", err)
	}
	logger.Info("Worker stopped")
}
